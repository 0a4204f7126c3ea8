package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"procrelay/internal/transport"
)

var (
	cardTitleStyle  = lipgloss.NewStyle().Bold(true)
	cardAuthorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8A4B3"))
	cardFooterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).Italic(true)
	messageIDStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5E6472"))
)

// RenderCard draws one content block as a bordered card tinted with the
// block color.
func RenderCard(b transport.Block, width int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#5E6472")).
		Padding(0, 1)
	if b.Color != transport.NoColor {
		style = style.BorderForeground(lipgloss.Color(fmt.Sprintf("#%06X", b.Color)))
	}
	inner := width - 4
	if inner > 0 {
		style = style.Width(width - 2)
	}

	var parts []string
	if b.Author != "" {
		parts = append(parts, cardAuthorStyle.Render(b.Author))
	}
	if b.Title != "" {
		title := b.Title
		if inner > 0 {
			title = runewidth.Truncate(title, inner, "…")
		}
		parts = append(parts, cardTitleStyle.Render(title))
	}
	if b.Description != "" {
		parts = append(parts, strings.ReplaceAll(b.Description, "\t", "    "))
	}
	footer := b.Footer
	if !b.Timestamp.IsZero() {
		ts := b.Timestamp.Local().Format("15:04:05")
		if footer == "" {
			footer = ts
		} else {
			footer += " • " + ts
		}
	}
	if footer != "" {
		parts = append(parts, cardFooterStyle.Render(footer))
	}
	return style.Render(strings.Join(parts, "\n"))
}

// RenderMessages draws a channel: each message is headed by its short id,
// which is what the rm command accepts.
func RenderMessages(msgs []transport.StoredMessage, width int) string {
	if len(msgs) == 0 {
		return "No messages yet. Type `run <command>` to start a process."
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var sb strings.Builder
		sb.WriteString(messageIDStyle.Render("#" + shortID(m.Handle.ID)))
		if m.Message.Content != "" {
			sb.WriteString("\n" + m.Message.Content)
		}
		for _, b := range m.Message.Blocks {
			sb.WriteString("\n" + RenderCard(b, width))
		}
		out = append(out, sb.String())
	}
	return strings.Join(out, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
