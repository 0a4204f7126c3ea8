package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"procrelay/internal/events"
	"procrelay/internal/logger"
	"procrelay/internal/supervisor"
	"procrelay/internal/transport"
)

var log = logger.Named("tui")

const maxNotices = 6

// Options wire the chat surface to a supervisor whose transport is Memory.
type Options struct {
	Supervisor *supervisor.Supervisor
	Memory     *transport.Memory
	Events     *events.Bus
	ChannelID  string

	Shell     string
	Verbose   bool
	AutoFlush bool
	Windowed  bool
}

type channelChangedMsg struct{}

type busEventMsg struct {
	Event events.Event
}

type commandResultMsg struct {
	Input  string
	Notice string
	Err    error
}

type Model struct {
	opts Options
	sup  *supervisor.Supervisor
	mem  *transport.Memory

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model

	changes   chan struct{}
	eventsSub <-chan events.Event

	notices []string
	err     error
	width   int
	height  int
	dirty   bool
}

func New(opts Options) *Model {
	if opts.ChannelID == "" {
		opts.ChannelID = "local"
	}
	ti := textinput.New()
	ti.Placeholder = "run make test"
	ti.Prompt = "› "
	ti.CharLimit = 0
	ti.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	m := &Model{
		opts:     opts,
		sup:      opts.Supervisor,
		mem:      opts.Memory,
		input:    ti,
		viewport: viewport.New(90, 16),
		spin:     spin,
		changes:  make(chan struct{}, 1),
		width:    90,
		height:   24,
		dirty:    true,
	}
	channel := opts.ChannelID
	m.mem.OnChange(func(id string) {
		if id != channel {
			return
		}
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	if opts.Events != nil {
		m.eventsSub = opts.Events.Subscribe()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listenChanges(), m.listenEvents(), m.spin.Tick, textinput.Blink)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m.finish(cmds...)
	case channelChangedMsg:
		m.dirty = true
		cmds = append(cmds, m.listenChanges())
		return m.finish(cmds...)
	case busEventMsg:
		m.handleEvent(msg.Event)
		cmds = append(cmds, m.listenEvents())
		return m.finish(cmds...)
	case commandResultMsg:
		if errors.Is(msg.Err, errQuit) {
			return m, m.quit()
		}
		m.err = msg.Err
		if msg.Err != nil {
			m.notice(fmt.Sprintf("%s: %v", msg.Input, msg.Err))
		} else if msg.Notice != "" {
			m.notice(msg.Notice)
		}
		return m.finish(cmds...)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
		return m.finish(cmds...)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
			return m.finish(cmds...)
		case "enter":
			input := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if input == "" {
				return m.finish(cmds...)
			}
			cmds = append(cmds, m.run(input))
			return m.finish(cmds...)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m.finish(cmds...)
}

func (m *Model) finish(cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	if m.dirty {
		m.refresh()
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	header := renderHeader(m.opts.ChannelID, m.width)
	chat := renderPane("", m.viewport.View(), m.width)
	notices := renderPane("Notices", strings.Join(m.notices, "\n"), m.width)
	composer := renderPane("", m.input.View(), m.width)
	status := m.statusLine()
	return lipgloss.JoinVertical(lipgloss.Left, header, chat, notices, composer, status)
}

func (m *Model) run(input string) tea.Cmd {
	return func() tea.Msg {
		notice, err := m.execute(context.Background(), input)
		return commandResultMsg{Input: input, Notice: notice, Err: err}
	}
}

func (m *Model) quit() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.sup.Shutdown(ctx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
		return tea.Quit()
	}
}

func (m *Model) listenChanges() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return channelChangedMsg{}
	}
}

func (m *Model) listenEvents() tea.Cmd {
	if m.eventsSub == nil {
		return nil
	}
	return func() tea.Msg {
		evt, ok := <-m.eventsSub
		if !ok {
			return nil
		}
		return busEventMsg{Event: evt}
	}
}

func (m *Model) handleEvent(evt events.Event) {
	switch p := evt.Payload.(type) {
	case events.ProcessStarted:
		log.WithField("pid", evt.PID).Debugf("started %s", p.Name)
	case events.ProcessExited:
		verb := "exited"
		if p.Terminated {
			verb = "was terminated"
		}
		m.notice(fmt.Sprintf("[%d] %s %s with code %d", evt.PID, p.Name, verb, p.ExitCode))
	case events.RelayFailed:
		m.notice(fmt.Sprintf("[%d] %s output stopped: %s", evt.PID, p.Stream, p.Error))
	}
}

func (m *Model) notice(text string) {
	m.notices = append(m.notices, strings.Split(text, "\n")...)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	// header 3, notices maxNotices+3, composer 3, status 1, chat border 2
	chatHeight := height - 3 - (maxNotices + 3) - 3 - 1 - 2
	if chatHeight < 3 {
		chatHeight = 3
	}
	m.viewport.Width = max(20, width-4)
	m.viewport.Height = chatHeight
	m.input.Width = max(10, width-8)
	m.dirty = true
}

func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(RenderMessages(m.mem.Messages(m.opts.ChannelID), m.viewport.Width))
	if atBottom {
		m.viewport.GotoBottom()
	}
	m.dirty = false
}

func (m *Model) statusLine() string {
	running := len(m.sup.List())
	parts := []string{fmt.Sprintf("%d running", running)}
	if running > 0 {
		parts[0] = m.spin.View() + " " + parts[0]
	}
	if m.err != nil {
		parts = append(parts, fmt.Sprintf("Error: %v", m.err))
	}
	parts = append(parts, "Enter run • PgUp/PgDn scroll • help • Ctrl+C quit")
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D7A85")).
		Padding(0, 1).
		Width(max(20, m.width)).
		Render(strings.Join(parts, " • "))
}

func renderHeader(channel string, width int) string {
	left := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Render("procrelay")
	right := lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).Render("#" + channel)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7D56F4")).
		Padding(0, 1).
		Width(max(20, width-2)).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.NewStyle().PaddingLeft(2).Render(right)))
}

func renderPane(title string, body string, width int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#5E6472")).
		Padding(0, 1)
	if width > 2 {
		style = style.Width(width - 2)
	}
	content := body
	if strings.TrimSpace(title) != "" {
		titleText := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Render(title)
		content = lipgloss.JoinVertical(lipgloss.Left, titleText, body)
	}
	return style.Render(content)
}
