package termbuf

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Window returns the tail of text covering at most lines visual lines. A
// logical line wider than width cells wraps into several visual lines;
// width <= 0 disables wrapping. A trailing newline does not open a line.
func Window(text string, lines, width int) string {
	if lines <= 0 || text == "" {
		return text
	}
	body, suffix := text, ""
	if strings.HasSuffix(body, "\n") {
		body, suffix = body[:len(body)-1], "\n"
	}
	logical := strings.Split(body, "\n")

	count := 0
	for i := len(logical) - 1; i >= 0; i-- {
		rows := rowStarts(logical[i], width)
		if count+len(rows) >= lines {
			start := rows[len(rows)-(lines-count)]
			tail := append([]string{logical[i][start:]}, logical[i+1:]...)
			return strings.Join(tail, "\n") + suffix
		}
		count += len(rows)
	}
	return text
}

// rowStarts returns the byte offsets where each wrapped row of line begins.
func rowStarts(line string, width int) []int {
	rows := []int{0}
	if width <= 0 {
		return rows
	}
	col := 0
	for idx, r := range line {
		w := runewidth.RuneWidth(r)
		if col > 0 && col+w > width {
			rows = append(rows, idx)
			col = 0
		}
		col += w
	}
	return rows
}
