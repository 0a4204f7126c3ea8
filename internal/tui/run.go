package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const shutdownTimeout = 10 * time.Second

// Run starts the Bubble Tea program; quitting stops every process first.
func Run(opts Options) error {
	program := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
