package main

import (
	"fmt"
	"os"
	"time"

	"procrelay/internal/config"
	"procrelay/internal/tui"
)

func uiMain(cfg config.Config) int {
	a := newApp(cfg, defaultChannel)
	defer a.Close(cfg.Supervisor.KillGrace.Duration + time.Second)

	err := tui.Run(tui.Options{
		Supervisor: a.sup,
		Memory:     a.mem,
		Events:     a.bus,
		ChannelID:  defaultChannel,
		Shell:      cfg.Supervisor.Shell,
		Verbose:    cfg.Supervisor.Verbose,
		AutoFlush:  cfg.Supervisor.AutoFlush,
		Windowed:   cfg.Relay.Window > 0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "program exit: %v\n", err)
		return 1
	}
	return 0
}
