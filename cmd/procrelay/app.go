package main

import (
	"context"
	"io"
	"time"

	"procrelay/internal/config"
	"procrelay/internal/events"
	"procrelay/internal/relay"
	"procrelay/internal/report"
	"procrelay/internal/supervisor"
	"procrelay/internal/transport"
)

const (
	defaultChannel = "local"
	eventBuffer    = 64
)

// app wires one supervisor to an in-memory channel store.
type app struct {
	mem     *transport.Memory
	bus     *events.Bus
	sup     *supervisor.Supervisor
	closers []io.Closer
}

func newApp(cfg config.Config, channelID string) *app {
	a := &app{
		mem: transport.NewMemory(),
		bus: events.NewBus(eventBuffer),
	}
	entry, closer := events.NewFileLogger(events.DefaultLogPath)
	a.bus.SetLogger(entry)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.sup = supervisor.New(supervisor.Options{
		Transport:       a.mem,
		Reporter:        report.New(a.mem, cfg.Report.RepeatPeriod.Duration),
		ReportChannelID: channelID,
		Events:          a.bus,
		Relay:           relayOptions(cfg),
		DrainTimeout:    cfg.Supervisor.DrainTimeout.Duration,
		KillGrace:       cfg.Supervisor.KillGrace.Duration,
	})
	return a
}

func relayOptions(cfg config.Config) relay.Options {
	return relay.Options{
		QuietPeriod:   cfg.Relay.QuietPeriod.Duration,
		MaxDelay:      cfg.Relay.MaxDelay.Duration,
		Window:        cfg.Relay.Window,
		LineWidth:     cfg.Relay.LineWidth,
		Fence:         cfg.Relay.Fence,
		FenceLanguage: cfg.Relay.FenceLanguage,
		StripANSI:     cfg.Relay.StripANSI,
		MaxHistory:    cfg.Relay.MaxHistory,
		MaxBlocks:     cfg.Transport.MaxMessages,
		Timeout:       cfg.Transport.Timeout.Duration,
	}
}

func (a *app) Close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.sup.Shutdown(ctx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
	a.bus.Close()
	for _, c := range a.closers {
		_ = c.Close()
	}
}
