package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procrelay/internal/config"
	"procrelay/internal/supervisor"
	"procrelay/internal/tui"
)

type runArgs struct {
	verbose bool
	window  int
	tty     bool
	width   int
}

// runMain spawns one command, relays it into an in-memory channel and
// prints the channel once the command exits. The exit code is the child's.
func runMain(cfg config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var ra runArgs
	fs.BoolVar(&ra.verbose, "verbose", cfg.Supervisor.Verbose, "Announce start and exit")
	fs.IntVar(&ra.window, "window", 0, "Show only the last N lines (0 shows everything)")
	fs.BoolVar(&ra.tty, "tty", false, "Run on a pseudo-terminal")
	fs.IntVar(&ra.width, "width", 100, "Render width")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cmdArgs := fs.Args()
	if len(cmdArgs) == 0 {
		fmt.Fprintln(stderr, "usage: procrelay run [flags] -- command [args...]")
		return 2
	}
	if len(cmdArgs) == 1 {
		cmdArgs = supervisor.ShellArgs(cfg.Supervisor.Shell, cmdArgs[0])
	}

	if ra.window > 0 {
		cfg.Relay.Window = ra.window
	}
	a := newApp(cfg, defaultChannel)
	defer a.Close(cfg.Supervisor.KillGrace.Duration + time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exited := make(chan int, 1)
	pid, err := a.sup.Spawn(ctx, supervisor.SpawnSpec{
		Args:      cmdArgs,
		ChannelID: defaultChannel,
		OnExit:    func(code int) { exited <- code },
		Verbose:   ra.verbose,
		AutoFlush: cfg.Supervisor.AutoFlush,
		Windowed:  ra.window > 0,
		PTY:       ra.tty,
	})
	if err != nil {
		fmt.Fprintln(stdout, tui.RenderMessages(a.mem.Messages(defaultChannel), ra.width))
		fmt.Fprintf(stderr, "%v\n", err)
		return 127
	}

	var code int
	select {
	case code = <-exited:
	case <-ctx.Done():
		log.WithField("pid", pid).Info("interrupted; stopping process")
		a.sup.Kill(pid, false)
		code = <-exited
	}
	fmt.Fprintln(stdout, tui.RenderMessages(a.mem.Messages(defaultChannel), ra.width))
	return code
}
