package supervisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"procrelay/internal/relay"
)

// Process is one spawned OS process. Its exported fields are fixed at spawn.
type Process struct {
	PID       int
	RunID     string
	Name      string
	Args      []string
	OSPID     int
	ChannelID string
	PTY       bool
	Started   time.Time

	cmd     *exec.Cmd
	stdin   *Stdin
	relays  []*relay.Relay
	streams []string
	readers []io.Closer
	verbose bool
	onExit  func(code int)
	done    chan struct{}

	mu         sync.Mutex
	lastActive time.Time
	exited     bool
	exitCode   int
}

// Info is a point-in-time view of a live process.
type Info struct {
	PID        int
	RunID      string
	Name       string
	Args       []string
	OSPID      int
	ChannelID  string
	PTY        bool
	Started    time.Time
	LastActive time.Time
	// Output is the number of buffered runes across the process's relays.
	Output int
}

type stream struct {
	name string
	r    io.ReadCloser
}

func (p *Process) info() Info {
	p.mu.Lock()
	last := p.lastActive
	p.mu.Unlock()
	out := 0
	for _, r := range p.relays {
		out += r.Size()
	}
	return Info{
		PID:        p.PID,
		RunID:      p.RunID,
		Name:       p.Name,
		Args:       append([]string(nil), p.Args...),
		OSPID:      p.OSPID,
		ChannelID:  p.ChannelID,
		PTY:        p.PTY,
		Started:    p.Started,
		LastActive: last,
		Output:     out,
	}
}

func (p *Process) touch() {
	p.mu.Lock()
	p.lastActive = time.Now()
	p.mu.Unlock()
}

func (p *Process) setExited(code int) {
	p.mu.Lock()
	p.exited = true
	p.exitCode = code
	p.mu.Unlock()
}

func (p *Process) hasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *Process) relayFor(name string) *relay.Relay {
	for i, s := range p.streams {
		if s == name {
			return p.relays[i]
		}
	}
	return nil
}

// startPipes starts the command with its own pipe per output stream. The
// parent's write ends are closed right after start so end of data arrives
// as soon as the child and its descendants close theirs.
func (p *Process) startPipes(withOutput, autoFlush bool) ([]stream, error) {
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	var (
		streams []stream
		writers []*os.File
	)
	cleanup := func() {
		for _, s := range streams {
			_ = s.r.Close()
		}
		for _, w := range writers {
			_ = w.Close()
		}
	}
	if withOutput {
		for _, name := range []string{StreamStdout, StreamStderr} {
			r, w, err := os.Pipe()
			if err != nil {
				cleanup()
				_ = stdin.Close()
				return nil, err
			}
			streams = append(streams, stream{name: name, r: r})
			writers = append(writers, w)
		}
		p.cmd.Stdout, p.cmd.Stderr = writers[0], writers[1]
	}
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	err = p.cmd.Start()
	for _, w := range writers {
		_ = w.Close()
	}
	writers = nil
	if err != nil {
		cleanup()
		return nil, err
	}
	p.stdin = newStdin(stdin, autoFlush, p.touch)
	return streams, nil
}

// startPTY runs the command on a pseudo-terminal; both output streams
// arrive merged on the master side.
func (p *Process) startPTY(autoFlush bool) ([]stream, error) {
	ptmx, err := pty.Start(p.cmd)
	if err != nil {
		return nil, err
	}
	p.stdin = newStdin(nopCloser{ptmx}, autoFlush, p.touch)
	return []stream{{name: StreamTTY, r: ptmx}}, nil
}

// signal delivers sig to the process group, falling back to the process.
func (p *Process) signal(sig syscall.Signal) error {
	if err := syscall.Kill(-p.OSPID, sig); err == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
