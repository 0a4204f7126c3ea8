package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"procrelay/internal/chunker"
	"procrelay/internal/events"
	"procrelay/internal/logger"
	"procrelay/internal/relay"
	"procrelay/internal/report"
	"procrelay/internal/transport"
)

var log = logger.Named("supervisor")

var (
	ErrSpawnFailed    = errors.New("spawn failed")
	ErrUnknownProcess = errors.New("unknown process")
	ErrNoStream       = errors.New("stream is not relayed")
)

const (
	DefaultDrainTimeout = 2 * time.Second
	DefaultKillGrace    = 5 * time.Second

	maxNameLength = 100
)

// Options configure a Supervisor.
type Options struct {
	Transport transport.Transport
	// Reporter receives spawn and relay failures; nil only logs them.
	Reporter *report.Reporter
	// ReportChannelID is where relay failures are reported; a failed relay
	// cannot report into its own channel.
	ReportChannelID string
	Events          *events.Bus

	// Relay holds the defaults of every relay. Title, ChannelID,
	// Transport, Color and OnError are set per stream.
	Relay relay.Options

	// DrainTimeout bounds how long output may stay open after the process
	// exited, e.g. held by a background descendant.
	DrainTimeout time.Duration
	// KillGrace is how long Shutdown waits before force-killing.
	KillGrace time.Duration
}

// SpawnSpec describes one process to spawn.
type SpawnSpec struct {
	Args []string
	// Name defaults to the base name of Args[0].
	Name string
	// ChannelID receives the output; empty discards it.
	ChannelID string
	OnExit    func(code int)
	Verbose   bool
	AutoFlush bool
	// Windowed shows only the trailing lines configured in Options.Relay.
	Windowed bool
	PTY      bool
	Dir      string
	Env      []string
}

// ShellArgs runs line through shell.
func ShellArgs(shell, line string) []string {
	if shell == "" {
		shell = "sh"
	}
	return []string{shell, "-c", line}
}

type Supervisor struct {
	opts Options

	mu         sync.Mutex
	slots      []*Process
	terminated map[int]bool
}

func New(opts Options) *Supervisor {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	return &Supervisor{opts: opts, terminated: map[int]bool{}}
}

// Spawn starts a process and returns its internal pid. A failed start is
// reported and allocates no pid.
func (s *Supervisor) Spawn(ctx context.Context, spec SpawnSpec) (int, error) {
	name := spec.Name
	if len(spec.Args) == 0 || strings.TrimSpace(spec.Args[0]) == "" {
		return 0, s.spawnFailed(ctx, spec, name, errors.New("empty command"))
	}
	if name == "" {
		name = filepath.Base(spec.Args[0])
	}
	name = chunker.Snippet(name, maxNameLength)

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	p := &Process{
		RunID:     uuid.NewString(),
		Name:      name,
		Args:      append([]string(nil), spec.Args...),
		ChannelID: spec.ChannelID,
		PTY:       spec.PTY,
		cmd:       cmd,
		verbose:   spec.Verbose,
		onExit:    spec.OnExit,
		done:      make(chan struct{}),
	}

	var (
		streams []stream
		err     error
	)
	if spec.PTY {
		streams, err = p.startPTY(spec.AutoFlush)
	} else {
		streams, err = p.startPipes(spec.ChannelID != "", spec.AutoFlush)
	}
	if err != nil {
		return 0, s.spawnFailed(ctx, spec, name, err)
	}
	p.OSPID = cmd.Process.Pid
	p.Started = time.Now()
	p.lastActive = p.Started

	// Reserve the slot now; it is published once the relays are wired.
	s.mu.Lock()
	p.PID = len(s.slots) + 1
	s.slots = append(s.slots, nil)
	s.mu.Unlock()

	entry := log.WithFields(logger.Fields{"pid": p.PID, "os_pid": p.OSPID, "run_id": p.RunID})
	entry.Infof("spawned %s", quoteArgs(p.Args))

	for _, st := range streams {
		p.readers = append(p.readers, st.r)
	}
	if p.ChannelID != "" {
		for _, st := range streams {
			p.streams = append(p.streams, st.name)
			p.relays = append(p.relays, s.newRelay(p, st.name, spec.Windowed))
		}
	}
	s.mu.Lock()
	s.slots[p.PID-1] = p
	s.mu.Unlock()

	if p.ChannelID != "" {
		if p.verbose {
			s.notify(ctx, p, startedBlock(p))
		}
		for i, st := range streams {
			p.relays[i].Start(st.r)
		}
	} else {
		for _, st := range streams {
			go func(r io.Reader) { _, _ = io.Copy(io.Discard, r) }(st.r)
		}
	}

	s.publish(events.Event{
		Type:  events.EventProcessStarted,
		PID:   p.PID,
		RunID: p.RunID,
		Payload: events.ProcessStarted{
			Name:      p.Name,
			Args:      p.Args,
			OSPID:     p.OSPID,
			ChannelID: p.ChannelID,
		},
	})
	go s.waitLoop(p)
	return p.PID, nil
}

func (s *Supervisor) newRelay(p *Process, stream string, windowed bool) *relay.Relay {
	opts := s.opts.Relay
	opts.Title = fmt.Sprintf("[%d] %s %s", p.PID, p.Name, stream)
	opts.ChannelID = p.ChannelID
	opts.Transport = s.opts.Transport
	opts.Color = runningColor(stream)
	if !windowed {
		opts.Window = 0
	}
	opts.OnError = func(err error) { s.relayFailed(p, stream, err) }
	return relay.New(opts)
}

func (s *Supervisor) waitLoop(p *Process) {
	err := p.cmd.Wait()
	code := exitCode(err)
	elapsed := time.Since(p.Started)
	p.setExited(code)

	entry := log.WithFields(logger.Fields{"pid": p.PID, "os_pid": p.OSPID, "run_id": p.RunID})
	entry.Infof("exited with code %d after %s", code, elapsed.Round(time.Millisecond))

	s.drain(p)

	ctx := context.Background()
	for i, r := range p.relays {
		if err := r.SetColor(ctx, exitColor(p.streams[i], code == 0)); err != nil && !errors.Is(err, relay.ErrChannelUnwritable) {
			entry.Warnf("final flush of %s: %v", p.streams[i], err)
		}
	}

	s.mu.Lock()
	terminated := s.terminated[p.PID]
	delete(s.terminated, p.PID)
	s.mu.Unlock()

	if p.ChannelID != "" && (p.verbose || code != 0) {
		s.notify(ctx, p, exitedBlock(p, code, terminated, elapsed))
	}
	_ = p.stdin.Close()

	s.mu.Lock()
	s.slots[p.PID-1] = nil
	s.mu.Unlock()

	s.publish(events.Event{
		Type:  events.EventProcessExited,
		PID:   p.PID,
		RunID: p.RunID,
		Payload: events.ProcessExited{
			Name:       p.Name,
			ExitCode:   code,
			Terminated: terminated,
			Duration:   elapsed,
		},
	})
	close(p.done)
	if p.onExit != nil {
		p.onExit(code)
	}
}

// drain waits for every relay to reach end of data and finish its last
// flush. Output still open after the drain timeout is closed from our side.
func (s *Supervisor) drain(p *Process) {
	timer := time.NewTimer(s.opts.DrainTimeout)
	defer timer.Stop()
	closed := false
	for _, r := range p.relays {
		select {
		case <-r.ReaderDone():
		case <-timer.C:
			if !closed {
				log.WithField("pid", p.PID).Warnf("output still open %s after exit; closing it", s.opts.DrainTimeout)
				closeAll(p.readers)
				closed = true
			}
			<-r.ReaderDone()
		}
	}
	for _, r := range p.relays {
		<-r.Done()
	}
	closeAll(p.readers)
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}

// Kill terminates a live process, or force-kills it. It reports whether a
// live process was found.
func (s *Supervisor) Kill(pid int, force bool) bool {
	p := s.get(pid)
	if p == nil || p.hasExited() {
		return false
	}
	s.mu.Lock()
	s.terminated[pid] = true
	s.mu.Unlock()

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := p.signal(sig); err != nil {
		log.WithField("pid", pid).Warnf("signal %v: %v", sig, err)
	}
	return true
}

// FindLastActive returns the live process in channelID that was spawned or
// written to most recently.
func (s *Supervisor) FindLastActive(channelID string) (int, bool) {
	var (
		best     *Process
		bestTime time.Time
	)
	for _, p := range s.live() {
		if p.ChannelID != channelID || p.hasExited() {
			continue
		}
		p.mu.Lock()
		t := p.lastActive
		p.mu.Unlock()
		if best == nil || !t.Before(bestTime) {
			best, bestTime = p, t
		}
	}
	if best == nil {
		return 0, false
	}
	return best.PID, true
}

func (s *Supervisor) Stdin(pid int) (*Stdin, error) {
	p := s.get(pid)
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	return p.stdin, nil
}

// Stdout returns the relay of the process's standard output, which is the
// terminal relay for a PTY process.
func (s *Supervisor) Stdout(pid int) (*relay.Relay, error) {
	p := s.get(pid)
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	name := StreamStdout
	if p.PTY {
		name = StreamTTY
	}
	if r := p.relayFor(name); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: [%d] %s", ErrNoStream, pid, name)
}

func (s *Supervisor) Stderr(pid int) (*relay.Relay, error) {
	p := s.get(pid)
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	if r := p.relayFor(StreamStderr); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: [%d] %s", ErrNoStream, pid, StreamStderr)
}

// Wait blocks until pid has exited and returns its exit code.
func (s *Supervisor) Wait(ctx context.Context, pid int) (int, error) {
	p := s.get(pid)
	if p == nil {
		return 0, fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// List describes the live processes ordered by pid.
func (s *Supervisor) List() []Info {
	procs := s.live()
	out := make([]Info, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.info())
	}
	return out
}

// Lookup finds a live process by pid or by fuzzy name match.
func (s *Supervisor) Lookup(query string) (Info, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Info{}, false
	}
	if pid, err := strconv.Atoi(query); err == nil {
		if p := s.get(pid); p != nil {
			return p.info(), true
		}
		return Info{}, false
	}
	procs := s.live()
	names := make([]string, len(procs))
	for i, p := range procs {
		names[i] = p.Name
	}
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return Info{}, false
	}
	return procs[matches[0].Index].info(), true
}

// Shutdown terminates every live process, force-kills the ones still alive
// after the kill grace period and waits for all of them to finish.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	procs := s.live()
	for _, p := range procs {
		s.Kill(p.PID, false)
	}
	grace := time.NewTimer(s.opts.KillGrace)
	defer grace.Stop()
	forced := false
	for _, p := range procs {
		for waiting := true; waiting; {
			select {
			case <-p.done:
				waiting = false
			case <-grace.C:
				if !forced {
					forced = true
					for _, q := range procs {
						s.Kill(q.PID, true)
					}
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (s *Supervisor) get(pid int) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pid < 1 || pid > len(s.slots) {
		return nil
	}
	return s.slots[pid-1]
}

func (s *Supervisor) live() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Process, 0, len(s.slots))
	for _, p := range s.slots {
		if p != nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (s *Supervisor) notify(ctx context.Context, p *Process, b transport.Block) {
	if _, err := s.opts.Transport.Send(ctx, p.ChannelID, transport.BlockMessage(b)); err != nil {
		log.WithField("pid", p.PID).Warnf("send %q: %v", b.Title, err)
	}
}

func (s *Supervisor) spawnFailed(ctx context.Context, spec SpawnSpec, name string, cause error) error {
	err := fmt.Errorf("%w: %s: %v", ErrSpawnFailed, quoteArgs(spec.Args), cause)
	log.Errorf("%v", err)
	if s.opts.Reporter == nil {
		return err
	}
	channel := spec.ChannelID
	if channel == "" {
		channel = s.opts.ReportChannelID
	}
	if channel != "" {
		s.opts.Reporter.Report(ctx, channel, "Cannot start process", chunker.Snippet(name, maxNameLength), cause)
	}
	return err
}

func (s *Supervisor) relayFailed(p *Process, stream string, err error) {
	log.WithFields(logger.Fields{"pid": p.PID, "run_id": p.RunID}).Errorf("%s relay stopped: %v", stream, err)
	if s.opts.Reporter != nil && s.opts.ReportChannelID != "" && s.opts.ReportChannelID != p.ChannelID {
		desc := fmt.Sprintf("[%d] %s %s", p.PID, p.Name, stream)
		s.opts.Reporter.Report(context.Background(), s.opts.ReportChannelID, "Output relay stopped", desc, err)
	}
	s.publish(events.Event{
		Type:    events.EventRelayFailed,
		PID:     p.PID,
		RunID:   p.RunID,
		Payload: events.RelayFailed{Stream: stream, Error: err.Error()},
	})
}

func (s *Supervisor) publish(evt events.Event) {
	if s.opts.Events == nil {
		return
	}
	if err := s.opts.Events.Publish(evt); err != nil && !errors.Is(err, events.ErrEventDropped) {
		log.Debugf("publish %s: %v", evt.Type, err)
	}
}
