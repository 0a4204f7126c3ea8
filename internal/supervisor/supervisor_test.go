package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"procrelay/internal/events"
	"procrelay/internal/relay"
	"procrelay/internal/report"
	"procrelay/internal/transport"
)

func newTestSupervisor(t *testing.T, mutate func(*Options)) (*Supervisor, *transport.Memory) {
	t.Helper()
	mem := transport.NewMemory()
	opts := Options{
		Transport: mem,
		Relay: relay.Options{
			QuietPeriod: 150 * time.Millisecond,
			Window:      20,
		},
		DrainTimeout: time.Second,
		KillGrace:    time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, mem
}

func spawnSh(t *testing.T, s *Supervisor, spec SpawnSpec, script string) (int, <-chan int) {
	t.Helper()
	exited := make(chan int, 1)
	spec.Args = ShellArgs("sh", script)
	spec.OnExit = func(code int) { exited <- code }
	pid, err := s.Spawn(context.Background(), spec)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return pid, exited
}

func waitExit(t *testing.T, exited <-chan int) int {
	t.Helper()
	select {
	case code := <-exited:
		return code
	case <-time.After(10 * time.Second):
		t.Fatalf("process did not exit")
		return 0
	}
}

func findByTitle(mem *transport.Memory, channel, prefix string) []transport.Block {
	var out []transport.Block
	for _, m := range mem.Messages(channel) {
		for _, b := range m.Message.Blocks {
			if strings.HasPrefix(b.Title, prefix) {
				out = append(out, b)
			}
		}
	}
	return out
}

func TestSpawn_TwoSettlementsAndFinalColoredFlush(t *testing.T) {
	s, mem := newTestSupervisor(t, nil)

	_, exited := spawnSh(t, s, SpawnSpec{ChannelID: "chan"}, `printf '1\n'; sleep 0.6; printf '2\n'`)
	if code := waitExit(t, exited); code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	ops := mem.Ops()
	if len(ops) != 3 {
		t.Fatalf("expected send + edit + final edit, got %d ops: %+v", len(ops), ops)
	}
	wantKinds := []transport.OpKind{transport.OpSend, transport.OpEdit, transport.OpEdit}
	wantText := []string{"1\n", "1\n2\n", "1\n2\n"}
	for i, op := range ops {
		b := op.Message.Blocks[0]
		if op.Kind != wantKinds[i] || b.Description != wantText[i] {
			t.Fatalf("op %d = %s %q, want %s %q", i, op.Kind, b.Description, wantKinds[i], wantText[i])
		}
		if b.Title != "[1] sh stdout" {
			t.Fatalf("op %d title = %q", i, b.Title)
		}
	}
	if c := ops[1].Message.Blocks[0].Color; c != ColorDefault {
		t.Fatalf("running color = %#x", c)
	}
	if c := ops[2].Message.Blocks[0].Color; c != ColorSuccess {
		t.Fatalf("final color = %#x, want success", c)
	}
}

func TestSpawn_VerboseFailureNotifications(t *testing.T) {
	s, mem := newTestSupervisor(t, nil)

	_, exited := spawnSh(t, s, SpawnSpec{ChannelID: "chan", Verbose: true}, `echo oops >&2; exit 3`)
	if code := waitExit(t, exited); code != 3 {
		t.Fatalf("exit code = %d", code)
	}

	msgs := mem.Messages("chan")
	if len(msgs) != 3 {
		t.Fatalf("expected started, stderr and finished cards, got %d", len(msgs))
	}
	started := msgs[0].Message.Blocks[0]
	if started.Title != "Process [1] started" || started.Color != ColorStarted {
		t.Fatalf("unexpected started card %+v", started)
	}
	if !strings.Contains(started.Description, "**Internal PID:** 1") {
		t.Fatalf("started card lacks pid: %q", started.Description)
	}
	stderr := msgs[1].Message.Blocks[0]
	if stderr.Title != "[1] sh stderr" || stderr.Description != "oops\n" || stderr.Color != ColorErrorStderr {
		t.Fatalf("unexpected stderr card %+v", stderr)
	}
	finished := msgs[2].Message.Blocks[0]
	if finished.Title != "Process [1] finished" || finished.Color != ColorError {
		t.Fatalf("unexpected finished card %+v", finished)
	}
	if !strings.Contains(finished.Description, "**Exit code:** 3") {
		t.Fatalf("finished card lacks exit code: %q", finished.Description)
	}
}

func TestSpawn_QuietSuccessHasNoNotification(t *testing.T) {
	s, mem := newTestSupervisor(t, nil)

	_, exited := spawnSh(t, s, SpawnSpec{ChannelID: "chan"}, `exit 0`)
	waitExit(t, exited)
	if n := len(mem.Messages("chan")); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}

func TestKill_ReportsTerminated(t *testing.T) {
	s, mem := newTestSupervisor(t, nil)

	pid, exited := spawnSh(t, s, SpawnSpec{ChannelID: "chan"}, `sleep 10`)
	if !s.Kill(pid, false) {
		t.Fatalf("Kill found no live process")
	}
	code := waitExit(t, exited)
	if code == 0 {
		t.Fatalf("killed process exited 0")
	}
	if s.Kill(pid, true) {
		t.Fatalf("Kill after exit should report no live process")
	}
	cards := findByTitle(mem, "chan", "Process [1] terminated")
	if len(cards) != 1 {
		t.Fatalf("expected a terminated card, got %+v", mem.Messages("chan"))
	}
}

func TestSpawn_PidsAreSequentialAndNotReused(t *testing.T) {
	s, _ := newTestSupervisor(t, nil)

	for want := 1; want <= 2; want++ {
		pid, exited := spawnSh(t, s, SpawnSpec{}, `true`)
		if pid != want {
			t.Fatalf("pid = %d, want %d", pid, want)
		}
		waitExit(t, exited)
	}
	if _, err := s.Stdin(1); !errors.Is(err, ErrUnknownProcess) {
		t.Fatalf("exited pid should be unknown, got %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatalf("no process should be listed")
	}
}

func TestSpawn_FailureAllocatesNoPid(t *testing.T) {
	s, mem := newTestSupervisor(t, func(o *Options) {
		o.Reporter = report.New(o.Transport, time.Minute)
	})

	_, err := s.Spawn(context.Background(), SpawnSpec{Args: []string{"/nonexistent/procrelay-test"}, ChannelID: "chan"})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("Spawn error = %v, want ErrSpawnFailed", err)
	}
	if cards := findByTitle(mem, "chan", "Cannot start process"); len(cards) != 1 {
		t.Fatalf("spawn failure was not reported: %+v", mem.Messages("chan"))
	}
	if _, err := s.Spawn(context.Background(), SpawnSpec{}); !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("empty command error = %v", err)
	}

	pid, exited := spawnSh(t, s, SpawnSpec{}, `true`)
	if pid != 1 {
		t.Fatalf("first successful spawn got pid %d", pid)
	}
	waitExit(t, exited)
}

func TestStdinAndFindLastActive(t *testing.T) {
	s, _ := newTestSupervisor(t, nil)

	first, exited1 := spawnSh(t, s, SpawnSpec{ChannelID: "chan", AutoFlush: true}, `cat`)
	second, exited2 := spawnSh(t, s, SpawnSpec{ChannelID: "chan", AutoFlush: true}, `cat`)
	if pid, ok := s.FindLastActive("chan"); !ok || pid != second {
		t.Fatalf("FindLastActive = %d, %v; want %d", pid, ok, second)
	}
	if _, ok := s.FindLastActive("elsewhere"); ok {
		t.Fatalf("no process lives in another channel")
	}

	in, err := s.Stdin(first)
	if err != nil {
		t.Fatalf("Stdin: %v", err)
	}
	if err := in.WriteLine("hello"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if pid, _ := s.FindLastActive("chan"); pid != first {
		t.Fatalf("stdin write should make pid %d the last active, got %d", first, pid)
	}

	out, err := s.Stdout(first)
	if err != nil {
		t.Fatalf("Stdout: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for out.Snapshot() != "hello\n" {
		if time.Now().After(deadline) {
			t.Fatalf("echoed input never arrived, got %q", out.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = in.Close()
	if code := waitExit(t, exited1); code != 0 {
		t.Fatalf("cat exit code = %d", code)
	}
	s.Kill(second, true)
	waitExit(t, exited2)
}

func TestLookupAndList(t *testing.T) {
	s, _ := newTestSupervisor(t, nil)

	spawnSh(t, s, SpawnSpec{Name: "long-sleeper"}, `sleep 5`)
	spawnSh(t, s, SpawnSpec{Name: "builder"}, `sleep 5`)

	list := s.List()
	if len(list) != 2 || list[0].PID != 1 || list[1].Name != "builder" {
		t.Fatalf("unexpected list %+v", list)
	}
	if info, ok := s.Lookup("slp"); !ok || info.Name != "long-sleeper" {
		t.Fatalf("fuzzy lookup = %+v, %v", info, ok)
	}
	if info, ok := s.Lookup("2"); !ok || info.Name != "builder" {
		t.Fatalf("pid lookup = %+v, %v", info, ok)
	}
	if _, ok := s.Lookup("zzz"); ok {
		t.Fatalf("lookup should miss")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatalf("Shutdown left processes behind")
	}
}

func TestSpawn_WithoutChannelDiscardsOutput(t *testing.T) {
	s, mem := newTestSupervisor(t, nil)

	pid, exited := spawnSh(t, s, SpawnSpec{}, `cat`)
	if _, err := s.Stdout(pid); !errors.Is(err, ErrNoStream) {
		t.Fatalf("Stdout without channel = %v", err)
	}
	in, _ := s.Stdin(pid)
	_ = in.WriteLine("dropped")
	_ = in.Close()
	if code := waitExit(t, exited); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(mem.Ops()) != 0 {
		t.Fatalf("nothing should be sent without a channel")
	}
}

func TestSpawn_PTY(t *testing.T) {
	s, mem := newTestSupervisor(t, nil)

	exited := make(chan int, 1)
	_, err := s.Spawn(context.Background(), SpawnSpec{
		Args:      ShellArgs("sh", `printf 'tty\n'`),
		ChannelID: "chan",
		PTY:       true,
		OnExit:    func(code int) { exited <- code },
	})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	waitExit(t, exited)

	cards := findByTitle(mem, "chan", "[1] sh tty")
	if len(cards) != 1 || cards[0].Description != "tty\n" || cards[0].Color != ColorSuccess {
		t.Fatalf("unexpected tty cards %+v", cards)
	}
}

func TestEventsAndRelayFailure(t *testing.T) {
	bus := events.NewBus(16)
	sub := bus.Subscribe()
	s, mem := newTestSupervisor(t, func(o *Options) {
		o.Events = bus
		o.Reporter = report.New(o.Transport, time.Minute)
		o.ReportChannelID = "log"
	})
	mem.SetReadOnly("ro", true)

	pid, exited := spawnSh(t, s, SpawnSpec{ChannelID: "ro"}, `echo lost`)
	if code := waitExit(t, exited); code != 0 {
		t.Fatalf("relay failure must not affect the process, exit %d", code)
	}

	var got []events.EventType
	for len(got) < 3 {
		select {
		case ev := <-sub:
			if ev.PID != pid {
				t.Fatalf("event for pid %d", ev.PID)
			}
			got = append(got, ev.Type)
		case <-time.After(3 * time.Second):
			t.Fatalf("missing events, got %v", got)
		}
	}
	want := []events.EventType{events.EventProcessStarted, events.EventRelayFailed, events.EventProcessExited}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if cards := findByTitle(mem, "log", "Output relay stopped"); len(cards) != 1 {
		t.Fatalf("relay failure not reported: %+v", mem.Messages("log"))
	}
}
