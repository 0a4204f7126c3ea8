package events

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"procrelay/internal/logger"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewBus(4)
	a, b := bus.Subscribe(), bus.Subscribe()

	ev := Event{Type: EventProcessStarted, PID: 1, Payload: ProcessStarted{Name: "make"}}
	if err := bus.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, ch := range []<-chan Event{a, b} {
		got := <-ch
		if got.Type != EventProcessStarted || got.PID != 1 {
			t.Fatalf("subscriber %d got %+v", i, got)
		}
		if got.Timestamp.IsZero() {
			t.Fatalf("subscriber %d got event without timestamp", i)
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()

	if err := bus.Publish(Event{Type: EventProcessExited}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := bus.Publish(Event{Type: EventProcessExited}); !errors.Is(err, ErrEventDropped) {
		t.Fatalf("expected ErrEventDropped, got %v", err)
	}
	if len(ch) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(ch))
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Fatalf("subscription should be closed")
	}
	if _, ok := <-bus.Subscribe(); ok {
		t.Fatalf("late subscription should be closed")
	}
	if err := bus.Publish(Event{Type: EventRelayFailed}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("closed bus should have no subscribers")
	}
}

func TestBusLogsJSONPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	bus := NewBus(1)
	bus.SetLogger(newBufferLogger(buf))

	_ = bus.Publish(Event{Type: EventProcessExited, PID: 3, Payload: ProcessExited{Name: "sleep", ExitCode: 2}})

	out := buf.String()
	for _, want := range []string{"[events]", "event=process.exited", "pid=3", `"exit_code":2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log, got %q", want, out)
		}
	}
}

func TestEncodePayload(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string is raw", "plain", "plain"},
		{"struct is json", RelayFailed{Stream: "stderr", Error: "boom"}, `{"stream":"stderr","error":"boom"}`},
	}
	for _, tc := range cases {
		if got := encodePayload(tc.in); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	entry, closer := NewFileLogger(path)
	if closer == nil {
		t.Fatalf("expected a closer for a file logger")
	}
	defer closer.Close()
	if entry == nil {
		t.Fatalf("expected a logger entry")
	}
	if fallback, c := NewFileLogger(""); fallback != log || c != nil {
		t.Fatalf("empty path should fall back to the package logger")
	}
}

func newBufferLogger(buf *bytes.Buffer) *logger.LogEntry {
	l := logrus.New()
	l.SetFormatter(logger.PlainFormatter{})
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l).WithField("component", "events")
}
