package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestPlainFormatter_ComponentAndFieldOrdering(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name    string
		data    logrus.Fields
		message string
		want    string
	}{
		{
			name: "with component",
			data: logrus.Fields{
				"component": "relay",
				"caller":    "x.go:1",
				"relay":     "[1] make stdout",
				"flushes":   3,
			},
			message: "flushed",
			want:    "x.go:1 [2025-01-02T03:04:05Z] [INFO] [relay] flushed flushes=3 relay=[1] make stdout\n",
		},
		{
			name: "without component",
			data: logrus.Fields{
				"caller": "x.go:1",
				"pid":    2,
			},
			message: "spawned",
			want:    "x.go:1 [2025-01-02T03:04:05Z] [INFO] spawned pid=2\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := &logrus.Entry{
				Logger:  logrus.New(),
				Time:    ts,
				Level:   logrus.InfoLevel,
				Message: tc.message,
				Data:    tc.data,
			}
			out, err := (PlainFormatter{}).Format(entry)
			if err != nil {
				t.Fatalf("Format() error: %v", err)
			}
			if got := string(out); got != tc.want {
				t.Fatalf("unexpected format:\nwant: %q\ngot:  %q", tc.want, got)
			}
		})
	}
}

func TestSetupComponentFile_WritesComponentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.log")
	entry, closer, resolved, err := SetupComponentFile("relay", path)
	if err != nil {
		t.Fatalf("SetupComponentFile: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	entry.Info("hello")
	_ = closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "[relay] hello") {
		t.Fatalf("expected component line, got %q", string(data))
	}
}

func TestSetLevel(t *testing.T) {
	l := logrus.New()
	SetRoot(l)
	defer SetRoot(nil)

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", l.GetLevel())
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := SetLevel(""); err != nil {
		t.Fatalf("empty level should be ignored, got %v", err)
	}
}
