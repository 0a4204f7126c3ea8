package termbuf

import (
	"strings"
	"sync"
	"testing"
)

func TestBuffer_CarriageReturnOverwritesFromLineStart(t *testing.T) {
	cases := []struct {
		name   string
		writes []string
		want   string
		cursor int
	}{
		{name: "overwrite keeps tail", writes: []string{"abc\rXY"}, want: "XYc", cursor: 2},
		{name: "second line only", writes: []string{"ab\ncd", "\ref"}, want: "ab\nef", cursor: 5},
		{name: "second line keeps tail", writes: []string{"ab\ncde", "\rXY"}, want: "ab\nXYe", cursor: 5},
		{name: "newline after rewind appends", writes: []string{"abc\rX\nY"}, want: "Xbc\nY", cursor: 5},
		{name: "crlf", writes: []string{"one\r\ntwo\r\n"}, want: "one\ntwo\n", cursor: 8},
		{name: "progress bar", writes: []string{"\r*", "\r**", "\r***", "\n"}, want: "***\n", cursor: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New(0)
			for _, w := range tc.writes {
				b.WriteString(w)
			}
			if got := b.String(); got != tc.want {
				t.Fatalf("String() = %q, want %q", got, tc.want)
			}
			if got := b.Cursor(); got != tc.cursor {
				t.Fatalf("Cursor() = %d, want %d", got, tc.cursor)
			}
			if b.Cursor() > b.Len() {
				t.Fatalf("cursor %d beyond length %d", b.Cursor(), b.Len())
			}
		})
	}
}

func TestBuffer_AppendReportsChange(t *testing.T) {
	b := New(0)
	if !b.Append('a') {
		t.Fatalf("append to empty buffer must change it")
	}
	if b.Append('\r') {
		t.Fatalf("carriage return alone must not change content")
	}
	if b.Append('a') {
		t.Fatalf("overwriting with the same rune must not change content")
	}
	if !b.Append('b') {
		t.Fatalf("appending past the end must change content")
	}
	if b.WriteString("\rab") {
		t.Fatalf("identical redraw must not change content")
	}
	if !b.WriteString("\rac") {
		t.Fatalf("different redraw must change content")
	}
}

func TestBuffer_HistoryCapDropsWholeLines(t *testing.T) {
	b := New(8)
	b.WriteString("aaa\nbbb\nccc\n")
	if got := b.String(); got != "bbb\nccc\n" {
		t.Fatalf("String() = %q", got)
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped() = %d, want 4", got)
	}
	if b.Cursor() != b.Len() {
		t.Fatalf("cursor %d should sit at end %d", b.Cursor(), b.Len())
	}
}

func TestBuffer_ConcurrentAppendAndSnapshot(t *testing.T) {
	b := New(0)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			b.Append('x')
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s := b.String()
			if strings.Trim(s, "x") != "" {
				t.Errorf("snapshot contains foreign runes: %q", s)
				return
			}
		}
	}()
	wg.Wait()
	if b.Len() != 2000 {
		t.Fatalf("Len() = %d, want 2000", b.Len())
	}
}
