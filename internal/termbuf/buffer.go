// Package termbuf emulates the visible text of a scrolling terminal.
package termbuf

import (
	"sync"
)

// Buffer is a text buffer with a write cursor. Writing at the cursor appends
// at the end or overwrites in place; '\r' rewinds the cursor to the start of
// the current line and '\n' always moves it to the end, so progress-bar
// redraws replace the line instead of piling up.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	text   []rune
	cursor int
	// maxRunes caps retained history; 0 means unbounded.
	maxRunes int
	dropped  int
}

// New returns a buffer retaining at most maxRunes runes (0 for no cap).
func New(maxRunes int) *Buffer {
	return &Buffer{maxRunes: maxRunes}
}

// Append applies r and reports whether the visible text changed.
func (b *Buffer) Append(r rune) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(r)
}

// WriteString appends every rune of s, reporting whether anything changed.
func (b *Buffer) WriteString(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := false
	for _, r := range s {
		if b.appendLocked(r) {
			changed = true
		}
	}
	return changed
}

func (b *Buffer) appendLocked(r rune) bool {
	switch r {
	case '\r':
		b.cursor = b.lineStartLocked()
		return false
	case '\n':
		b.cursor = len(b.text)
	}
	changed := true
	if b.cursor >= len(b.text) {
		b.text = append(b.text, r)
	} else if b.text[b.cursor] != r {
		b.text[b.cursor] = r
	} else {
		changed = false
	}
	b.cursor++
	if b.maxRunes > 0 && len(b.text) > b.maxRunes {
		b.trimLocked()
	}
	return changed
}

func (b *Buffer) lineStartLocked() int {
	for i := len(b.text) - 1; i >= 0; i-- {
		if b.text[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

// trimLocked drops leading history to three quarters of the cap, cutting at
// a line boundary when one follows the excess. Lines still reachable by the
// cursor are never dropped.
func (b *Buffer) trimLocked() {
	target := b.maxRunes - b.maxRunes/4
	excess := len(b.text) - target
	cut := excess
	for i := excess; i < len(b.text); i++ {
		if b.text[i-1] == '\n' {
			cut = i
			break
		}
	}
	cut = min(cut, b.cursor)
	if cut <= 0 {
		return
	}
	b.text = append(b.text[:0], b.text[cut:]...)
	b.cursor -= cut
	b.dropped += cut
}

// String returns a snapshot of the buffer.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// Len is the number of retained runes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.text)
}

// Cursor is the current write position.
func (b *Buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Dropped is how many runes the history cap has discarded so far.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
