package supervisor

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Stdin is a line-buffered writer to a process's standard input. With auto
// flush on, every complete line is pushed to the process right away.
type Stdin struct {
	mu        sync.Mutex
	w         *bufio.Writer
	closer    io.Closer
	autoFlush bool
	touch     func()
	closed    bool
}

func newStdin(wc io.WriteCloser, autoFlush bool, touch func()) *Stdin {
	return &Stdin{w: bufio.NewWriter(wc), closer: wc, autoFlush: autoFlush, touch: touch}
}

func (s *Stdin) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	if s.touch != nil {
		s.touch()
	}
	if s.autoFlush && strings.ContainsRune(string(p), '\n') {
		return n, s.w.Flush()
	}
	return n, nil
}

// WriteLine writes line followed by a newline.
func (s *Stdin) WriteLine(line string) error {
	_, err := s.Write([]byte(line + "\n"))
	return err
}

func (s *Stdin) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	return s.w.Flush()
}

// Close flushes pending input and closes the pipe. Later calls are no-ops.
func (s *Stdin) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	if err := s.closer.Close(); err != nil {
		return err
	}
	return flushErr
}
