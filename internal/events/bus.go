package events

import (
	"errors"
	"sync"
	"time"

	"procrelay/internal/logger"
)

var (
	// ErrBusClosed is returned by Publish after Close.
	ErrBusClosed = errors.New("event bus closed")
	// ErrEventDropped means a slow subscriber missed the event.
	ErrEventDropped = errors.New("event dropped by slow subscriber")
)

// Bus is a non-blocking pub-sub for lifecycle events. A slow subscriber
// loses events instead of stalling the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	buffer int
	closed bool
	logger *logger.LogEntry
}

// NewBus creates a bus; buffer is the channel size of each subscriber.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer, logger: log}
}

// SetLogger replaces the event log; nil restores the default.
func (b *Bus) SetLogger(l *logger.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l == nil {
		l = log
	}
	b.logger = l
}

// Subscribe returns a channel of events that is closed by Close.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, b.buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish hands evt to every subscriber without blocking and returns
// ErrEventDropped if any of them was full.
func (b *Bus) Publish(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.logger.WithFields(logger.Fields{
		"event":   string(evt.Type),
		"pid":     evt.PID,
		"run_id":  evt.RunID,
		"payload": encodePayload(evt.Payload),
	}).Debug("publish")

	dropped := false
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrEventDropped
	}
	return nil
}

// Close shuts the bus and every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.closed = true
}

// SubscriberCount returns the number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
