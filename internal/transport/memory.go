package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OpKind names a recorded transport operation.
type OpKind string

const (
	OpSend   OpKind = "send"
	OpEdit   OpKind = "edit"
	OpDelete OpKind = "delete"
)

// Op is one successful mutation recorded by Memory.
type Op struct {
	Kind    OpKind
	Handle  Handle
	Message Message
}

// StoredMessage is a message as currently displayed in a Memory channel.
type StoredMessage struct {
	Handle  Handle
	Message Message
	Sent    time.Time
	Edited  time.Time
}

// Memory is an in-process chat surface. It enforces platform limits, keeps
// per-channel message order, and records every mutation.
type Memory struct {
	mu       sync.Mutex
	channels map[string][]*StoredMessage
	index    map[string]*StoredMessage
	readOnly map[string]bool
	failures map[OpKind][]error
	ops      []Op
	onChange func(channelID string)
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		channels: map[string][]*StoredMessage{},
		index:    map[string]*StoredMessage{},
		readOnly: map[string]bool{},
		failures: map[OpKind][]error{},
		now:      time.Now,
	}
}

// OnChange registers a callback fired after every mutation, outside the lock.
func (m *Memory) OnChange(fn func(channelID string)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetReadOnly toggles write permission for a channel.
func (m *Memory) SetReadOnly(channelID string, readOnly bool) {
	m.mu.Lock()
	m.readOnly[channelID] = readOnly
	m.mu.Unlock()
}

// FailNext makes the next operation of kind fail with err.
func (m *Memory) FailNext(kind OpKind, err error) {
	m.mu.Lock()
	m.failures[kind] = append(m.failures[kind], err)
	m.mu.Unlock()
}

func (m *Memory) Send(ctx context.Context, channelID string, msg Message) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if err := Validate(msg); err != nil {
		return Handle{}, &Error{Op: string(OpSend), Handle: Handle{ChannelID: channelID}, Err: err}
	}
	m.mu.Lock()
	if m.readOnly[channelID] {
		m.mu.Unlock()
		return Handle{}, &Error{Op: string(OpSend), Handle: Handle{ChannelID: channelID}, Err: ErrForbidden}
	}
	if err := m.takeFailureLocked(OpSend); err != nil {
		m.mu.Unlock()
		return Handle{}, &Error{Op: string(OpSend), Handle: Handle{ChannelID: channelID}, Err: err}
	}
	h := Handle{ID: uuid.NewString(), ChannelID: channelID}
	stored := &StoredMessage{Handle: h, Message: cloneMessage(msg), Sent: m.now()}
	m.channels[channelID] = append(m.channels[channelID], stored)
	m.index[h.ID] = stored
	m.ops = append(m.ops, Op{Kind: OpSend, Handle: h, Message: cloneMessage(msg)})
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(channelID)
	}
	return h, nil
}

func (m *Memory) Edit(ctx context.Context, h Handle, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(msg); err != nil {
		return &Error{Op: string(OpEdit), Handle: h, Err: err}
	}
	m.mu.Lock()
	if err := m.takeFailureLocked(OpEdit); err != nil {
		m.mu.Unlock()
		return &Error{Op: string(OpEdit), Handle: h, Err: err}
	}
	stored, ok := m.index[h.ID]
	if !ok {
		m.mu.Unlock()
		return &Error{Op: string(OpEdit), Handle: h, Err: ErrNotFound}
	}
	stored.Message = cloneMessage(msg)
	stored.Edited = m.now()
	m.ops = append(m.ops, Op{Kind: OpEdit, Handle: h, Message: cloneMessage(msg)})
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(h.ChannelID)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.takeFailureLocked(OpDelete); err != nil {
		m.mu.Unlock()
		return &Error{Op: string(OpDelete), Handle: h, Err: err}
	}
	if !m.removeLocked(h.ID) {
		m.mu.Unlock()
		return &Error{Op: string(OpDelete), Handle: h, Err: ErrNotFound}
	}
	m.ops = append(m.ops, Op{Kind: OpDelete, Handle: h})
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(h.ChannelID)
	}
	return nil
}

func (m *Memory) Exists(ctx context.Context, h Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[h.ID]
	return ok, nil
}

func (m *Memory) CanWrite(_ context.Context, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.readOnly[channelID]
}

// Remove deletes a message out of band, the way a human moderator would.
// It is not recorded as an Op.
func (m *Memory) Remove(id string) bool {
	m.mu.Lock()
	stored, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	channelID := stored.Handle.ChannelID
	m.removeLocked(id)
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(channelID)
	}
	return true
}

// Messages returns a copy of the channel's messages in display order.
func (m *Memory) Messages(channelID string) []StoredMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.channels[channelID]
	out := make([]StoredMessage, 0, len(list))
	for _, s := range list {
		cp := *s
		cp.Message = cloneMessage(s.Message)
		out = append(out, cp)
	}
	return out
}

// Channels lists channel ids that have ever received a message.
func (m *Memory) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.channels))
	for id := range m.channels {
		out = append(out, id)
	}
	return out
}

// Ops returns the recorded mutations.
func (m *Memory) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

// CountOps counts recorded mutations of kind.
func (m *Memory) CountOps(kind OpKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, op := range m.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// ResetOps clears the recorded operations.
func (m *Memory) ResetOps() {
	m.mu.Lock()
	m.ops = nil
	m.mu.Unlock()
}

func (m *Memory) takeFailureLocked(kind OpKind) error {
	queue := m.failures[kind]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[kind] = queue[1:]
	return err
}

func (m *Memory) removeLocked(id string) bool {
	stored, ok := m.index[id]
	if !ok {
		return false
	}
	delete(m.index, id)
	list := m.channels[stored.Handle.ChannelID]
	for i, s := range list {
		if s == stored {
			m.channels[stored.Handle.ChannelID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return true
}

func cloneMessage(msg Message) Message {
	return Message{Content: msg.Content, Blocks: append([]Block(nil), msg.Blocks...)}
}
