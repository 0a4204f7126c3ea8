package transport

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_SendEditDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	changes := 0
	m.OnChange(func(string) { changes++ })

	h, err := m.Send(ctx, "chan", Message{Content: "one"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if h.ID == "" || h.ChannelID != "chan" {
		t.Fatalf("unexpected handle %+v", h)
	}
	if err := m.Edit(ctx, h, Message{Content: "two"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	msgs := m.Messages("chan")
	if len(msgs) != 1 || msgs[0].Message.Content != "two" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if err := m.Delete(ctx, h); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := m.Exists(ctx, h); ok {
		t.Fatalf("expected message to be gone")
	}
	if err := m.Edit(ctx, h, Message{Content: "three"}); !IsNotFound(err) {
		t.Fatalf("Edit after delete = %v, want not found", err)
	}
	if changes != 3 {
		t.Fatalf("changes = %d, want 3", changes)
	}
	if got := m.CountOps(OpSend) + m.CountOps(OpEdit) + m.CountOps(OpDelete); got != 3 {
		t.Fatalf("ops = %d, want 3", got)
	}
}

func TestMemory_RemoveIsOutOfBand(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.Send(ctx, "chan", Message{Content: "a"})
	b, _ := m.Send(ctx, "chan", Message{Content: "b"})

	if !m.Remove(a.ID) {
		t.Fatalf("Remove returned false")
	}
	if m.Remove(a.ID) {
		t.Fatalf("second Remove should report missing")
	}
	msgs := m.Messages("chan")
	if len(msgs) != 1 || msgs[0].Handle != b {
		t.Fatalf("unexpected remaining messages %+v", msgs)
	}
	if m.CountOps(OpDelete) != 0 {
		t.Fatalf("Remove must not be recorded as an op")
	}
}

func TestMemory_ReadOnlyAndInjectedFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetReadOnly("locked", true)
	if m.CanWrite(ctx, "locked") {
		t.Fatalf("expected locked channel to be read-only")
	}
	if _, err := m.Send(ctx, "locked", Message{Content: "x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Send to read-only = %v, want ErrForbidden", err)
	}

	boom := errors.New("boom")
	m.FailNext(OpSend, boom)
	if _, err := m.Send(ctx, "open", Message{Content: "x"}); !errors.Is(err, boom) {
		t.Fatalf("Send = %v, want injected failure", err)
	}
	var terr *Error
	if _, err := m.Send(ctx, "open", Message{Blocks: []Block{}}); !errors.As(err, &terr) || terr.Op != "send" {
		t.Fatalf("expected *Error for empty message, got %v", err)
	}
	if _, err := m.Send(ctx, "open", Message{Content: "ok"}); err != nil {
		t.Fatalf("failure should only apply once: %v", err)
	}
}
