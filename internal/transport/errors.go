package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrForbidden = errors.New("channel not writable")
	ErrTooLarge  = errors.New("message exceeds platform limits")
	ErrEmpty     = errors.New("message has no content")
)

// Error describes a failed transport operation. Callers use errors.Is against
// the sentinels above to classify it:
//
//	var terr *transport.Error
//	if errors.As(err, &terr) && errors.Is(terr, transport.ErrNotFound) { ... }
type Error struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *Error) Error() string {
	if e.Handle.ID == "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Handle.ChannelID, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err says the target message is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
