// Package display keeps a run of chat messages in step with a rendered
// block list.
package display

import (
	"context"
	"errors"

	"procrelay/internal/logger"
	"procrelay/internal/transport"
)

var log = logger.Named("display")

// ErrReconcileDrift marks a tracked message that disappeared from the
// channel. It is recovered on the spot and only ever logged.
var ErrReconcileDrift = errors.New("tracked message vanished")

// Result counts what a reconciliation did.
type Result struct {
	Edited    int
	Unchanged int
	Created   int
	Deleted   int
	Dropped   int
}

// Batch is an ordered list of message handles, one per rendered block. It
// is not safe for concurrent use; the owning relay serializes access.
type Batch struct {
	channelID string
	handles   []transport.Handle
	shown     []transport.Block
}

func NewBatch(channelID string) *Batch {
	return &Batch{channelID: channelID}
}

// Handles returns the tracked handles in display order.
func (b *Batch) Handles() []transport.Handle {
	return append([]transport.Handle(nil), b.handles...)
}

func (b *Batch) Len() int { return len(b.handles) }

// Reconcile maps blocks onto the tracked messages: vanished messages are
// forgotten, surplus messages are deleted from the tail, missing ones are
// sent, and the overlapping prefix is edited in place. Failed operations
// drop the affected handle so the next reconciliation re-creates it; their
// errors are joined into the returned error.
func (b *Batch) Reconcile(ctx context.Context, t transport.Transport, blocks []transport.Block) (Result, error) {
	var (
		res  Result
		errs []error
	)
	b.prune(ctx, t, &res)

	for len(b.handles) > len(blocks) {
		last := len(b.handles) - 1
		h := b.handles[last]
		b.handles, b.shown = b.handles[:last], b.shown[:last]
		if err := t.Delete(ctx, h); err != nil && !transport.IsNotFound(err) {
			errs = append(errs, err)
			continue
		}
		res.Deleted++
	}

	existing := len(b.handles)
	for _, block := range blocks[existing:] {
		h, err := t.Send(ctx, b.channelID, transport.BlockMessage(block))
		if err != nil {
			errs = append(errs, err)
			break
		}
		b.handles = append(b.handles, h)
		b.shown = append(b.shown, block)
		res.Created++
	}

	handles := make([]transport.Handle, 0, len(b.handles))
	shown := make([]transport.Block, 0, len(b.handles))
	for i, h := range b.handles {
		if i >= existing {
			handles, shown = append(handles, h), append(shown, b.shown[i])
			continue
		}
		if b.shown[i].Equal(blocks[i]) {
			handles, shown = append(handles, h), append(shown, blocks[i])
			res.Unchanged++
			continue
		}
		if err := t.Edit(ctx, h, transport.BlockMessage(blocks[i])); err != nil {
			errs = append(errs, err)
			res.Dropped++
			if !transport.IsNotFound(err) {
				// Leave no stale copy behind; the block comes back on the next pass.
				if derr := t.Delete(ctx, h); derr != nil && !transport.IsNotFound(derr) {
					log.WithField("message", h.String()).Warnf("remove stale message: %v", derr)
					errs = append(errs, derr)
				}
			}
			continue
		}
		handles, shown = append(handles, h), append(shown, blocks[i])
		res.Edited++
	}
	b.handles, b.shown = handles, shown

	return res, errors.Join(errs...)
}

// prune forgets handles whose messages no longer exist. A failed presence
// check keeps the handle.
func (b *Batch) prune(ctx context.Context, t transport.Transport, res *Result) {
	handles := b.handles[:0]
	shown := b.shown[:0]
	for i, h := range b.handles {
		ok, err := t.Exists(ctx, h)
		if err != nil {
			log.WithField("message", h.String()).Warnf("presence check failed: %v", err)
			ok = true
		}
		if !ok {
			log.WithField("message", h.String()).Debugf("%v; will re-create", ErrReconcileDrift)
			res.Dropped++
			continue
		}
		handles = append(handles, h)
		shown = append(shown, b.shown[i])
	}
	b.handles, b.shown = handles, shown
}
