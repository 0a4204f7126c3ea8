// Package report posts error cards to a channel and folds repeats of the
// same error into a counter on the card already shown.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"procrelay/internal/chunker"
	"procrelay/internal/display"
	"procrelay/internal/logger"
	"procrelay/internal/transport"
)

var log = logger.Named("report")

const (
	DefaultRepeatPeriod = 5 * time.Minute
	ErrorColor          = 0xB31C1C
)

// Reporter is safe for concurrent use. Transport calls run under the lock
// of the one report they touch, so a slow channel only delays repeats of
// its own errors.
type Reporter struct {
	transport transport.Transport
	period    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	reports map[string]*record
}

type record struct {
	// seen is guarded by Reporter.mu and drives pruning.
	seen time.Time

	mu     sync.Mutex
	batch  *display.Batch
	blocks []transport.Block
	first  time.Time
	last   time.Time
	count  int
}

func New(t transport.Transport, repeatPeriod time.Duration) *Reporter {
	if repeatPeriod <= 0 {
		repeatPeriod = DefaultRepeatPeriod
	}
	return &Reporter{
		transport: t,
		period:    repeatPeriod,
		now:       time.Now,
		reports:   map[string]*record{},
	}
}

// Report shows an error card in channelID. A repeat of the same error
// within the repeat period edits the footer of the previous card instead
// and returns the repeat count; a fresh card returns 0.
func (r *Reporter) Report(ctx context.Context, channelID, title, description string, cause error) int {
	id := reportID(channelID, title, description, cause)
	now := r.now()

	r.mu.Lock()
	r.pruneLocked(now)
	rec := r.reports[id]
	if rec == nil {
		rec = &record{}
		r.reports[id] = rec
	}
	rec.seen = now
	r.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.batch == nil || now.Sub(rec.last) > r.period {
		r.newReport(ctx, rec, channelID, title, description, cause, now)
		return 0
	}

	rec.count++
	rec.last = now
	blocks := append([]transport.Block(nil), rec.blocks...)
	blocks[len(blocks)-1].Footer = repeatFooter(rec.count, rec.last.Sub(rec.first))
	if _, err := rec.batch.Reconcile(ctx, r.transport, blocks); err != nil {
		log.WithField("report", title).Warnf("update repeated report: %v", err)
	} else {
		rec.blocks = blocks
	}
	return rec.count
}

// Len is the number of reports still eligible for repeat folding.
func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// pruneLocked forgets reports that can no longer be repeated.
func (r *Reporter) pruneLocked(now time.Time) {
	for id, rec := range r.reports {
		if now.Sub(rec.seen) > r.period {
			delete(r.reports, id)
		}
	}
}

func (r *Reporter) newReport(ctx context.Context, rec *record, channelID, title, description string, cause error, now time.Time) {
	rec.batch = nil
	blocks, err := Blocks(title, description, cause)
	if err != nil {
		log.Errorf("cannot render report %q: %v", title, err)
		return
	}
	batch := display.NewBatch(channelID)
	if _, err := batch.Reconcile(ctx, r.transport, blocks); err != nil {
		log.WithFields(logger.Fields{"channel": channelID, "cause": cause}).Errorf("cannot report error %q: %v", title, err)
		return
	}
	rec.batch, rec.blocks = batch, blocks
	rec.first, rec.last, rec.count = now, now, 1
	log.WithField("cause", cause).Errorf("reported error: %s: %s", title, description)
}

// Blocks renders an error card: the description followed by the cause in a
// code fence, split over as many blocks as needed.
func Blocks(title, description string, cause error) ([]transport.Block, error) {
	template := transport.NewBlock()
	template.Title = chunker.Snippet(title, transport.MaxTitleLength)
	template.Color = ErrorColor

	var text strings.Builder
	text.WriteString(description)
	if cause != nil {
		if description != "" {
			text.WriteString("\n")
		}
		text.WriteString("```\n" + cause.Error() + "\n```")
	}
	splitter := chunker.Splitter{Policies: chunker.DefaultPolicies(), Wrapper: &chunker.Fence}
	return splitter.Blocks(text.String(), template, chunker.RenderOptions{})
}

func reportID(channelID, title, description string, cause error) string {
	if cause != nil {
		return channelID + ":" + title + ":" + cause.Error()
	}
	return channelID + ":" + title + ":" + description
}

func repeatFooter(count int, span time.Duration) string {
	minutes := int(span / time.Minute)
	if hours := minutes / 60; hours > 0 {
		return fmt.Sprintf("Repeated %d times in the last %dh %dm", count, hours, minutes%60)
	}
	return fmt.Sprintf("Repeated %d times in the last %d min", count, minutes)
}
