// Package relay turns one raw output stream into live chat content: a reader
// loop feeds a terminal buffer and an updater loop renders it to a channel
// once output settles.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"procrelay/internal/chunker"
	"procrelay/internal/display"
	"procrelay/internal/logger"
	"procrelay/internal/termbuf"
	"procrelay/internal/transport"
)

var log = logger.Named("relay")

// ErrChannelUnwritable stops a relay for good: its target channel no longer
// accepts writes.
var ErrChannelUnwritable = errors.New("relay channel is not writable")

const (
	DefaultQuietPeriod  = 2 * time.Second
	DefaultFlushTimeout = 10 * time.Second

	// finalAttempts bounds retries of a render no updater will follow up.
	finalAttempts = 3
)

// Options configure a Relay. Zero values fall back to defaults.
type Options struct {
	Title     string
	ChannelID string
	Transport transport.Transport

	// Template is the block every render starts from. Title, when set, and
	// the relay's current color override its fields.
	Template *transport.Block
	Color    int

	// QuietPeriod is how long output must stay silent before a flush.
	// MaxDelay, when positive, caps how long continuous output can
	// postpone one; 0 lets a burst postpone the flush until it settles.
	QuietPeriod time.Duration
	MaxDelay    time.Duration

	// Window shows only the last Window visual lines; 0 shows everything.
	Window    int
	LineWidth int

	Fence         bool
	FenceLanguage string
	StripANSI     bool

	// MaxHistory bounds retained output in runes; 0 keeps everything.
	MaxHistory int
	// MaxBlocks keeps only the trailing blocks of a render and marks the
	// first shown block with the number hidden; 0 keeps all.
	MaxBlocks int

	// Timeout bounds the transport calls of one flush.
	Timeout time.Duration

	// OnError receives fatal relay errors, once.
	OnError func(error)
}

func (o *Options) normalize() {
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = DefaultQuietPeriod
	}
	if o.MaxDelay < 0 {
		o.MaxDelay = 0
	}
	if o.MaxDelay > 0 && o.MaxDelay < o.QuietPeriod {
		o.MaxDelay = o.QuietPeriod
	}
	if o.MaxBlocks < 0 {
		o.MaxBlocks = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultFlushTimeout
	}
	if o.Window < 0 {
		o.Window = 0
	}
}

// Relay owns one stream's terminal buffer, its reader and updater loops and
// the messages that display it.
type Relay struct {
	opts     Options
	buf      *termbuf.Buffer
	batch    *display.Batch
	splitter chunker.Splitter

	mu          sync.Mutex
	state       State
	flushing    bool
	color       int
	window      int
	invalidated bool
	last        []transport.Block
	flushes     int
	err         error

	// renderMu serializes renders between the updater and SetColor/Flush.
	renderMu sync.Mutex

	signal     chan struct{}
	readerDone chan struct{}
	done       chan struct{}
	startOnce  sync.Once
}

func New(opts Options) *Relay {
	opts.normalize()
	r := &Relay{
		opts:       opts,
		buf:        termbuf.New(opts.MaxHistory),
		batch:      display.NewBatch(opts.ChannelID),
		color:      opts.Color,
		window:     opts.Window,
		signal:     make(chan struct{}, 1),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.splitter = chunker.Splitter{
		Policies: []chunker.Policy{chunker.Newline},
		Fallback: []chunker.Policy{chunker.Space, chunker.Anywhere},
	}
	if opts.Fence {
		r.splitter.Wrapper = &chunker.Wrapper{Left: r.fenceOpen(), Right: "\n```"}
	}
	return r
}

// Start launches the reader and updater loops on src. Later calls are
// ignored.
func (r *Relay) Start(src io.Reader) {
	r.startOnce.Do(func() {
		r.setState(Reading)
		go r.readLoop(src)
		go r.updateLoop()
	})
}

func (r *Relay) Title() string { return r.opts.Title }

func (r *Relay) ChannelID() string { return r.opts.ChannelID }

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flushing && r.state != Closed {
		return Flushing
	}
	return r.state
}

func (r *Relay) Color() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.color
}

func (r *Relay) Window() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.window
}

// Err returns the error that stopped the relay, if any.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Flushes counts renders that reached the transport.
func (r *Relay) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Snapshot returns the full buffered output.
func (r *Relay) Snapshot() string { return r.buf.String() }

// Size is the number of buffered runes.
func (r *Relay) Size() int { return r.buf.Len() }

// Handles lists the messages currently displaying the stream.
func (r *Relay) Handles() []transport.Handle {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()
	return r.batch.Handles()
}

// ReaderDone is closed once the stream reported end of data.
func (r *Relay) ReaderDone() <-chan struct{} { return r.readerDone }

// Done is closed once the final flush after end of data has run.
func (r *Relay) Done() <-chan struct{} { return r.done }

// SetColor changes the accent color and flushes right away. Once the
// updater has finished, a failed flush is retried in place.
func (r *Relay) SetColor(ctx context.Context, color int) error {
	r.mu.Lock()
	r.color = color
	r.mu.Unlock()
	select {
	case <-r.done:
		return r.renderRetrying(ctx)
	default:
		return r.render(ctx)
	}
}

// SetWindow changes the window size; the next settled flush applies it.
func (r *Relay) SetWindow(lines int) {
	if lines < 0 {
		lines = 0
	}
	r.mu.Lock()
	r.window = lines
	r.invalidated = true
	r.mu.Unlock()
	r.notify()
}

// Flush renders the current buffer immediately.
func (r *Relay) Flush(ctx context.Context) error {
	return r.render(ctx)
}

func (r *Relay) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Relay) readLoop(src io.Reader) {
	defer func() {
		r.setState(Draining)
		close(r.readerDone)
	}()
	br := bufio.NewReader(src)
	for {
		ch, _, err := br.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithField("relay", r.opts.Title).Debugf("stream closed: %v", err)
			}
			return
		}
		if r.buf.Append(ch) {
			r.mu.Lock()
			r.invalidated = true
			r.mu.Unlock()
			r.notify()
		}
	}
}

func (r *Relay) updateLoop() {
	defer func() {
		r.setState(Closed)
		close(r.done)
	}()
	for {
		select {
		case <-r.signal:
		case <-r.readerDone:
			r.drain()
			return
		}
		if !r.settle() {
			r.drain()
			return
		}
		r.flushIfInvalidated()
	}
}

// settle waits until output has been quiet for the quiet period or MaxDelay
// has passed. It returns false when the stream ended while waiting.
func (r *Relay) settle() bool {
	quiet := time.NewTimer(r.opts.QuietPeriod)
	defer quiet.Stop()
	var deadline <-chan time.Time
	if r.opts.MaxDelay > 0 {
		t := time.NewTimer(r.opts.MaxDelay)
		defer t.Stop()
		deadline = t.C
	}
	for {
		select {
		case <-r.signal:
			quiet.Reset(r.opts.QuietPeriod)
		case <-quiet.C:
			return true
		case <-deadline:
			return true
		case <-r.readerDone:
			return false
		}
	}
}

// drain runs the last flush. Nothing follows it, so a failed reconcile is
// retried here instead of on a later signal.
func (r *Relay) drain() {
	r.mu.Lock()
	pending := r.invalidated
	r.mu.Unlock()
	if !pending {
		return
	}
	if err := r.renderRetrying(context.Background()); err != nil && !errors.Is(err, ErrChannelUnwritable) {
		log.WithField("relay", r.opts.Title).Warnf("final flush: %v", err)
	}
}

func (r *Relay) renderRetrying(ctx context.Context) error {
	var err error
	for i := 0; i < finalAttempts; i++ {
		err = r.render(ctx)
		if err == nil || errors.Is(err, ErrChannelUnwritable) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (r *Relay) flushIfInvalidated() {
	r.mu.Lock()
	pending := r.invalidated
	r.mu.Unlock()
	if !pending {
		return
	}
	if err := r.render(context.Background()); err != nil && !errors.Is(err, ErrChannelUnwritable) {
		log.WithField("relay", r.opts.Title).Warnf("flush: %v", err)
	}
}

func (r *Relay) render(ctx context.Context) error {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return err
	}
	r.invalidated = false
	r.flushing = true
	color, window := r.color, r.window
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.flushing = false
		r.mu.Unlock()
	}()

	blocks, err := r.blocks(r.buf.String(), color, window)
	if err != nil {
		log.WithField("relay", r.opts.Title).Errorf("render: %v", err)
		return err
	}
	if len(blocks) == 0 && r.batch.Len() == 0 {
		return nil
	}
	if r.unchanged(blocks) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	if !r.opts.Transport.CanWrite(ctx, r.opts.ChannelID) {
		return r.fail(fmt.Errorf("%w: %s", ErrChannelUnwritable, r.opts.ChannelID))
	}
	res, err := r.batch.Reconcile(ctx, r.opts.Transport, blocks)

	r.mu.Lock()
	r.flushes++
	if err == nil {
		r.last = blocks
	} else {
		r.last = nil
	}
	r.mu.Unlock()

	log.WithField("relay", r.opts.Title).Debugf("flush: edited=%d unchanged=%d created=%d deleted=%d dropped=%d",
		res.Edited, res.Unchanged, res.Created, res.Deleted, res.Dropped)
	if err != nil {
		if errors.Is(err, transport.ErrForbidden) {
			return r.fail(fmt.Errorf("%w: %v", ErrChannelUnwritable, err))
		}
		// Dropped handles come back on the next flush.
		r.mu.Lock()
		r.invalidated = true
		r.mu.Unlock()
		r.notify()
		return err
	}
	return nil
}

func (r *Relay) unchanged(blocks []transport.Block) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil || len(blocks) != len(r.last) || len(blocks) != r.batch.Len() {
		return false
	}
	for i := range blocks {
		if !blocks[i].Equal(r.last[i]) {
			return false
		}
	}
	return true
}

func (r *Relay) fail(err error) error {
	r.mu.Lock()
	first := r.err == nil
	if first {
		r.err = err
	}
	r.mu.Unlock()
	if first {
		log.WithField("relay", r.opts.Title).Errorf("relay stopped: %v", err)
		if r.opts.OnError != nil {
			r.opts.OnError(err)
		}
	}
	return err
}

// blocks renders text into content blocks under the current render state.
func (r *Relay) blocks(text string, color, window int) ([]transport.Block, error) {
	if r.opts.StripANSI {
		text = ansi.Strip(text)
	}
	text = termbuf.Window(text, window, r.opts.LineWidth)
	if text == "" {
		return nil, nil
	}
	if r.opts.Fence {
		text = r.fenceOpen() + strings.TrimSuffix(text, "\n") + "\n```"
	}

	template := transport.NewBlock()
	if r.opts.Template != nil {
		template = *r.opts.Template
	}
	if r.opts.Title != "" {
		template.Title = r.opts.Title
	}
	template.Color = color

	opts := chunker.RenderOptions{KeepTitle: true, NumberTitles: true}
	blocks, err := r.splitter.Blocks(text, template, opts)
	if err != nil {
		return nil, err
	}
	if r.opts.MaxBlocks > 0 && len(blocks) > r.opts.MaxBlocks {
		hidden := len(blocks) - r.opts.MaxBlocks
		blocks = blocks[hidden:]
		blocks[0] = markHidden(blocks[0], hidden)
	}
	return blocks, nil
}

// markHidden notes on b how many leading blocks were cut, as long as the
// note still fits the payload limit.
func markHidden(b transport.Block, hidden int) transport.Block {
	note := fmt.Sprintf("%d earlier blocks hidden", hidden)
	if hidden == 1 {
		note = "1 earlier block hidden"
	}
	marked := b
	marked.Author = note
	if marked.Len() > transport.MaxMessagePayload {
		return b
	}
	return marked
}

func (r *Relay) fenceOpen() string {
	return "```" + r.opts.FenceLanguage + "\n"
}
