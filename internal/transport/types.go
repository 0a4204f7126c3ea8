package transport

import (
	"context"
	"time"
	"unicode/utf8"
)

// Platform limits, measured in runes.
const (
	MaxContentLength     = 2000
	MaxDescriptionLength = 4096
	MaxMessagePayload    = 6000
	MaxBlocksPerMessage  = 10
	MaxTitleLength       = 256
	MaxFooterLength      = 2048
	MaxAuthorLength      = 256
)

// NoColor marks a block without an accent color.
const NoColor = -1

// Block is a single content block (a rich card) inside a message.
type Block struct {
	Title       string
	Author      string
	Image       string
	Thumbnail   string
	Description string
	Footer      string
	Timestamp   time.Time
	Color       int
}

// NewBlock returns an empty block with no color.
func NewBlock() Block {
	return Block{Color: NoColor}
}

// Len is the number of runes the block contributes to the message payload.
// Image and thumbnail are URLs and do not count.
func (b Block) Len() int {
	return utf8.RuneCountInString(b.Title) +
		utf8.RuneCountInString(b.Author) +
		utf8.RuneCountInString(b.Description) +
		utf8.RuneCountInString(b.Footer)
}

// Equal reports whether two blocks render identically.
func (b Block) Equal(o Block) bool {
	return b.Title == o.Title &&
		b.Author == o.Author &&
		b.Image == o.Image &&
		b.Thumbnail == o.Thumbnail &&
		b.Description == o.Description &&
		b.Footer == o.Footer &&
		b.Timestamp.Equal(o.Timestamp) &&
		b.Color == o.Color
}

// Message is what gets sent or edited: plain content and/or blocks.
type Message struct {
	Content string
	Blocks  []Block
}

// BlockMessage wraps a single block into a message.
func BlockMessage(b Block) Message {
	return Message{Blocks: []Block{b}}
}

// Handle identifies a message that was sent to a channel.
type Handle struct {
	ID        string
	ChannelID string
}

func (h Handle) String() string {
	return h.ChannelID + "/" + h.ID
}

// Transport is the contract the relay consumes from the chat client.
type Transport interface {
	Send(ctx context.Context, channelID string, msg Message) (Handle, error)
	Edit(ctx context.Context, h Handle, msg Message) error
	Delete(ctx context.Context, h Handle) error
	Exists(ctx context.Context, h Handle) (bool, error)
	CanWrite(ctx context.Context, channelID string) bool
}
