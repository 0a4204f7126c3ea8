// Package transport describes the chat surface the relay renders into.
//
// The surface is consumed through a small contract: send a message to a
// channel, edit or delete a previously sent message, and ask whether a
// message still exists. Messages carry plain content plus up to
// MaxBlocksPerMessage content blocks (rich cards with title, body, footer
// and color). The size limits below are hard platform constraints; Validate
// rejects anything that exceeds them.
//
// Memory is a complete in-process implementation used by tests and by the
// local terminal surface.
package transport
