package chunker

import (
	"fmt"
	"time"

	"procrelay/internal/transport"
)

// numberReserve leaves room for a " #NNN" title suffix.
const numberReserve = 5

// RenderOptions control adornment placement across a multi-block render.
type RenderOptions struct {
	// KeepTitle repeats the title on every block instead of only the first.
	KeepTitle bool
	// NumberTitles appends " #N" to kept titles.
	NumberTitles bool
}

// RenderBlocks turns chunks into content blocks built from template. With a
// single chunk the template is used as is. With more, title, author, image
// and thumbnail stay on the first block only (title is repeated when
// KeepTitle is set) and footer and timestamp stay on the last block only.
func RenderBlocks(chunks []Chunk, template transport.Block, opts RenderOptions) []transport.Block {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) == 1 {
		b := template
		b.Description = chunks[0].Text
		return []transport.Block{b}
	}

	blocks := make([]transport.Block, 0, len(chunks))
	for i, c := range chunks {
		b := template
		b.Description = c.Text
		if i > 0 {
			if !opts.KeepTitle {
				b.Title = ""
			}
			b.Author = ""
			b.Image = ""
			b.Thumbnail = ""
		}
		if i < len(chunks)-1 {
			b.Footer = ""
			b.Timestamp = time.Time{}
		}
		if opts.KeepTitle && opts.NumberTitles && b.Title != "" {
			b.Title = fmt.Sprintf("%s #%d", b.Title, i+1)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// DescriptionBudget is the room left for block text once template's other
// fields are accounted for, capped at the platform description limit.
func DescriptionBudget(template transport.Block, opts RenderOptions) int {
	t := template
	t.Description = ""
	budget := transport.MaxMessagePayload - t.Len()
	if opts.KeepTitle && opts.NumberTitles && t.Title != "" {
		budget -= numberReserve
	}
	return min(budget, transport.MaxDescriptionLength)
}

// Blocks splits text to fit template and renders the resulting blocks.
func (s Splitter) Blocks(text string, template transport.Block, opts RenderOptions) ([]transport.Block, error) {
	chunks, err := s.Split(text, DescriptionBudget(template, opts))
	if err != nil {
		return nil, err
	}
	return RenderBlocks(chunks, template, opts), nil
}
