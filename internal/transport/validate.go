package transport

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validate checks msg against the platform limits.
func Validate(msg Message) error {
	if strings.TrimSpace(msg.Content) == "" && len(msg.Blocks) == 0 {
		return ErrEmpty
	}
	if n := utf8.RuneCountInString(msg.Content); n > MaxContentLength {
		return fmt.Errorf("%w: content is %d runes (max %d)", ErrTooLarge, n, MaxContentLength)
	}
	if len(msg.Blocks) > MaxBlocksPerMessage {
		return fmt.Errorf("%w: %d blocks (max %d)", ErrTooLarge, len(msg.Blocks), MaxBlocksPerMessage)
	}
	total := 0
	for i, b := range msg.Blocks {
		if err := validateBlock(b); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		total += b.Len()
	}
	if total > MaxMessagePayload {
		return fmt.Errorf("%w: blocks total %d runes (max %d)", ErrTooLarge, total, MaxMessagePayload)
	}
	return nil
}

func validateBlock(b Block) error {
	checks := []struct {
		field string
		value string
		max   int
	}{
		{"title", b.Title, MaxTitleLength},
		{"author", b.Author, MaxAuthorLength},
		{"description", b.Description, MaxDescriptionLength},
		{"footer", b.Footer, MaxFooterLength},
	}
	for _, c := range checks {
		if n := utf8.RuneCountInString(c.value); n > c.max {
			return fmt.Errorf("%w: %s is %d runes (max %d)", ErrTooLarge, c.field, n, c.max)
		}
	}
	return nil
}
