package chunker

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrSplittingFailed = errors.New("splitting failed")
	ErrBudgetTooSmall  = errors.New("chunk budget too small")
)

// Wrapper is added around every interior cut: Left opens each chunk but the
// first, Right closes each chunk but the last.
type Wrapper struct {
	Left  string
	Right string
}

// Fence keeps a fenced code block syntactically closed across chunks.
var Fence = Wrapper{Left: "```\n", Right: "\n```"}

func (w Wrapper) len() int {
	return utf8.RuneCountInString(w.Left) + utf8.RuneCountInString(w.Right)
}

// Chunk is one piece of split text. Body is the source substring with cut
// delimiters trimmed; Text is Body with wrapper halves applied.
type Chunk struct {
	Text  string
	Body  string
	First bool
	Last  bool
}

// Splitter holds a split configuration.
type Splitter struct {
	Policies []Policy
	Fallback []Policy
	Wrapper  *Wrapper
}

// Split splits text with a greedy policy set and no wrapper.
func Split(text string, maxLength int, policies ...Policy) ([]Chunk, error) {
	return Splitter{Policies: policies}.Split(text, maxLength)
}

// Split cuts text into chunks whose wrapped length never exceeds maxLength.
func (s Splitter) Split(text string, maxLength int) ([]Chunk, error) {
	budget := maxLength
	var wrap Wrapper
	if s.Wrapper != nil {
		wrap = *s.Wrapper
		budget -= wrap.len()
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: %d after wrapper", ErrBudgetTooSmall, budget)
	}

	runes := []rune(text)
	if len(runes) <= budget {
		return []Chunk{{Text: text, Body: text, First: true, Last: true}}, nil
	}
	if len(s.Policies) == 0 && len(s.Fallback) == 0 {
		return nil, fmt.Errorf("%w: no policies", ErrSplittingFailed)
	}

	var bodies []string
	begin := 0
	for len(runes)-begin > budget {
		end, policy, ok := s.boundary(runes, begin, budget)
		if !ok {
			return nil, fmt.Errorf("%w: no boundary at offset %d", ErrSplittingFailed, begin)
		}
		delim := []rune(policy.Delimiter)
		bodies = append(bodies, string(trimSuffixRuns(runes[begin:end], delim)))
		begin = end
		for hasPrefix(runes[begin:], delim) {
			begin += len(delim)
		}
	}
	if begin < len(runes) {
		bodies = append(bodies, string(runes[begin:]))
	}

	chunks := make([]Chunk, len(bodies))
	for i, body := range bodies {
		c := Chunk{Body: body, Text: body, First: i == 0, Last: i == len(bodies)-1}
		if !c.First {
			c.Text = wrap.Left + c.Text
		}
		if !c.Last {
			c.Text += wrap.Right
		}
		chunks[i] = c
	}
	return chunks, nil
}

// boundary picks the furthest valid cut among the primary policies, then
// falls back to the first fallback policy that yields one.
func (s Splitter) boundary(runes []rune, begin, budget int) (int, Policy, bool) {
	best, bestPolicy := -1, Policy{}
	for _, p := range s.Policies {
		if end := p.Boundary(runes, begin, budget); valid(end, begin, budget) && end > best {
			best, bestPolicy = end, p
		}
	}
	if best >= 0 {
		return best, bestPolicy, true
	}
	for _, p := range s.Fallback {
		if end := p.Boundary(runes, begin, budget); valid(end, begin, budget) {
			return end, p, true
		}
	}
	return -1, Policy{}, false
}

func valid(end, begin, budget int) bool {
	return end > begin && end <= begin+budget
}

// Snippet shortens s to at most n runes, marking the cut with "...".
func Snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n < 3 {
		n = 3
	}
	return string([]rune(s)[:n-3]) + "..."
}
