package chunker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func bodies(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Body
	}
	return out
}

func TestSplit_FitsInOneChunkUnchanged(t *testing.T) {
	text := "  hello\nworld\n"
	chunks, err := Split(text, 100, Newline)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != text || !chunks[0].First || !chunks[0].Last {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestSplit_GreedyPicksFurthestBoundary(t *testing.T) {
	chunks, err := Split("0123456789 0123456789", 15, Space)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"0123456789", "0123456789"}
	if got := bodies(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}
}

func TestSplit_SizeBeatsPolicyOrder(t *testing.T) {
	chunks, err := Split("aaaa\nbbbbbbb cc", 14, Newline, Space)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"aaaa\nbbbbbbb", "cc"}
	if got := bodies(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}
}

func TestSplit_Anywhere(t *testing.T) {
	chunks, err := Split("abcdefghij", 4, Anywhere)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"abcd", "efgh", "ij"}
	if got := bodies(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}
	if !chunks[0].First || chunks[0].Last || chunks[1].First || chunks[1].Last || !chunks[2].Last {
		t.Fatalf("unexpected first/last flags: %+v", chunks)
	}
}

func TestSplit_ConsumesDelimiterRuns(t *testing.T) {
	chunks, err := Split("one two\n\n\nthree four", 10, Newline)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"one two", "three four"}
	if got := bodies(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("日", 6) + " " + strings.Repeat("本", 6)
	chunks, err := Split(text, 8, Space)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{strings.Repeat("日", 6), strings.Repeat("本", 6)}
	if got := bodies(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}
}

func TestSplit_Failures(t *testing.T) {
	cases := []struct {
		name     string
		splitter Splitter
		text     string
		max      int
		want     error
	}{
		{name: "no policies", splitter: Splitter{}, text: strings.Repeat("a", 20), max: 5, want: ErrSplittingFailed},
		{name: "non exhaustive policy", splitter: Splitter{Policies: []Policy{Space}}, text: strings.Repeat("a", 20), max: 5, want: ErrSplittingFailed},
		{name: "wrapper eats budget", splitter: Splitter{Policies: []Policy{Anywhere}, Wrapper: &Fence}, text: "abc", max: 8, want: ErrBudgetTooSmall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.splitter.Split(tc.text, tc.max)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Split() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSplit_FallbackOnlyWhenPrimaryFails(t *testing.T) {
	s := Splitter{Policies: []Policy{Newline}, Fallback: []Policy{Space, Anywhere}}

	chunks, err := s.Split("aaaa bbbb cccc", 10)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if got, want := bodies(chunks), []string{"aaaa bbbb", "cccc"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}

	chunks, err = s.Split("aa\nbbbb cccc dd", 10)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if got, want := bodies(chunks), []string{"aa", "bbbb cccc", "dd"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("bodies = %q, want %q", got, want)
	}
}

func TestSplit_FenceRoundTrip(t *testing.T) {
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, fmt.Sprintf("line %03d: %s", i, strings.Repeat("x", i%23)))
	}
	source := strings.Join(lines, "\n")
	text := "```\n" + source + "\n```"
	const max = 120

	s := Splitter{Policies: []Policy{Newline}, Wrapper: &Fence}
	chunks, err := s.Split(text, max)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Text); n > max {
			t.Fatalf("chunk %d is %d runes, budget %d", i, n, max)
		}
		if !strings.HasPrefix(c.Text, "```\n") || !strings.HasSuffix(c.Text, "\n```") {
			t.Fatalf("chunk %d is not fenced: %q", i, c.Text)
		}
	}
	if got := strings.Join(bodies(chunks), "\n"); got != text {
		t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", text, got)
	}

	again, err := s.Split(text, max)
	if err != nil {
		t.Fatalf("second Split: %v", err)
	}
	if !reflect.DeepEqual(chunks, again) {
		t.Fatalf("split is not deterministic")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short", 10); got != "short" {
		t.Fatalf("Snippet = %q", got)
	}
	if got := Snippet("abcdefghij", 6); got != "abc..." {
		t.Fatalf("Snippet = %q, want %q", got, "abc...")
	}
}
