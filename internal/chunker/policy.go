package chunker

// Policy proposes a chunk boundary. Boundary returns the exclusive end index
// of the chunk starting at begin, no further than begin+budget, or -1 when
// the policy has no acceptable cut.
type Policy struct {
	Name      string
	Delimiter string
	Boundary  func(text []rune, begin, budget int) int
}

var (
	Newline        = OnDelimiter("newline", "\n")
	Space          = OnDelimiter("space", " ")
	ZeroWidthSpace = OnDelimiter("zwsp", "\u200b")
	Anywhere       = Policy{Name: "anywhere", Boundary: anywhere}
)

// DefaultPolicies is the usual greedy set with a guaranteed fallback at the end.
func DefaultPolicies() []Policy {
	return []Policy{Newline, Space, ZeroWidthSpace, Anywhere}
}

// OnDelimiter cuts right after the last occurrence of delim inside the budget.
func OnDelimiter(name, delim string) Policy {
	d := []rune(delim)
	return Policy{
		Name:      name,
		Delimiter: delim,
		Boundary: func(text []rune, begin, budget int) int {
			limit := min(len(text), begin+budget)
			idx := lastIndex(text[begin:limit], d)
			if idx < 0 {
				return -1
			}
			return begin + idx + len(d)
		},
	}
}

func anywhere(text []rune, begin, budget int) int {
	return min(len(text), begin+budget)
}

func lastIndex(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := len(haystack) - len(needle); i >= 0; i-- {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

func hasPrefix(s, prefix []rune) bool {
	if len(prefix) == 0 || len(prefix) > len(s) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}

func trimSuffixRuns(s, suffix []rune) []rune {
	if len(suffix) == 0 {
		return s
	}
	for len(s) >= len(suffix) && hasPrefix(s[len(s)-len(suffix):], suffix) {
		s = s[:len(s)-len(suffix)]
	}
	return s
}
