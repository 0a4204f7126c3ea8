// Package chunker splits text into size-bounded chunks and renders them into
// content blocks.
//
// Splitting is driven by an ordered set of boundary policies. For every
// chunk each policy proposes the furthest boundary it accepts within the
// budget and the largest proposal wins, so the policy that fills the chunk
// the most is chosen regardless of its position in the list. Delimiter
// policies consume their delimiter at the cut: it is trimmed from the end
// of the chunk just produced and from the start of the next one.
//
// A Splitter may also carry fallback policies, consulted in order only when
// no primary policy finds a boundary, and a Wrapper whose left/right halves
// are added around interior cuts so that fenced code stays closed in every
// chunk.
package chunker
