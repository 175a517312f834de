package labparser

import (
	"sort"
	"strings"
)

// textRange is a half-open byte range of the original text.
type textRange struct {
	start, end int
}

// workingText is the text one definition group still searches. The original
// string never changes; consumed ranges are tracked in original coordinates
// and the residual text is what remains once they are cut out.
type workingText struct {
	original string
	consumed []textRange // sorted, disjoint, non-adjacent
	residual string
}

func newWorkingText(s string) *workingText {
	return &workingText{original: s, residual: s}
}

// String returns the residual text.
func (w *workingText) String() string { return w.residual }

// Consumed returns the consumed ranges of the original text.
func (w *workingText) Consumed() []textRange {
	return append([]textRange(nil), w.consumed...)
}

// consume removes the first occurrence of s from the residual text. An
// earlier identical piece of text is removed even if s was matched further
// on; callers rely on that ordering.
func (w *workingText) consume(s string) bool {
	if s == "" {
		return false
	}
	i := strings.Index(w.residual, s)
	if i < 0 {
		return false
	}
	w.markResidual(i, i+len(s))
	return true
}

// kept returns the unconsumed ranges of the original text in order.
func (w *workingText) kept() []textRange {
	out := make([]textRange, 0, len(w.consumed)+1)
	pos := 0
	for _, c := range w.consumed {
		if c.start > pos {
			out = append(out, textRange{pos, c.start})
		}
		pos = c.end
	}
	if pos < len(w.original) {
		out = append(out, textRange{pos, len(w.original)})
	}
	return out
}

// markResidual consumes residual bytes [from, to), which may span several
// kept ranges of the original.
func (w *workingText) markResidual(from, to int) {
	pos := 0
	for _, k := range w.kept() {
		n := k.end - k.start
		lo, hi := max(from, pos), min(to, pos+n)
		if lo < hi {
			w.consumed = append(w.consumed, textRange{k.start + lo - pos, k.start + hi - pos})
		}
		pos += n
		if pos >= to {
			break
		}
	}
	w.consumed = mergeRanges(w.consumed)

	var b strings.Builder
	b.Grow(len(w.residual) - (to - from))
	for _, k := range w.kept() {
		b.WriteString(w.original[k.start:k.end])
	}
	w.residual = b.String()
}

func mergeRanges(rs []textRange) []textRange {
	sort.Slice(rs, func(i, j int) bool { return rs[i].start < rs[j].start })
	out := rs[:0]
	for _, r := range rs {
		if n := len(out); n > 0 && r.start <= out[n-1].end {
			if r.end > out[n-1].end {
				out[n-1].end = r.end
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
