package align

import "strings"

// Reconstruct re-slices the flat corrected word sequence into per-line groups
// using the original line word counts. It returns
// [ErrReconstructionMismatch] when the totals disagree — a defensive check on
// the renderer's position-preserving design, not an expected condition.
func Reconstruct(words []string, lineLens []int) ([][]string, error) {
	total := 0
	for _, n := range lineLens {
		total += n
	}
	if total != len(words) {
		return nil, ErrReconstructionMismatch
	}

	lines := make([][]string, len(lineLens))
	pos := 0
	for i, n := range lineLens {
		lines[i] = words[pos : pos+n]
		pos += n
	}
	return lines, nil
}

// ExpandSeparators replaces every occurrence of the multi-word glue token
// sep in s with a single space. Document writers call this as the very last
// step, after words have been placed into their final positions.
func ExpandSeparators(s, sep string) string {
	return strings.ReplaceAll(s, sep, " ")
}

// JoinLine joins one reconstructed line's words with single spaces and
// expands the multi-word glue token sep, yielding final output text.
func JoinLine(words []string, sep string) string {
	return ExpandSeparators(strings.Join(words, " "), sep)
}

// TextLines renders every line of the result as final output text, expanded
// with the separator that was in effect for the run.
func (r *Result) TextLines() []string {
	lines := make([]string, len(r.Lines))
	for i, words := range r.Lines {
		lines[i] = JoinLine(words, r.Separator)
	}
	return lines
}
