package align

import "strings"

// Sequence is an ordered word sequence plus the line map needed to re-slice
// it back into lines. Treat both slices as read-only after creation.
type Sequence struct {
	// Words is the flat word sequence, indexed 0..len-1.
	Words []string

	// LineLens records how many words each original line contributed, in
	// order. Zero-word lines keep a zero entry so reconstruction has a 1:1
	// line correspondence. Sums to len(Words).
	LineLens []int
}

// Tokenize whitespace-splits every line into a [Sequence]. It returns
// [ErrEmptyInput] when no line contains any word.
func Tokenize(lines []string) (Sequence, error) {
	seq := Sequence{LineLens: make([]int, 0, len(lines))}
	for _, line := range lines {
		words := strings.Fields(line)
		seq.Words = append(seq.Words, words...)
		seq.LineLens = append(seq.LineLens, len(words))
	}
	if len(seq.Words) == 0 {
		return Sequence{}, ErrEmptyInput
	}
	return seq, nil
}
