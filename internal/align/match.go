package align

import "sort"

// Match pairs one OCR n-gram occurrence with one transcription n-gram
// occurrence and the character edit distance between the two strings. It is
// an immutable value; identical tuples from different lookup origins collapse
// into one candidate.
type Match struct {
	OCRNGram string
	OCRPos   int
	ManNGram string
	ManPos   int
	Distance int
}

// EnumerateMatches cross-references every distinct OCR n-gram against its
// closest transcription n-grams and emits one [Match] per occurrence pair.
// The result is deliberately exhaustive — [SelectSpans] prunes it down to a
// consistent alignment. Both indices must share the same window length.
//
// The output order is deterministic: OCR n-grams in first-occurrence order,
// candidate n-grams sorted lexicographically within each.
func EnumerateMatches(ocr, man *Index) ([]Match, error) {
	seen := make(map[Match]struct{})
	var out []Match

	for _, ocrNGram := range ocr.NGrams() {
		closest, err := man.FuzzyLookup(ocrNGram, true)
		if err != nil {
			return nil, err
		}
		if len(closest) == 0 {
			continue
		}

		candidates := make([]string, 0, len(closest))
		for manNGram := range closest {
			candidates = append(candidates, manNGram)
		}
		sort.Strings(candidates)

		for _, ocrPos := range ocr.Positions(ocrNGram) {
			for _, manNGram := range candidates {
				for _, manPos := range man.Positions(manNGram) {
					m := Match{
						OCRNGram: ocrNGram,
						OCRPos:   ocrPos,
						ManNGram: manNGram,
						ManPos:   manPos,
						Distance: closest[manNGram],
					}
					if _, dup := seen[m]; dup {
						continue
					}
					seen[m] = struct{}{}
					out = append(out, m)
				}
			}
		}
	}
	return out, nil
}
