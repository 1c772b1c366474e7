package align

import (
	"sort"
	"strings"
)

// render produces the corrected word sequence from the selected spans plus
// the uncovered remainder, and itemises every annotation it applies.
//
// Pass 1 walks the spans and substitutes every aligned word pair that
// differs. Pass 2 attempts the variable-length fallback for each OCR word no
// span explained, bracketing it when that fails too. Pass 3 renders maximal
// runs of never-aligned transcription words as insertion blocks attached to
// the nearest mapped OCR position.
func (c *Corrector) render(ocr, man Sequence, spans []Span) ([]string, []Correction, Stats, error) {
	corrected := make([]string, len(ocr.Words))
	copy(corrected, ocr.Words)

	corrections := []Correction{}
	var stats Stats

	covered := make([]bool, len(ocr.Words))

	// manToOCR maps each transcription position to the OCR position it was
	// aligned to, or -1. Unmapped runs become insertion blocks in pass 3.
	manToOCR := make([]int, len(man.Words))
	for i := range manToOCR {
		manToOCR[i] = -1
	}

	// --- Pass 1: substitutions from primary spans ---
	for _, span := range spans {
		matches := make([]Match, len(span.Matches))
		copy(matches, span.Matches)
		sort.Slice(matches, func(i, j int) bool { return matches[i].OCRPos < matches[j].OCRPos })

		for _, m := range matches {
			for i := 0; i < c.ngramLen; i++ {
				op, mp := m.OCRPos+i, m.ManPos+i
				if !covered[op] && corrected[op] != man.Words[mp] {
					corrected[op] = c.substitution(ocr.Words[op], man.Words[mp])
					corrections = append(corrections, Correction{
						Original:  ocr.Words[op],
						Corrected: man.Words[mp],
						Distance:  m.Distance,
						Method:    MethodNGram,
					})
					stats.Substituted++
				}
				covered[op] = true
				manToOCR[mp] = op
			}
		}
	}

	// --- Pass 2: variable-length fallback for uncovered OCR words ---
	var fallbackIndices []*Index
	for l := c.fallbackMin; l <= c.fallbackMax; l++ {
		ix, err := NewIndex(man.Words, l, c.distPerWord, c.fallbackProp, c.build)
		if err != nil {
			return nil, nil, Stats{}, err
		}
		fallbackIndices = append(fallbackIndices, ix)
	}

	for i := range ocr.Words {
		if covered[i] {
			continue
		}
		beg, end, dist, err := fallbackSpan(ocr.Words[i], fallbackIndices, manToOCR)
		if err != nil {
			return nil, nil, Stats{}, err
		}
		if beg < 0 {
			if c.unmatched == UnmatchedBracket {
				corrected[i] = leftBracket + corrected[i] + rightBracket
			}
			corrections = append(corrections, Correction{
				Original: ocr.Words[i],
				Method:   MethodUnmatched,
			})
			stats.Unmatched++
			continue
		}

		corrected[i] = c.multiSubstitution(ocr.Words[i], man.Words[beg:end+1])
		for j := beg; j <= end; j++ {
			manToOCR[j] = i
		}
		corrections = append(corrections, Correction{
			Original:  ocr.Words[i],
			Corrected: strings.Join(man.Words[beg:end+1], " "),
			Distance:  dist,
			Method:    MethodFallback,
		})
		stats.Fallbacks++
	}

	// --- Pass 3: transcription-only gaps become insertion blocks ---
	for i := 0; i < len(man.Words); {
		j := i
		for j < len(man.Words) && manToOCR[j] == -1 {
			j++
		}
		if j > i {
			block := leftBracket + leftBracket +
				strings.Join(man.Words[i:j], c.wordSep) +
				rightBracket + rightBracket
			if i == 0 {
				// The gap precedes everything aligned; attach it before the
				// first OCR word.
				corrected[0] = block + c.wordSep + corrected[0]
			} else {
				corrected[manToOCR[i-1]] += c.wordSep + block
			}
			corrections = append(corrections, Correction{
				Corrected: strings.Join(man.Words[i:j], " "),
				Method:    MethodInsertion,
			})
			stats.Insertions++
		}
		i = j + 1
	}

	return corrected, corrections, stats, nil
}

// substitution renders a single-word correction: ~word, or [orig~word] when
// show-original mode is on.
func (c *Corrector) substitution(orig, man string) string {
	if c.addOrig {
		return leftBracket + orig + correctionMark + man + rightBracket
	}
	return correctionMark + man
}

// multiSubstitution renders a variable-length correction. Every
// transcription word carries a double tilde and the words are glued with the
// word separator so the whole block stays attached to one OCR position:
// ~~w1__SEP__~~w2__SEP__~~w3.
func (c *Corrector) multiSubstitution(orig string, manWords []string) string {
	head := correctionMark + correctionMark + manWords[0]
	if c.addOrig {
		head = leftBracket + orig + correctionMark + correctionMark + manWords[0] + rightBracket
	}
	parts := []string{head}
	for _, w := range manWords[1:] {
		parts = append(parts, correctionMark+correctionMark+w)
	}
	return strings.Join(parts, c.wordSep)
}

// fallbackSpan looks the OCR word up against transcription indices of
// increasing window length and returns the first candidate span whose
// positions are all still unmapped. Returns beg = -1 when no length yields
// an acceptable span.
func fallbackSpan(word string, indices []*Index, manToOCR []int) (beg, end, dist int, err error) {
	for _, ix := range indices {
		closest, lerr := ix.FuzzyLookup(word, false)
		if lerr != nil {
			return -1, -1, 0, lerr
		}
		if len(closest) == 0 {
			continue
		}

		candidates := make([]string, 0, len(closest))
		for ngram := range closest {
			candidates = append(candidates, ngram)
		}
		sort.Strings(candidates)

		for _, ngram := range candidates {
			for _, pos := range ix.Positions(ngram) {
				if spanUnmapped(manToOCR, pos, ix.Length()) {
					return pos, pos + ix.Length() - 1, closest[ngram], nil
				}
			}
		}
	}
	return -1, -1, 0, nil
}

func spanUnmapped(manToOCR []int, pos, length int) bool {
	for j := pos; j < pos+length; j++ {
		if manToOCR[j] != -1 {
			return false
		}
	}
	return true
}
