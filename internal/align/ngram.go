package align

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jvbeek/palimpsest/pkg/fuzzy"
)

// spacePlaceholder replaces spaces inside n-gram strings before they are fed
// to the fuzzy dictionary, which treats whitespace as a token boundary.
// U+001F (unit separator) cannot appear in tokenised words — [Tokenize]
// splits on whitespace and control characters never survive OCR text lines.
const spacePlaceholder = "\x1f"

// absoluteDistanceCap limits the dictionary edit distance regardless of
// n-gram length, so long windows still reject wildly different text.
const absoluteDistanceCap = 6

// Index maps every n-gram of a fixed window length to its starting word
// positions in one word sequence, and answers bounded fuzzy lookups over
// those n-grams. Read-only after [NewIndex] and safe for concurrent use.
type Index struct {
	length      int
	maxProp     float64
	maxDictDist int

	ngrams map[string][]int
	order  []string

	dict fuzzy.Dict
}

// NewIndex builds an [Index] of window length over words. Each n-gram string
// is the window's words joined by a single space. A sequence shorter than the
// window yields an empty index, not an error.
//
// The dictionary edit-distance cap is min(distPerWord*length, 6): proportional
// to the window so longer phrases tolerate more character errors, but bounded
// absolutely. maxProp additionally bounds each individual lookup relative to
// the query's character length.
func NewIndex(words []string, length, distPerWord int, maxProp float64, build fuzzy.Builder) (*Index, error) {
	if length < 1 {
		return nil, fmt.Errorf("align: n-gram length must be >= 1, got %d", length)
	}

	ix := &Index{
		length:      length,
		maxProp:     maxProp,
		maxDictDist: min(distPerWord*length, absoluteDistanceCap),
		ngrams:      make(map[string][]int),
	}

	for i := 0; i+length <= len(words); i++ {
		ngram := strings.Join(words[i:i+length], " ")
		if _, ok := ix.ngrams[ngram]; !ok {
			ix.order = append(ix.order, ngram)
		}
		ix.ngrams[ngram] = append(ix.ngrams[ngram], i)
	}

	entries := make([]fuzzy.Entry, len(ix.order))
	for i, ngram := range ix.order {
		entries[i] = fuzzy.Entry{
			Term:   strings.ReplaceAll(ngram, " ", spacePlaceholder),
			Weight: 1,
		}
	}
	dict, err := build(entries, ix.maxDictDist)
	if err != nil {
		return nil, fmt.Errorf("align: build fuzzy dictionary: %w", err)
	}
	ix.dict = dict

	return ix, nil
}

// Length returns the window length the index was built with.
func (ix *Index) Length() int { return ix.length }

// NGrams returns the distinct n-gram strings in first-occurrence order.
// The returned slice must not be modified.
func (ix *Index) NGrams() []string { return ix.order }

// Positions returns the starting word positions of ngram, or nil when the
// exact string is not indexed — never an error.
func (ix *Index) Positions(ngram string) []int { return ix.ngrams[ngram] }

// FuzzyLookup returns the indexed n-grams closest to ngram, mapped to their
// edit distance. Only the best distance tier found is returned; when
// sameLenOnly is set, candidates whose word count differs from the index
// window length are discarded after that selection, which may leave the
// result empty.
func (ix *Index) FuzzyLookup(ngram string, sameLenOnly bool) (map[string]int, error) {
	maxDist := int(float64(utf8.RuneCountInString(ngram)) * ix.maxProp)
	if maxDist > ix.maxDictDist {
		maxDist = ix.maxDictDist
	}

	suggestions, err := ix.dict.Lookup(strings.ReplaceAll(ngram, " ", spacePlaceholder), maxDist)
	if err != nil {
		return nil, fmt.Errorf("align: fuzzy lookup %q: %w", ngram, err)
	}

	closest := make(map[string]int)
	for _, s := range suggestions {
		// Suggestions arrive ranked by distance; keep the best tier only.
		if s.Distance != suggestions[0].Distance {
			break
		}
		candidate := strings.ReplaceAll(s.Term, spacePlaceholder, " ")
		if sameLenOnly && len(strings.Fields(candidate)) != ix.length {
			continue
		}
		closest[candidate] = s.Distance
	}
	return closest, nil
}
