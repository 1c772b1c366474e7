// Package symdel implements [fuzzy.Dict] with a symmetric-delete index.
//
// At build time every entry is reduced to its rune prefix and all variants of
// that prefix with up to maxEditDistance characters deleted; each variant maps
// back to the entries it was derived from. A lookup generates the same delete
// variants for the query prefix, collects the candidate entries they point to,
// and verifies each candidate with a true Damerau-Levenshtein computation.
// Precomputing deletes makes lookup cost independent of dictionary size, at
// the price of index memory — the standard SymSpell trade-off.
//
// The index is read-only after [New] and safe for concurrent use.
package symdel

import (
	"fmt"
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/jvbeek/palimpsest/pkg/fuzzy"
)

// defaultPrefixLength is the number of leading runes indexed per entry. It
// must exceed the maximum edit distance or delete variants of long entries
// collapse too aggressively.
const defaultPrefixLength = 7

// Option is a functional option for configuring a [Dict].
type Option func(*Dict)

// WithPrefixLength sets the indexed prefix length. Default: 7.
func WithPrefixLength(n int) Option {
	return func(d *Dict) {
		d.prefixLength = n
	}
}

// Dict is the symmetric-delete dictionary. Construct with [New].
type Dict struct {
	maxEditDistance int
	prefixLength    int

	terms   []string
	weights []int
	index   map[string]int

	// deletes maps a prefix delete-variant to the indices of all terms that
	// can produce it.
	deletes map[string][]int
}

// Verify interface satisfaction at compile time.
var _ fuzzy.Dict = (*Dict)(nil)

// New builds a [Dict] from entries. maxEditDistance bounds the distance any
// later [Dict.Lookup] may request.
func New(entries []fuzzy.Entry, maxEditDistance int, opts ...Option) (*Dict, error) {
	if maxEditDistance < 0 {
		return nil, fmt.Errorf("symdel: max edit distance must be >= 0, got %d", maxEditDistance)
	}

	d := &Dict{
		maxEditDistance: maxEditDistance,
		prefixLength:    defaultPrefixLength,
		deletes:         make(map[string][]int),
	}
	for _, o := range opts {
		o(d)
	}
	if d.prefixLength <= d.maxEditDistance {
		d.prefixLength = d.maxEditDistance + 1
	}

	d.index = make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Term == "" {
			continue
		}
		if i, ok := d.index[e.Term]; ok {
			// Duplicate entries keep the highest weight.
			if e.Weight > d.weights[i] {
				d.weights[i] = e.Weight
			}
			continue
		}
		idx := len(d.terms)
		d.index[e.Term] = idx
		d.terms = append(d.terms, e.Term)
		d.weights = append(d.weights, e.Weight)

		for variant := range deleteVariants(prefix(e.Term, d.prefixLength), d.maxEditDistance) {
			d.deletes[variant] = append(d.deletes[variant], idx)
		}
	}
	return d, nil
}

// Builder returns a [fuzzy.Builder] backed by this package.
func Builder(opts ...Option) fuzzy.Builder {
	return func(entries []fuzzy.Entry, maxEditDistance int) (fuzzy.Dict, error) {
		return New(entries, maxEditDistance, opts...)
	}
}

// Lookup implements [fuzzy.Dict]. maxDist must not exceed the distance the
// dictionary was built for.
func (d *Dict) Lookup(query string, maxDist int) ([]fuzzy.Suggestion, error) {
	if maxDist < 0 {
		return nil, fmt.Errorf("symdel: lookup distance must be >= 0, got %d", maxDist)
	}
	if maxDist > d.maxEditDistance {
		return nil, fmt.Errorf("symdel: lookup distance %d exceeds index distance %d", maxDist, d.maxEditDistance)
	}

	queryLen := len([]rune(query))

	candidates := make(map[int]struct{})
	for variant := range deleteVariants(prefix(query, d.prefixLength), maxDist) {
		for _, idx := range d.deletes[variant] {
			candidates[idx] = struct{}{}
		}
	}

	var out []fuzzy.Suggestion
	for idx := range candidates {
		term := d.terms[idx]
		// Length difference is a lower bound on the edit distance.
		if diff := len([]rune(term)) - queryLen; diff > maxDist || -diff > maxDist {
			continue
		}
		dist := matchr.DamerauLevenshtein(query, term)
		if dist > maxDist {
			continue
		}
		out = append(out, fuzzy.Suggestion{Term: term, Distance: dist})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		wi, wj := d.weightOf(out[i].Term), d.weightOf(out[j].Term)
		if wi != wj {
			return wi > wj
		}
		return out[i].Term < out[j].Term
	})
	return out, nil
}

func (d *Dict) weightOf(term string) int {
	if i, ok := d.index[term]; ok {
		return d.weights[i]
	}
	return 0
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// deleteVariants returns s plus every string obtainable from s by deleting up
// to maxDeletes single runes.
func deleteVariants(s string, maxDeletes int) map[string]struct{} {
	variants := map[string]struct{}{s: {}}
	frontier := []string{s}
	for round := 0; round < maxDeletes; round++ {
		var next []string
		for _, v := range frontier {
			r := []rune(v)
			for i := range r {
				del := string(r[:i]) + string(r[i+1:])
				if _, ok := variants[del]; !ok {
					variants[del] = struct{}{}
					next = append(next, del)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return variants
}
