// Package mock provides a scripted [fuzzy.Dict] for tests.
package mock

import "github.com/jvbeek/palimpsest/pkg/fuzzy"

// Dict returns canned suggestions per query. A nil Suggestions map answers
// every lookup with no results.
type Dict struct {
	// Suggestions maps a query string to the suggestions to return.
	Suggestions map[string][]fuzzy.Suggestion

	// Err, when non-nil, is returned by every Lookup call.
	Err error

	// Lookups records every query passed to Lookup, in order.
	Lookups []string
}

// Lookup implements [fuzzy.Dict]. Suggestions whose distance exceeds maxDist
// are filtered out, mirroring the bounded-lookup contract.
func (d *Dict) Lookup(query string, maxDist int) ([]fuzzy.Suggestion, error) {
	d.Lookups = append(d.Lookups, query)
	if d.Err != nil {
		return nil, d.Err
	}
	var out []fuzzy.Suggestion
	for _, s := range d.Suggestions[query] {
		if s.Distance <= maxDist {
			out = append(out, s)
		}
	}
	return out, nil
}

// Builder returns a [fuzzy.Builder] that ignores the entries and always hands
// out dict. Useful for injecting canned behaviour into the engine.
func Builder(dict fuzzy.Dict) fuzzy.Builder {
	return func([]fuzzy.Entry, int) (fuzzy.Dict, error) {
		return dict, nil
	}
}

// FailingBuilder returns a [fuzzy.Builder] that always fails with err.
func FailingBuilder(err error) fuzzy.Builder {
	return func([]fuzzy.Entry, int) (fuzzy.Dict, error) {
		return nil, err
	}
}
