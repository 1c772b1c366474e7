// Package fuzzy defines the bounded fuzzy-dictionary contract consumed by the
// alignment engine.
//
// A [Dict] is built once from a fixed set of entries and answers bounded
// edit-distance lookups: given a query token and a maximum edit distance, it
// returns the dictionary entries within that distance, ranked best-first.
// Entries are opaque tokens — callers that need multi-word phrases must glue
// the words together with a placeholder character first, since implementations
// are free to assume entries contain no whitespace.
//
// The production implementation lives in [github.com/jvbeek/palimpsest/pkg/fuzzy/symdel];
// a scripted implementation for tests lives in the mock subpackage. The engine
// never depends on a concrete dictionary, only on this contract, so the
// alignment algorithm stays testable with a mock.
package fuzzy

// Entry is a single dictionary token with a relative weight. Weight breaks
// ties between candidates at the same edit distance; for alignment use every
// entry carries the same dummy weight.
type Entry struct {
	Term   string
	Weight int
}

// Suggestion is one ranked lookup result.
type Suggestion struct {
	// Term is the matching dictionary entry.
	Term string

	// Distance is the character-level edit distance between the query and
	// Term. Always in [0, maxDist] for the maxDist passed to Lookup.
	Distance int
}

// Dict is a bounded fuzzy-lookup dictionary. Implementations must be safe for
// concurrent use after construction.
type Dict interface {
	// Lookup returns every dictionary entry within maxDist edits of query,
	// ordered by ascending distance (ties broken by descending weight, then
	// lexicographically). An empty result means no entry is close enough —
	// that is not an error. Errors are reserved for genuine lookup failures
	// and must be propagated unchanged by callers.
	Lookup(query string, maxDist int) ([]Suggestion, error)
}

// Builder constructs a [Dict] from entries. maxEditDistance is the largest
// distance any later Lookup call will request; implementations may use it to
// size their index and may reject lookups that exceed it.
type Builder func(entries []Entry, maxEditDistance int) (Dict, error)
