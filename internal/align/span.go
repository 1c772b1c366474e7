package align

import "sort"

// Span is one greedily selected set of pairwise offset-compatible matches,
// covering a contiguous region of both sequences.
type Span struct {
	Matches []Match
}

// SelectSpans greedily partitions matches into disjoint [Span]s.
//
// Each outer iteration snapshots and sorts the remaining worklist by
// (distance ascending, positional skew |ocrPos-manPos| ascending) — distance
// first because it reflects alignment confidence, skew as the tie-break
// because scanned-page text reads roughly monotonically. Starting position is
// the final tie-break, making selection fully deterministic. One linear scan
// collects every match offset-compatible with the set built so far; the set's
// covered word ranges are then marked in both coverage masks and any
// remaining match straddling an explained region is dropped, so spans never
// overlap. Sets smaller than minSetSize merely discard the single best match
// and the loop continues.
//
// This is a greedy approximation of maximum-weight disjoint interval
// covering: not globally optimal, but linear-ish on page-length text.
func SelectSpans(matches []Match, length, minSetSize, ocrLen, manLen int) []Span {
	rest := make([]Match, len(matches))
	copy(rest, matches)

	coveredOCR := make([]bool, ocrLen)
	coveredMan := make([]bool, manLen)

	var spans []Span
	for len(rest) > 0 {
		sorted := make([]Match, len(rest))
		copy(sorted, rest)
		sortMatches(sorted)

		var set []Match
		for _, m := range sorted {
			if offsetCompatible(m, set, length) {
				set = append(set, m)
			}
		}

		if len(set) < minSetSize {
			rest = removeMatches(rest, sorted[:1])
			continue
		}

		rest = removeMatches(rest, set)
		spans = append(spans, Span{Matches: set})

		for _, m := range set {
			for i := 0; i < length; i++ {
				coveredOCR[m.OCRPos+i] = true
				coveredMan[m.ManPos+i] = true
			}
		}

		// A match straddling an already-explained region is no longer
		// trustworthy.
		kept := rest[:0]
		for _, m := range rest {
			if !overlapsCovered(m, length, coveredOCR, coveredMan) {
				kept = append(kept, m)
			}
		}
		rest = kept
	}
	return spans
}

// sortMatches orders by (distance, skew, ocr position, transcription
// position). The first two keys are the selection heuristic; the last two
// only pin down a total order.
func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		sa, sb := absInt(a.OCRPos-a.ManPos), absInt(b.OCRPos-b.ManPos)
		if sa != sb {
			return sa < sb
		}
		if a.OCRPos != b.OCRPos {
			return a.OCRPos < b.OCRPos
		}
		return a.ManPos < b.ManPos
	})
}

// offsetCompatible reports whether m chains onto set: some member must sit at
// an identical displacement on both sequences, smaller in magnitude than the
// window length, so the covered spans overlap or touch consistently. Equal
// displacement is transitive, so every member of a set shares one skew; the
// window bound only has to hold against a neighbour for the region to stay
// contiguous. An empty set accepts anything.
func offsetCompatible(m Match, set []Match, length int) bool {
	if len(set) == 0 {
		return true
	}
	for _, c := range set {
		d := m.OCRPos - c.OCRPos
		if d == m.ManPos-c.ManPos && absInt(d) < length {
			return true
		}
	}
	return false
}

func overlapsCovered(m Match, length int, coveredOCR, coveredMan []bool) bool {
	for i := 0; i < length; i++ {
		if coveredOCR[m.OCRPos+i] || coveredMan[m.ManPos+i] {
			return true
		}
	}
	return false
}

func removeMatches(from, drop []Match) []Match {
	dropped := make(map[Match]struct{}, len(drop))
	for _, m := range drop {
		dropped[m] = struct{}{}
	}
	kept := from[:0]
	for _, m := range from {
		if _, ok := dropped[m]; !ok {
			kept = append(kept, m)
		}
	}
	return kept
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
