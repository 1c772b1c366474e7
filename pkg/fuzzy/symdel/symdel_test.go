package symdel_test

import (
	"testing"

	"github.com/jvbeek/palimpsest/pkg/fuzzy"
	"github.com/jvbeek/palimpsest/pkg/fuzzy/symdel"
)

func entries(terms ...string) []fuzzy.Entry {
	es := make([]fuzzy.Entry, len(terms))
	for i, t := range terms {
		es[i] = fuzzy.Entry{Term: t, Weight: 1}
	}
	return es
}

func TestLookup_ExactMatch(t *testing.T) {
	t.Parallel()

	d, err := symdel.New(entries("sample", "simple", "temple"), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := d.Lookup("sample", 2)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Lookup(sample): no suggestions, want at least the exact match")
	}
	if got[0].Term != "sample" || got[0].Distance != 0 {
		t.Errorf("Lookup(sample): best = %+v, want {sample 0}", got[0])
	}
}

func TestLookup_RankedByDistance(t *testing.T) {
	t.Parallel()

	d, err := symdel.New(entries("sample", "simple", "ample"), 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := d.Lookup("smple", 3)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("Lookup(smple): got %d suggestions, want >= 2", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("suggestions not ordered by distance: %+v", got)
		}
	}
	// "sample" and "ample" are both one edit away; "simple" is also one edit.
	if got[0].Distance != 1 {
		t.Errorf("Lookup(smple): best distance = %d, want 1", got[0].Distance)
	}
}

func TestLookup_RespectsBound(t *testing.T) {
	t.Parallel()

	d, err := symdel.New(entries("transcription"), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := d.Lookup("art", 2)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Lookup(art): got %+v, want no suggestions within distance 2", got)
	}
}

func TestLookup_DistanceExceedsIndex(t *testing.T) {
	t.Parallel()

	d, err := symdel.New(entries("word"), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.Lookup("word", 2); err == nil {
		t.Error("Lookup with distance above index bound: err = nil, want error")
	}
}

func TestLookup_MultiWordTokens(t *testing.T) {
	t.Parallel()

	// The alignment engine glues n-gram words with a placeholder rune before
	// feeding them in; the dictionary must treat the result as one token.
	sep := "\x1f"
	d, err := symdel.New(entries("is"+sep+"a"+sep+"sample"), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := d.Lookup("is"+sep+"a"+sep+"smple", 2)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 || got[0].Distance != 1 {
		t.Fatalf("Lookup: got %+v, want single suggestion at distance 1", got)
	}
}

func TestLookup_ZeroDistanceIsExactOnly(t *testing.T) {
	t.Parallel()

	d, err := symdel.New(entries("sample", "samples"), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := d.Lookup("sample", 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 || got[0].Term != "sample" {
		t.Errorf("Lookup(sample, 0): got %+v, want exactly [{sample 0}]", got)
	}
}
