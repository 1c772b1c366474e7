package align_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jvbeek/palimpsest/internal/align"
	"github.com/jvbeek/palimpsest/pkg/fuzzy"
	"github.com/jvbeek/palimpsest/pkg/fuzzy/mock"
)

// correct runs a full correction over single-source line slices and returns
// the result plus the final joined text.
func correct(t *testing.T, ocrLines, manLines []string, opts ...align.Option) (*align.Result, string) {
	t.Helper()

	ocr, err := align.Tokenize(ocrLines)
	if err != nil {
		t.Fatalf("Tokenize(ocr): %v", err)
	}
	man, err := align.Tokenize(manLines)
	if err != nil {
		t.Fatalf("Tokenize(man): %v", err)
	}

	res, err := align.New(opts...).Correct(ocr, man)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}

	return res, strings.Join(res.TextLines(), "\n")
}

func TestCorrect_SingleSubstitution(t *testing.T) {
	t.Parallel()

	res, text := correct(t,
		[]string{"This is a smple text."},
		[]string{"This is a sample text."},
	)

	if text != "This is a ~sample text." {
		t.Errorf("corrected text = %q, want %q", text, "This is a ~sample text.")
	}
	if n := len(res.Corrections); n != 1 {
		t.Fatalf("corrections = %d, want 1: %+v", n, res.Corrections)
	}
	c := res.Corrections[0]
	if c.Original != "smple" || c.Corrected != "sample" || c.Method != align.MethodNGram {
		t.Errorf("correction = %+v, want smple→sample via ngram", c)
	}
}

func TestCorrect_IdenticalInputIsUntouched(t *testing.T) {
	t.Parallel()

	res, text := correct(t,
		[]string{"All correct text here."},
		[]string{"All correct text here."},
	)

	if text != "All correct text here." {
		t.Errorf("corrected text = %q, want input unchanged", text)
	}
	if strings.ContainsAny(text, "~[") {
		t.Errorf("corrected text %q contains marker characters", text)
	}
	if len(res.Corrections) != 0 {
		t.Errorf("corrections = %+v, want none", res.Corrections)
	}
}

func TestCorrect_TranscriptionOnlyTail(t *testing.T) {
	t.Parallel()

	res, text := correct(t,
		[]string{"The quick brown fox."},
		[]string{"The quick brown fox jumps over the lazy dog."},
	)

	// "fox." aligns against "fox" (one edit), so it carries a substitution;
	// the transcription tail becomes an insertion block glued to it.
	want := "[[jumps__SEP__over__SEP__the__SEP__lazy__SEP__dog.]]"
	if got := res.Words[3]; !strings.Contains(got, want) {
		t.Errorf("last word = %q, want insertion block %q attached", got, want)
	}
	if !strings.Contains(text, "jumps over the lazy dog.") {
		t.Errorf("joined text = %q, want expanded insertion words", text)
	}

	var inserted bool
	for _, c := range res.Corrections {
		if c.Method == align.MethodInsertion && c.Corrected == "jumps over the lazy dog." {
			inserted = true
		}
	}
	if !inserted {
		t.Errorf("corrections = %+v, want an insertion record", res.Corrections)
	}
}

func TestCorrect_CustomSeparator(t *testing.T) {
	t.Parallel()

	res, text := correct(t,
		[]string{"The quick brown fox."},
		[]string{"The quick brown fox jumps over the lazy dog."},
		align.WithWordSeparator("@@GLUE@@"),
	)

	if res.Separator != "@@GLUE@@" {
		t.Fatalf("Separator = %q, want %q", res.Separator, "@@GLUE@@")
	}
	want := "[[jumps@@GLUE@@over@@GLUE@@the@@GLUE@@lazy@@GLUE@@dog.]]"
	if got := res.Words[3]; !strings.Contains(got, want) {
		t.Errorf("last word = %q, want insertion block %q attached", got, want)
	}

	// The configured glue must never leak into final text.
	if strings.Contains(text, "@@GLUE@@") {
		t.Errorf("joined text = %q, glue token not expanded", text)
	}
	if !strings.Contains(text, "jumps over the lazy dog.") {
		t.Errorf("joined text = %q, want expanded insertion words", text)
	}
}

func TestCorrect_MultipleSubstitutions(t *testing.T) {
	t.Parallel()

	_, text := correct(t,
		[]string{"Ths is an exmple of OCR."},
		[]string{"This is an example of OCR."},
	)

	if text != "~This is an ~example of OCR." {
		t.Errorf("corrected text = %q, want %q", text, "~This is an ~example of OCR.")
	}
}

func TestCorrect_UnrelatedTexts(t *testing.T) {
	t.Parallel()

	res, _ := correct(t,
		[]string{"Unrelated OCR content."},
		[]string{"Different manual transcription."},
	)

	for i, w := range res.Words {
		if strings.Contains(w, "~") {
			t.Errorf("word %d = %q: unrelated input must produce no substitutions", i, w)
		}
	}
	// Every OCR word is individually bracketed under the default policy.
	for i, orig := range []string{"Unrelated", "OCR", "content."} {
		if !strings.Contains(res.Words[i], "["+orig+"]") {
			t.Errorf("word %d = %q, want %q bracket-wrapped", i, res.Words[i], orig)
		}
	}
	// The never-aligned transcription precedes everything, so its insertion
	// block attaches before the first OCR word.
	if !strings.HasPrefix(res.Words[0], "[[Different__SEP__manual__SEP__transcription.]]") {
		t.Errorf("first word = %q, want leading insertion block", res.Words[0])
	}
}

func TestCorrect_UnmatchedKeepPolicy(t *testing.T) {
	t.Parallel()

	res, _ := correct(t,
		[]string{"Unrelated OCR content."},
		[]string{"Different manual transcription."},
		align.WithUnmatchedPolicy(align.UnmatchedKeep),
	)

	for i, orig := range []string{"Unrelated", "OCR", "content."} {
		if strings.Contains(res.Words[i], "["+orig+"]") {
			t.Errorf("word %d = %q: keep policy must not bracket %q", i, res.Words[i], orig)
		}
	}
}

func TestCorrect_VariableLengthFallback(t *testing.T) {
	t.Parallel()

	// "thequickfox" has no same-length n-gram match, but is within the looser
	// fallback distance of the three-word transcription span "the quick fox".
	res, _ := correct(t,
		[]string{"intro thequickfox outro"},
		[]string{"intro the quick fox outro"},
	)

	want := "~~the__SEP__~~quick__SEP__~~fox"
	if got := res.Words[1]; !strings.HasPrefix(got, want) {
		t.Errorf("fallback word = %q, want prefix %q", got, want)
	}

	var fell bool
	for _, c := range res.Corrections {
		if c.Method == align.MethodFallback && c.Original == "thequickfox" && c.Corrected == "the quick fox" {
			fell = true
		}
	}
	if !fell {
		t.Errorf("corrections = %+v, want a fallback record for thequickfox", res.Corrections)
	}
}

func TestCorrect_ShowOriginal(t *testing.T) {
	t.Parallel()

	res, _ := correct(t,
		[]string{"This is a smple text."},
		[]string{"This is a sample text."},
		align.WithShowOriginal(true),
	)

	if got := res.Words[3]; got != "[smple~sample]" {
		t.Errorf("substitution = %q, want %q", got, "[smple~sample]")
	}
}

func TestCorrect_PositionCountInvariant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ocr  []string
		man  []string
	}{
		{"identical", []string{"one two three"}, []string{"one two three"}},
		{"substitution", []string{"This is a smple text."}, []string{"This is a sample text."}},
		{"insertion", []string{"The quick brown fox."}, []string{"The quick brown fox jumps over the lazy dog."}},
		{"unrelated", []string{"alpha beta gamma"}, []string{"delta epsilon zeta"}},
		{"multiline", []string{"first line here", "", "second line here"}, []string{"first line here second line here"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ocr, err := align.Tokenize(tc.ocr)
			if err != nil {
				t.Fatalf("Tokenize: %v", err)
			}
			man, err := align.Tokenize(tc.man)
			if err != nil {
				t.Fatalf("Tokenize: %v", err)
			}
			res, err := align.New().Correct(ocr, man)
			if err != nil {
				t.Fatalf("Correct: %v", err)
			}
			if len(res.Words) != len(ocr.Words) {
				t.Errorf("len(corrected) = %d, want %d: insertions must not grow the OCR side", len(res.Words), len(ocr.Words))
			}
			if len(res.Lines) != len(ocr.LineLens) {
				t.Errorf("len(lines) = %d, want %d", len(res.Lines), len(ocr.LineLens))
			}
		})
	}
}

func TestCorrect_EmptyInput(t *testing.T) {
	t.Parallel()

	ocr := align.Sequence{Words: []string{"word"}, LineLens: []int{1}}
	if _, err := align.New().Correct(align.Sequence{}, ocr); !errors.Is(err, align.ErrEmptyInput) {
		t.Errorf("Correct(empty, ocr): err = %v, want ErrEmptyInput", err)
	}
	if _, err := align.New().Correct(ocr, align.Sequence{}); !errors.Is(err, align.ErrEmptyInput) {
		t.Errorf("Correct(ocr, empty): err = %v, want ErrEmptyInput", err)
	}
}

func TestCorrect_DictionaryFailurePropagates(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("dictionary exploded")

	ocr := align.Sequence{Words: []string{"a", "b", "c"}, LineLens: []int{3}}
	man := align.Sequence{Words: []string{"a", "b", "c"}, LineLens: []int{3}}

	c := align.New(align.WithDictBuilder(mock.Builder(&mock.Dict{Err: sentinel})))
	if _, err := c.Correct(ocr, man); !errors.Is(err, sentinel) {
		t.Errorf("Correct with failing lookups: err = %v, want wrapped sentinel", err)
	}

	c = align.New(align.WithDictBuilder(mock.FailingBuilder(sentinel)))
	if _, err := c.Correct(ocr, man); !errors.Is(err, sentinel) {
		t.Errorf("Correct with failing builder: err = %v, want wrapped sentinel", err)
	}
}

func TestCorrect_MockScriptedLookup(t *testing.T) {
	t.Parallel()

	// Script the dictionary so "b x d" fuzzily resolves to "b c d" with
	// distance 1, regardless of any real metric.
	sep := "\x1f"
	dict := &mock.Dict{Suggestions: map[string][]fuzzy.Suggestion{
		"a" + sep + "b" + sep + "x": {{Term: "a" + sep + "b" + sep + "c", Distance: 1}},
	}}

	ocr := align.Sequence{Words: []string{"a", "b", "x"}, LineLens: []int{3}}
	man := align.Sequence{Words: []string{"a", "b", "c"}, LineLens: []int{3}}

	res, err := align.New(align.WithDictBuilder(mock.Builder(dict))).Correct(ocr, man)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if got := res.Words[2]; got != "~c" {
		t.Errorf("scripted substitution = %q, want %q", got, "~c")
	}
}
