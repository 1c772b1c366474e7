// Package align implements the manual OCR-correction engine: it aligns noisy
// OCR output against an independently produced ground-truth transcription and
// rewrites the OCR word sequence with inline correction markers, using fuzzy
// n-gram matching only — no model calls.
//
// The engine runs five sequential passes over in-memory data:
//
//  1. [Tokenize] splits both sources into flat word sequences while
//     remembering line boundaries.
//  2. [NewIndex] builds one n-gram index per source and seeds a bounded
//     fuzzy dictionary ([fuzzy.Dict]) with every indexed n-gram.
//  3. [EnumerateMatches] cross-references every OCR n-gram occurrence against
//     fuzzy matches in the transcription index.
//  4. [SelectSpans] greedily partitions the candidates into disjoint sets of
//     offset-compatible matches, each covering one contiguous region of both
//     sequences.
//  5. Rendering walks the selected spans plus the uncovered remainder and
//     produces the corrected word sequence, which [Reconstruct] re-slices
//     onto the original line structure.
//
// Marker syntax in the corrected output:
//
//	~word                     single-word substitution
//	~~w1__SEP__~~w2           substitution spanning a different word count
//	[word]                    OCR word with no correction evidence
//	[[w1__SEP__w2]]           words present only in the transcription
//
// The __SEP__ token glues multi-word blocks to a single OCR position; the
// outermost writer expands it back to a space. Every data structure is owned
// by a single correction run, so independent runs may execute concurrently
// without coordination.
package align

import (
	"errors"
	"fmt"

	"github.com/jvbeek/palimpsest/pkg/fuzzy"
	"github.com/jvbeek/palimpsest/pkg/fuzzy/symdel"
)

// WordSeparator glues the words of a multi-word substitution or insertion
// block to a single OCR word position. The document writer expands it back to
// a space as the very last step. It must never occur inside input words; pick
// a different marker via [WithWordSeparator] if your corpus can contain it.
const WordSeparator = "__SEP__"

// Correction marker tokens. The syntax is a wire format shared with
// downstream consumers and must not change.
const (
	correctionMark = "~"
	leftBracket    = "["
	rightBracket   = "]"
)

// Default engine parameters, matching the values the correction gateway has
// always shipped with.
const (
	defaultNGramLength      = 3
	defaultDistancePerWord  = 2
	defaultMaxProportional  = 0.2
	defaultFallbackProp     = 0.5
	defaultFallbackMin      = 3
	defaultFallbackMax      = 5
	defaultMinSetSize       = 1
)

var (
	// ErrEmptyInput reports that a source tokenised to zero words. Correction
	// is meaningless with no text, so this surfaces to the caller unretried.
	ErrEmptyInput = errors.New("align: input contains no words")

	// ErrReconstructionMismatch reports that the corrected word count does
	// not match the line map. It indicates an internal invariant violation
	// and should never occur.
	ErrReconstructionMismatch = errors.New("align: corrected word count does not match line map")
)

// UnmatchedPolicy controls how OCR words without any correction evidence are
// rendered.
type UnmatchedPolicy string

const (
	// UnmatchedBracket wraps the word in brackets: [word]. The default.
	UnmatchedBracket UnmatchedPolicy = "bracket"

	// UnmatchedKeep leaves the word untouched.
	UnmatchedKeep UnmatchedPolicy = "keep"
)

// IsValid reports whether p is a recognised policy.
func (p UnmatchedPolicy) IsValid() bool {
	return p == UnmatchedBracket || p == UnmatchedKeep
}

// Correction method names, recorded on every [Correction].
const (
	// MethodNGram marks a substitution produced by a primary n-gram span.
	MethodNGram = "ngram"

	// MethodFallback marks a variable-length substitution produced by the
	// secondary per-word lookup.
	MethodFallback = "fallback"

	// MethodInsertion marks a transcription-only gap rendered as a
	// double-bracket block.
	MethodInsertion = "insertion"

	// MethodUnmatched marks an OCR word bracketed for lack of evidence.
	MethodUnmatched = "unmatched"
)

// Correction records a single annotation applied to the OCR sequence, so
// callers can audit or display every change.
type Correction struct {
	// Original is the OCR word as it appeared in the input. Empty for
	// insertions, which have no OCR-side counterpart.
	Original string

	// Corrected is the transcription text that replaced or annotated it.
	// Empty for unmatched words, which carry no correction.
	Corrected string

	// Distance is the character edit distance of the match that produced
	// this correction. Zero for insertions and unmatched words.
	Distance int

	// Method is one of [MethodNGram], [MethodFallback], [MethodInsertion],
	// [MethodUnmatched].
	Method string
}

// Stats summarises one correction run, for logging and metrics.
type Stats struct {
	// Matches is the number of candidate alignments enumerated.
	Matches int

	// Spans is the number of contiguous match sets selected.
	Spans int

	// Substituted counts single-word tilde substitutions.
	Substituted int

	// Fallbacks counts variable-length double-tilde substitutions.
	Fallbacks int

	// Unmatched counts OCR words with no correction evidence.
	Unmatched int

	// Insertions counts transcription-only gap blocks.
	Insertions int
}

// Result is the output of one [Corrector.Correct] run.
type Result struct {
	// Words is the corrected word sequence. Always the same length as the
	// OCR input sequence — insertions attach to existing positions.
	Words []string

	// Lines is Words re-sliced by the OCR line map. Multi-word blocks still
	// carry the separator in effect for the run; emit final text through
	// [Result.TextLines] or [JoinLine].
	Lines [][]string

	// Separator is the multi-word glue token in effect for this run, usually
	// [WordSeparator]. Writers expand it to a space when emitting final text.
	Separator string

	// Corrections itemises every annotation applied, in rendering order.
	// An empty (non-nil) slice means the OCR text matched the transcription
	// everywhere.
	Corrections []Correction

	// Stats summarises the run.
	Stats Stats
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithNGramLength sets the primary n-gram window length. Default: 3.
func WithNGramLength(n int) Option {
	return func(c *Corrector) { c.ngramLen = n }
}

// WithDistancePerWord sets the per-word contribution to the absolute edit
// distance cap: the cap is min(distancePerWord*L, 6). Default: 2.
func WithDistancePerWord(n int) Option {
	return func(c *Corrector) { c.distPerWord = n }
}

// WithMaxProportionalDistance sets the fraction of the query length used as
// the proportional edit-distance bound for primary matching. Default: 0.2.
func WithMaxProportionalDistance(f float64) Option {
	return func(c *Corrector) { c.maxProp = f }
}

// WithFallbackProportionalDistance sets the looser proportional bound used by
// the variable-length fallback. Default: 0.5.
func WithFallbackProportionalDistance(f float64) Option {
	return func(c *Corrector) { c.fallbackProp = f }
}

// WithFallbackLengths sets the inclusive range of transcription n-gram
// lengths the fallback tries, in ascending order. Default: 3 to 5.
func WithFallbackLengths(minLen, maxLen int) Option {
	return func(c *Corrector) {
		c.fallbackMin = minLen
		c.fallbackMax = maxLen
	}
}

// WithShowOriginal keeps the original OCR word next to each substitution,
// bracket-wrapped: [orig~corrected]. Default: off.
func WithShowOriginal(on bool) Option {
	return func(c *Corrector) { c.addOrig = on }
}

// WithUnmatchedPolicy sets how evidence-less OCR words are rendered.
// Default: [UnmatchedBracket].
func WithUnmatchedPolicy(p UnmatchedPolicy) Option {
	return func(c *Corrector) { c.unmatched = p }
}

// WithWordSeparator overrides the multi-word glue token. Only needed when the
// default [WordSeparator] can occur inside input words.
func WithWordSeparator(sep string) Option {
	return func(c *Corrector) { c.wordSep = sep }
}

// WithDictBuilder injects the fuzzy-dictionary implementation. The default is
// [symdel.Builder]. Tests inject a mock to script lookup behaviour.
func WithDictBuilder(b fuzzy.Builder) Option {
	return func(c *Corrector) { c.build = b }
}

// Corrector runs the full correction pipeline. It is read-only after [New]
// and safe for concurrent use; every Correct call owns its own working state.
type Corrector struct {
	ngramLen     int
	distPerWord  int
	maxProp      float64
	fallbackProp float64
	fallbackMin  int
	fallbackMax  int
	minSetSize   int
	addOrig      bool
	unmatched    UnmatchedPolicy
	wordSep      string
	build        fuzzy.Builder
}

// New returns a [Corrector] configured with the supplied options.
func New(opts ...Option) *Corrector {
	c := &Corrector{
		ngramLen:     defaultNGramLength,
		distPerWord:  defaultDistancePerWord,
		maxProp:      defaultMaxProportional,
		fallbackProp: defaultFallbackProp,
		fallbackMin:  defaultFallbackMin,
		fallbackMax:  defaultFallbackMax,
		minSetSize:   defaultMinSetSize,
		unmatched:    UnmatchedBracket,
		wordSep:      WordSeparator,
		build:        symdel.Builder(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct aligns ocr against man and returns the annotated result.
//
// Both sequences must contain at least one word; [ErrEmptyInput] is returned
// otherwise. Failures from the fuzzy-dictionary collaborator propagate
// unchanged — a failed lookup has no safe fallback semantics distinct from
// "no match found".
func (c *Corrector) Correct(ocr, man Sequence) (*Result, error) {
	if len(ocr.Words) == 0 || len(man.Words) == 0 {
		return nil, ErrEmptyInput
	}

	manIdx, err := NewIndex(man.Words, c.ngramLen, c.distPerWord, c.maxProp, c.build)
	if err != nil {
		return nil, fmt.Errorf("align: build transcription index: %w", err)
	}
	ocrIdx, err := NewIndex(ocr.Words, c.ngramLen, c.distPerWord, c.maxProp, c.build)
	if err != nil {
		return nil, fmt.Errorf("align: build ocr index: %w", err)
	}

	matches, err := EnumerateMatches(ocrIdx, manIdx)
	if err != nil {
		return nil, err
	}
	spans := SelectSpans(matches, c.ngramLen, c.minSetSize, len(ocr.Words), len(man.Words))

	words, corrections, stats, err := c.render(ocr, man, spans)
	if err != nil {
		return nil, err
	}
	stats.Matches = len(matches)
	stats.Spans = len(spans)

	lines, err := Reconstruct(words, ocr.LineLens)
	if err != nil {
		return nil, err
	}

	return &Result{
		Words:       words,
		Lines:       lines,
		Separator:   c.wordSep,
		Corrections: corrections,
		Stats:       stats,
	}, nil
}
