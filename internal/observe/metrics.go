// Package observe provides application-wide observability primitives for
// Palimpsest: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Palimpsest metrics.
const meterName = "github.com/jvbeek/palimpsest"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CorrectionDuration tracks end-to-end correction latency per document.
	// Use with attribute: attribute.String("format", "text"|"pagexml").
	CorrectionDuration metric.Float64Histogram

	// CorrectionRequests counts correction requests. Use with attributes:
	//   attribute.String("method", ...), attribute.String("status", ...)
	CorrectionRequests metric.Int64Counter

	// MatchesEnumerated counts candidate n-gram matches found per request.
	MatchesEnumerated metric.Int64Counter

	// SpansSelected counts alignment spans chosen by the selector.
	SpansSelected metric.Int64Counter

	// WordsSubstituted counts OCR words replaced by a transcription word.
	WordsSubstituted metric.Int64Counter

	// WordsUnmatched counts OCR words no pass could align.
	WordsUnmatched metric.Int64Counter

	// AuthFailures counts rejected Api-Key authentications.
	AuthFailures metric.Int64Counter

	// ActiveRequests tracks correction requests currently in flight.
	ActiveRequests metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Document
// correction is CPU-bound and scales with input size, so buckets stretch
// further than typical request-latency defaults.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CorrectionDuration, err = m.Float64Histogram("palimpsest.correction.duration",
		metric.WithDescription("End-to-end correction latency per document."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CorrectionRequests, err = m.Int64Counter("palimpsest.correction.requests",
		metric.WithDescription("Total correction requests by method and status."),
	); err != nil {
		return nil, err
	}
	if met.MatchesEnumerated, err = m.Int64Counter("palimpsest.alignment.matches",
		metric.WithDescription("Candidate n-gram matches enumerated across requests."),
	); err != nil {
		return nil, err
	}
	if met.SpansSelected, err = m.Int64Counter("palimpsest.alignment.spans",
		metric.WithDescription("Alignment spans selected across requests."),
	); err != nil {
		return nil, err
	}
	if met.WordsSubstituted, err = m.Int64Counter("palimpsest.correction.words_substituted",
		metric.WithDescription("OCR words replaced by transcription words."),
	); err != nil {
		return nil, err
	}
	if met.WordsUnmatched, err = m.Int64Counter("palimpsest.correction.words_unmatched",
		metric.WithDescription("OCR words no alignment pass could place."),
	); err != nil {
		return nil, err
	}
	if met.AuthFailures, err = m.Int64Counter("palimpsest.auth.failures",
		metric.WithDescription("Rejected Api-Key authentications."),
	); err != nil {
		return nil, err
	}

	if met.ActiveRequests, err = m.Int64UpDownCounter("palimpsest.correction.active",
		metric.WithDescription("Correction requests currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("palimpsest.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCorrection records one finished correction request: its latency, the
// request counter, and the per-word outcome counters.
func (m *Metrics) RecordCorrection(ctx context.Context, method, status string, seconds float64, substituted, unmatched int) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.CorrectionRequests.Add(ctx, 1, attrs)
	m.CorrectionDuration.Record(ctx, seconds, attrs)
	m.WordsSubstituted.Add(ctx, int64(substituted))
	m.WordsUnmatched.Add(ctx, int64(unmatched))
}

// RecordAlignment records the selector counters for one request.
func (m *Metrics) RecordAlignment(ctx context.Context, matches, spans int) {
	m.MatchesEnumerated.Add(ctx, int64(matches))
	m.SpansSelected.Add(ctx, int64(spans))
}

// RecordAuthFailure records one rejected authentication attempt.
func (m *Metrics) RecordAuthFailure(ctx context.Context) {
	m.AuthFailures.Add(ctx, 1)
}
