package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Palimpsest tracer.
const tracerName = "github.com/jvbeek/palimpsest"

// Tracer returns the service tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the service tracer. The caller must call
// span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartCorrection starts the span covering one alignment run, carrying the
// document dimensions that dominate its cost. Callers should attach the run
// outcome with [FinishCorrection].
func StartCorrection(ctx context.Context, method string, ocrWords, manWords int) (context.Context, trace.Span) {
	return StartSpan(ctx, "correction."+method,
		trace.WithAttributes(
			attribute.String("correction.method", method),
			attribute.Int("correction.ocr_words", ocrWords),
			attribute.Int("correction.transcription_words", manWords),
		),
	)
}

// FinishCorrection records the outcome counters on a correction span and
// ends it.
func FinishCorrection(span trace.Span, substituted, insertions, unmatched int) {
	span.SetAttributes(
		attribute.Int("correction.substituted", substituted),
		attribute.Int("correction.insertions", insertions),
		attribute.Int("correction.unmatched", unmatched),
	)
	span.End()
}

// CorrelationID returns the trace ID from the span context in ctx, or the
// empty string when there is none. The trace ID doubles as the correlation
// identifier exposed to clients in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default [slog.Logger] enriched with trace_id and
// span_id from ctx, so every log line of a request can be joined back to its
// trace. Without an active span it returns the default logger unchanged.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
