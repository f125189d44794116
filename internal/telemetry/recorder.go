// Package telemetry owns span lifecycle, metric recording, and structured
// log emission for the gateway. The exporter backends (OTLP collector,
// Prometheus scrape endpoint) are injected; exporter failures degrade to
// no-ops and never fail a request.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const requestIDContextKey contextKey = "sentinel_request_id"

// SpanHandle is the correlation token for one request's span. It is owned by
// the orchestrator for the duration of the request and closed exactly once;
// closing again is a no-op.
type SpanHandle struct {
	span      trace.Span
	requestID string
	once      sync.Once
}

// RequestID returns the correlation id allocated at span start.
func (h *SpanHandle) RequestID() string {
	if h == nil {
		return ""
	}
	return h.requestID
}

// Recorder drives the span lifecycle and metric instruments for requests.
// One instance is shared by all in-flight requests; the Prometheus
// instruments are its only mutable state.
type Recorder struct {
	tracer      trace.Tracer
	metrics     *Metrics
	logger      *slog.Logger
	service     string
	environment string
}

// NewRecorder creates a recorder over the given tracer provider and metrics.
func NewRecorder(tp trace.TracerProvider, metrics *Metrics, logger *slog.Logger, service, environment string) *Recorder {
	return &Recorder{
		tracer:      tp.Tracer(service),
		metrics:     metrics,
		logger:      logger,
		service:     service,
		environment: environment,
	}
}

// StartSpan opens the request span and allocates a correlation id when none
// is supplied. The returned context carries the span and request id; the
// handle must be passed to EndSpan on every exit path.
func (r *Recorder) StartSpan(ctx context.Context, requestID string) (context.Context, *SpanHandle) {
	if requestID == "" {
		requestID = "req-" + uuid.NewString()[:8]
	}

	ctx, span := r.tracer.Start(ctx, "llm.request",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	ctx = context.WithValue(ctx, requestIDContextKey, requestID)

	return ctx, &SpanHandle{span: span, requestID: requestID}
}

// EndSpan closes the span. Safe to call from cleanup paths after an error
// and idempotent: only the first call ends the underlying span.
func (r *Recorder) EndSpan(h *SpanHandle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.span.End()
	})
}

// SetSpanAttributes attaches attributes to the handle's span.
func (r *Recorder) SetSpanAttributes(h *SpanHandle, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.span.SetAttributes(attrs...)
}

// RecordRequest mirrors a request outcome into the metric instruments.
func (r *Recorder) RecordRequest(ev RequestEvent) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordRequest(ev)
}

// RecordLLMOutcome mirrors a generation outcome into the metric instruments.
func (r *Recorder) RecordLLMOutcome(ev LLMOutcomeEvent) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordLLMOutcome(ev)
}

// Log emits one structured record carrying the service identity, environment
// tag, correlation id, and, when a span is open on ctx, its trace and span
// ids, so logs and spans are joinable in the observability backend.
func (r *Recorder) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := []any{
		"service", r.service,
		"environment", r.environment,
	}

	if reqID := RequestIDFromContext(ctx); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}

	attrs = append(attrs, args...)
	r.logger.Log(ctx, level, msg, attrs...)
}

// RequestIDFromContext returns the correlation id set by StartSpan, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
