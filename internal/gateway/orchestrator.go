// Package gateway wires security analysis, token accounting, cost estimation,
// and telemetry around every generation request. The orchestrator guarantees
// that each request produces exactly one outcome, one closed span, and one
// set of metric observations no matter how it exits.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sentinel-ops/sentinel-gateway/internal/backend"
	"github.com/sentinel-ops/sentinel-gateway/internal/clientid"
	"github.com/sentinel-ops/sentinel-gateway/internal/config"
	"github.com/sentinel-ops/sentinel-gateway/internal/pricing"
	"github.com/sentinel-ops/sentinel-gateway/internal/security"
	"github.com/sentinel-ops/sentinel-gateway/internal/telemetry"
	"github.com/sentinel-ops/sentinel-gateway/internal/tokens"
	"github.com/sentinel-ops/sentinel-gateway/internal/types"
)

// UsageSink persists request outcomes for accounting. Implementations must
// not block the request path; failures are logged, never surfaced.
type UsageSink interface {
	RecordUsage(ctx context.Context, outcome *types.Outcome, clientID string)
}

// FanOutSink forwards each outcome to every registered sink, so the audit
// store and the budget counter both observe the same request.
type FanOutSink []UsageSink

func (s FanOutSink) RecordUsage(ctx context.Context, outcome *types.Outcome, clientID string) {
	for _, sink := range s {
		sink.RecordUsage(ctx, outcome, clientID)
	}
}

// Orchestrator runs the request pipeline. One instance serves all requests;
// the pricing and generation getters observe config hot reloads.
type Orchestrator struct {
	backend    backend.Client
	analyzer   *security.Analyzer
	recorder   *telemetry.Recorder
	pricing    func() *pricing.Table
	generation func() config.GenerationConfig
	usage      UsageSink // optional
}

// NewOrchestrator assembles the pipeline. A nil backend is replaced with the
// uninitialized placeholder so requests still complete. usage may be nil.
func NewOrchestrator(
	client backend.Client,
	analyzer *security.Analyzer,
	recorder *telemetry.Recorder,
	pricingTable func() *pricing.Table,
	generation func() config.GenerationConfig,
	usage UsageSink,
) *Orchestrator {
	if client == nil {
		client = backend.Uninitialized{}
	}
	return &Orchestrator{
		backend:    client,
		analyzer:   analyzer,
		recorder:   recorder,
		pricing:    pricingTable,
		generation: generation,
		usage:      usage,
	}
}

// Process runs one request through analysis, generation, and accounting.
// It always returns a non-nil outcome and never panics: internal failures
// produce a status of internal_error with the span still closed and metrics
// still recorded.
func (o *Orchestrator) Process(ctx context.Context, req *types.GenerateRequest) (outcome *types.Outcome) {
	start := time.Now()
	gen := o.generation()

	model := req.Model
	if model == "" {
		model = gen.DefaultModel
	}
	maxTokens := gen.MaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	temperature := gen.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	ctx, span := o.recorder.StartSpan(ctx, req.RequestID)

	outcome = &types.Outcome{
		RequestID: span.RequestID(),
		Model:     model,
	}

	defer func() {
		if r := recover(); r != nil {
			o.recorder.Log(ctx, slog.LevelError, "request pipeline panicked", "panic", r)
			outcome.Status = types.StatusInternalError
			outcome.Text = types.PlaceholderBackendError
		}
		outcome.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
		o.finish(ctx, span, outcome)
	}()

	verdict := o.analyzer.Analyze(req.Prompt)
	outcome.SecurityAnalysis = &verdict
	outcome.PromptInjectionDetected = verdict.InjectionDetected
	outcome.PIIDetected = verdict.PIIDetected
	outcome.InputTokens = tokens.Estimate(req.Prompt)

	if verdict.InjectionDetected {
		o.recorder.Log(ctx, slog.LevelWarn, "request rejected by prompt analysis",
			"model", model,
			"score", verdict.InjectionScore,
			"client", clientid.FromContext(ctx),
		)
		outcome.Status = types.StatusInjectionRejected
		return outcome
	}

	limit := tokens.ValidateLimit(req.Prompt, maxTokens, model, gen.ContextWindows, gen.DefaultModel)
	o.recorder.SetSpanAttributes(span,
		attribute.String("llm.model", model),
		attribute.Int("llm.prompt_tokens_estimate", limit.PromptTokens),
		attribute.Float64("llm.context_usage_pct", limit.UsagePercentage),
	)

	generation, err := o.backend.Generate(ctx, backend.GenerateParams{
		Prompt:      req.Prompt,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return o.recoverBackendFailure(ctx, outcome, err)
	}

	outcome.Status = types.StatusSuccess
	outcome.Text = generation.Text
	if generation.ModelName != "" {
		outcome.Model = generation.ModelName
	}

	outcome.InputTokens, outcome.OutputTokens = tokens.CountPair(req.Prompt, generation.Text)
	outcome.CostEstimate = o.pricing().EstimateCost(outcome.InputTokens, outcome.OutputTokens, outcome.Model)

	safety := o.analyzer.AnalyzeResponseSafety(generation.Text)
	outcome.ResponseSafety = &safety
	if !safety.IsSafe {
		o.recorder.Log(ctx, slog.LevelWarn, "response safety patterns matched",
			"model", outcome.Model,
			"confidence", safety.ConfidenceScore,
			"risk_factors", len(safety.RiskFactors),
		)
	}

	return outcome
}

// recoverBackendFailure converts a backend error into a completed outcome.
// Errors never propagate to the caller.
func (o *Orchestrator) recoverBackendFailure(ctx context.Context, outcome *types.Outcome, err error) *types.Outcome {
	if errors.Is(err, backend.ErrNotInitialized) {
		outcome.Status = types.StatusUninitialized
		outcome.Text = types.PlaceholderUninitialized
	} else {
		outcome.Status = types.StatusBackendError
		outcome.Text = types.PlaceholderBackendError
	}
	outcome.FailureKind = backend.FailureKind(err)

	o.recorder.Log(ctx, slog.LevelError, "backend generation failed",
		"model", outcome.Model,
		"kind", backend.FailureKind(err),
		"error", err,
	)
	return outcome
}

// finish closes the span and records all observations. Runs exactly once per
// request, on every exit path.
func (o *Orchestrator) finish(ctx context.Context, span *telemetry.SpanHandle, outcome *types.Outcome) {
	o.recorder.SetSpanAttributes(span,
		attribute.String("llm.status", outcome.Status),
		attribute.Bool("security.injection_detected", outcome.PromptInjectionDetected),
		attribute.Bool("security.pii_detected", outcome.PIIDetected),
	)
	o.recorder.EndSpan(span)

	errorType := ""
	switch outcome.Status {
	case types.StatusBackendError, types.StatusUninitialized:
		errorType = "BackendFailure"
	case types.StatusInternalError:
		errorType = "Internal"
	}

	o.recorder.RecordRequest(telemetry.RequestEvent{
		Model:     outcome.Model,
		Status:    outcome.Status,
		LatencyMs: outcome.LatencyMs,
		ErrorType: errorType,
	})

	o.recorder.RecordLLMOutcome(telemetry.LLMOutcomeEvent{
		Model:             outcome.Model,
		InputTokens:       outcome.InputTokens,
		OutputTokens:      outcome.OutputTokens,
		CostUSD:           outcome.CostEstimate,
		BackendFailure:    outcome.FailureKind != "",
		FailureKind:       outcome.FailureKind,
		InjectionDetected: outcome.PromptInjectionDetected,
		DetectionMethod:   "regex",
	})

	o.recorder.Log(ctx, slog.LevelInfo, "request completed",
		"model", outcome.Model,
		"status", outcome.Status,
		"latency_ms", outcome.LatencyMs,
		"input_tokens", outcome.InputTokens,
		"output_tokens", outcome.OutputTokens,
		"cost_estimate", outcome.CostEstimate,
	)

	if o.usage != nil {
		o.usage.RecordUsage(ctx, outcome, clientid.FromContext(ctx))
	}
}
