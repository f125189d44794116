package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for the gateway. Counters and
// histograms are safe for concurrent use by in-flight requests.
type Metrics struct {
	RequestTotal           *prometheus.CounterVec
	RequestLatencyMs       *prometheus.HistogramVec
	ErrorTotal             *prometheus.CounterVec
	LLMRequestTotal        *prometheus.CounterVec
	TokensTotal            *prometheus.CounterVec
	CostUSDTotal           *prometheus.CounterVec
	InjectionDetectedTotal *prometheus.CounterVec
	BackendFailureTotal    *prometheus.CounterVec
	RateLimitHitTotal      *prometheus.CounterVec
}

// NewMetrics creates all gateway metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_request_total",
			Help: "Total requests processed, by model and outcome status.",
		}, []string{"model", "status"}),

		RequestLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_request_duration_ms",
			Help:    "End-to-end request duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model"}),

		ErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_errors_total",
			Help: "Request errors by error type.",
		}, []string{"error_type", "model"}),

		LLMRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_requests_total",
			Help: "Total LLM requests, incremented once per request regardless of outcome.",
		}, []string{"model"}),

		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_tokens_total",
			Help: "Tokens processed, by direction (input/output).",
		}, []string{"model", "direction"}),

		CostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD.",
		}, []string{"model"}),

		InjectionDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_injection_detected_total",
			Help: "Prompt injection attempts detected.",
		}, []string{"method"}),

		BackendFailureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_backend_failures_total",
			Help: "Backend generation failures by failure kind.",
		}, []string{"kind", "model"}),

		RateLimitHitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"client"}),
	}

	reg.MustRegister(
		m.RequestTotal,
		m.RequestLatencyMs,
		m.ErrorTotal,
		m.LLMRequestTotal,
		m.TokensTotal,
		m.CostUSDTotal,
		m.InjectionDetectedTotal,
		m.BackendFailureTotal,
		m.RateLimitHitTotal,
	)
	return m
}

// RequestEvent records one completed request at the HTTP boundary.
type RequestEvent struct {
	Model     string
	Status    string
	LatencyMs float64
	ErrorType string // set when the request failed
}

// RecordRequest increments the request counter and latency histogram, plus
// the error counter when an error type is present.
func (m *Metrics) RecordRequest(ev RequestEvent) {
	model := ev.Model
	if model == "" {
		model = "unknown"
	}

	m.RequestTotal.WithLabelValues(model, ev.Status).Inc()
	m.RequestLatencyMs.WithLabelValues(model).Observe(ev.LatencyMs)

	if ev.ErrorType != "" {
		m.ErrorTotal.WithLabelValues(ev.ErrorType, model).Inc()
	}
}

// LLMOutcomeEvent records the outcome of one generation attempt. Token and
// cost fields are only recorded when positive; the total-requests counter is
// always incremented.
type LLMOutcomeEvent struct {
	Model             string
	InputTokens       int
	OutputTokens      int
	CostUSD           float64
	BackendFailure    bool
	FailureKind       string
	InjectionDetected bool
	DetectionMethod   string
}

// RecordLLMOutcome records token/cost/failure counters for one generation.
func (m *Metrics) RecordLLMOutcome(ev LLMOutcomeEvent) {
	model := ev.Model
	if model == "" {
		model = "unknown"
	}

	if ev.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(model, "input").Add(float64(ev.InputTokens))
	}
	if ev.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(model, "output").Add(float64(ev.OutputTokens))
	}
	if ev.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(model).Add(ev.CostUSD)
	}

	if ev.BackendFailure {
		kind := ev.FailureKind
		if kind == "" {
			kind = "unknown"
		}
		m.BackendFailureTotal.WithLabelValues(kind, model).Inc()
	}

	if ev.InjectionDetected {
		method := ev.DetectionMethod
		if method == "" {
			method = "regex"
		}
		m.InjectionDetectedTotal.WithLabelValues(method).Inc()
	}

	// Always count the request.
	m.LLMRequestTotal.WithLabelValues(model).Inc()
}

// RecordRateLimitHit records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimitHit(client string) {
	m.RateLimitHitTotal.WithLabelValues(client).Inc()
}
