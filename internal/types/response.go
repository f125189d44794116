package types

import "github.com/sentinel-ops/sentinel-gateway/internal/security"

// Request outcome statuses. Exactly one is set on every Outcome.
const (
	StatusSuccess           = "success"
	StatusBackendError      = "backend_error"
	StatusUninitialized     = "uninitialized"
	StatusInjectionRejected = "injection_rejected"
	StatusInternalError     = "internal_error"
)

// Placeholder texts returned when the backend could not produce a response.
const (
	PlaceholderUninitialized = "[error: model not initialized]"
	PlaceholderBackendError  = "[error: generation failed]"
)

// Outcome is the complete result of one gateway request. Every request gets
// an Outcome regardless of how it ended; the Status field discriminates.
type Outcome struct {
	RequestID    string  `json:"request_id"`
	Text         string  `json:"text"`
	Model        string  `json:"model"`
	Status       string  `json:"status"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	LatencyMs    float64 `json:"latency_ms"`
	CostEstimate float64 `json:"cost_estimate"`

	PromptInjectionDetected bool `json:"prompt_injection_detected"`
	PIIDetected             bool `json:"pii_detected"`

	SecurityAnalysis *security.Verdict        `json:"security_analysis,omitempty"`
	ResponseSafety   *security.ResponseSafety `json:"response_safety,omitempty"`

	// FailureKind classifies backend failures for metrics; not serialized.
	FailureKind string `json:"-"`
}

// Succeeded reports whether the backend produced a real generation.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}
