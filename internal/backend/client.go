// Package backend defines the generation client contract and its failure
// taxonomy. Backend errors are typed so the orchestrator can classify them
// without string matching; they are recovered into the request outcome and
// never propagate past the gateway.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// GenerateParams carries one generation request to the backend.
type GenerateParams struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generation is a successful backend response.
type Generation struct {
	Text      string
	ModelName string
}

// Client is implemented by LLM backend adapters.
type Client interface {
	Generate(ctx context.Context, params GenerateParams) (*Generation, error)
}

// Sentinel errors for the failure kinds the orchestrator distinguishes.
var (
	// ErrNotInitialized means the backend was never configured or its
	// construction failed; requests still complete with a placeholder.
	ErrNotInitialized = errors.New("backend not initialized")

	// ErrEmptyResponse means the backend answered but produced no text.
	ErrEmptyResponse = errors.New("backend returned empty response")
)

// UpstreamError wraps a failure reported by the backend service itself:
// an HTTP error status, a malformed body, or a transport failure.
type UpstreamError struct {
	Status  int    // HTTP status when available, 0 otherwise
	Subkind string // short classifier, e.g. "status", "decode", "transport"
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s (status %d): %s", e.Subkind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Subkind, e.Message)
}

// FailureKind maps a backend error to its metric label.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return "upstream_" + upstream.Subkind
	}
	return "unknown"
}

// Uninitialized is the placeholder client used when no backend is configured.
// Every call fails with ErrNotInitialized.
type Uninitialized struct{}

func (Uninitialized) Generate(context.Context, GenerateParams) (*Generation, error) {
	return nil, ErrNotInitialized
}
