// Package types holds the request and outcome shapes shared by the HTTP
// surface, the orchestrator, and the usage store.
package types

import "time"

// GenerateRequest is the canonical inbound generation request. Model,
// MaxTokens and Temperature are optional; the orchestrator fills them from
// the generation defaults.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Identity (set by middleware)
	RequestID string `json:"-"`
	ClientID  string `json:"-"`

	ReceivedAt time.Time `json:"-"`
}
