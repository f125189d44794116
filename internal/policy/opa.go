// Package policy evaluates Rego policies against inbound requests. Policies
// decide whether a client may use a model at all; content-level security is
// the analyzer's job.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

// Input is the data sent to OPA for evaluation.
type Input struct {
	Client  Client  `json:"client"`
	Request Request `json:"request"`
	Time    Clock   `json:"time"`
}

type Client struct {
	ID string `json:"id"`
}

type Request struct {
	Model        string `json:"model"`
	PromptLength int    `json:"prompt_length"`
}

type Clock struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Evaluator holds a compiled Rego query. Reload-safe: Load swaps the
// prepared query under a lock while evaluations proceed on the old one.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a policy evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the configured bundle path.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	return e.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("[data.sentinel.policy.allow, data.sentinel.policy.reason]"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()

	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// Evaluate runs the policy against the given input. With no policies loaded
// the gate fails closed.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (bool, string, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return false, "no policies loaded", nil
	}

	cfg := e.cfg()
	timeout := cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Sprintf("policy evaluation error: %v", err), err
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	// Result is [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)

	return allowed, reason, nil
}

// CheckRequest evaluates the policy for one generation request. A disabled
// evaluator allows everything; evaluation errors fail closed.
func (e *Evaluator) CheckRequest(ctx context.Context, clientID, model string, promptLength int) (bool, string) {
	if !e.Enabled() {
		return true, ""
	}

	now := time.Now().UTC()
	allowed, reason, err := e.Evaluate(ctx, Input{
		Client:  Client{ID: clientID},
		Request: Request{Model: model, PromptLength: promptLength},
		Time:    Clock{Hour: now.Hour(), Day: now.Weekday().String()},
	})
	if err != nil {
		slog.Error("policy evaluation failed", "error", err, "client", clientID)
		return false, "policy evaluation failed"
	}
	return allowed, reason
}
