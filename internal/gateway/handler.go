package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sentinel-ops/sentinel-gateway/internal/clientid"
	"github.com/sentinel-ops/sentinel-gateway/internal/httputil"
	"github.com/sentinel-ops/sentinel-gateway/internal/policy"
	"github.com/sentinel-ops/sentinel-gateway/internal/types"
)

const maxRequestBody = 1 << 20 // 1 MiB of prompt is plenty

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	orchestrator *Orchestrator
	policy       *policy.Evaluator // nil disables the policy gate
}

func NewHandler(orchestrator *Orchestrator, evaluator *policy.Evaluator) *Handler {
	return &Handler{orchestrator: orchestrator, policy: evaluator}
}

// Generate handles POST /v1/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if req.Prompt == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt is required")
		return
	}
	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		httputil.WriteBadRequestError(w, reqID, "max_tokens must be non-negative")
		return
	}

	req.RequestID = reqID
	req.ReceivedAt = time.Now()

	if h.policy != nil {
		client := clientid.FromContext(r.Context())
		if allowed, reason := h.policy.CheckRequest(r.Context(), client, req.Model, len(req.Prompt)); !allowed {
			httputil.WritePolicyDeniedError(w, reqID, "Request denied by policy: "+reason)
			return
		}
	}

	outcome := h.orchestrator.Process(r.Context(), &req)

	switch outcome.Status {
	case types.StatusInjectionRejected:
		httputil.WriteInjectionRejectedError(w, outcome.RequestID, "Prompt rejected by security analysis")
		return
	case types.StatusInternalError:
		httputil.WriteInternalError(w, outcome.RequestID, "Internal error processing request")
		return
	}

	// Backend failures still return 200 with the placeholder text and the
	// status field set; callers inspect status to distinguish.
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", outcome.RequestID)
	json.NewEncoder(w).Encode(outcome)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
