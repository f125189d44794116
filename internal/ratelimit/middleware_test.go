package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentinel-ops/sentinel-gateway/internal/clientid"
	"github.com/sentinel-ops/sentinel-gateway/internal/config"
	"github.com/sentinel-ops/sentinel-gateway/internal/httputil"
)

func rateLimitCfg(enabled bool, rpm int) func() config.RateLimitConfig {
	return func() config.RateLimitConfig {
		return config.RateLimitConfig{Enabled: enabled, RequestsPerMinute: rpm}
	}
}

func requestAsClient(client string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
	return req.WithContext(clientid.ContextWithClient(req.Context(), client))
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	mw := Middleware(NewLimiter(nil), nil, rateLimitCfg(true, 100))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")
	handler.ServeHTTP(rec, requestAsClient("team-alpha"))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h == "" {
		t.Error("expected X-RateLimit-Remaining-Requests header")
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("expected X-RateLimit-Reset-Requests header")
	}
}

func TestMiddleware_DefaultRPM(t *testing.T) {
	mw := Middleware(NewLimiter(nil), nil, rateLimitCfg(true, 0))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsClient("team-beta"))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "60" {
		t.Errorf("expected default RPM=60, got %s", h)
	}
}

func TestMiddleware_DisabledPassThrough(t *testing.T) {
	mw := Middleware(NewLimiter(nil), nil, rateLimitCfg(false, 100))

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsClient("team-gamma"))

	if !called {
		t.Error("expected handler to be called when rate limiting is disabled")
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "" {
		t.Error("disabled limiter must not set rate limit headers")
	}
}

func TestBudgetMiddleware_ZeroLimitPassThrough(t *testing.T) {
	mw := BudgetMiddleware(NewBudgetTracker(nil, nil), nil, func() float64 { return 0 })

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestAsClient("team-alpha"))

	if !called {
		t.Error("expected pass-through with zero budget limit")
	}
}

func TestBudgetMiddleware_DeniesOverCap(t *testing.T) {
	mw := BudgetMiddleware(NewBudgetTracker(nil, fixedSpend{usd: 6}), nil, func() float64 { return 5 })

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAsClient("team-alpha"))

	if called {
		t.Error("handler must not run once the daily budget is spent")
	}
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", rec.Code)
	}

	var apiErr httputil.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if apiErr.Error.Code != "budget_exceeded" {
		t.Errorf("expected code 'budget_exceeded', got %s", apiErr.Error.Code)
	}
}

func TestBudgetMiddleware_AllowsUnderCap(t *testing.T) {
	mw := BudgetMiddleware(NewBudgetTracker(nil, fixedSpend{usd: 1}), nil, func() float64 { return 5 })

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestAsClient("team-alpha"))

	if !called {
		t.Error("expected handler to run while under the daily budget")
	}
}

func TestBudgetMiddleware_ErrorFormat(t *testing.T) {
	// Verify the error envelope shape by writing it directly.
	rec := httptest.NewRecorder()
	httputil.WriteBudgetExceededError(rec, "req-3", "Daily budget exceeded")

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", rec.Code)
	}

	var apiErr httputil.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if apiErr.Error.Code != "budget_exceeded" {
		t.Errorf("expected code 'budget_exceeded', got %s", apiErr.Error.Code)
	}
}
