package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sentinel-ops/sentinel-gateway/internal/clientid"
	"github.com/sentinel-ops/sentinel-gateway/internal/config"
	"github.com/sentinel-ops/sentinel-gateway/internal/httputil"
	"github.com/sentinel-ops/sentinel-gateway/internal/telemetry"
)

const (
	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware enforcing the per-client request rate.
// The config getter observes hot reloads, so limit changes apply without a
// restart.
func Middleware(limiter *Limiter, metrics *telemetry.Metrics, cfg func() config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl := cfg()
			if !rl.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			reqID := w.Header().Get("X-Request-ID")
			client := clientid.FromContext(r.Context())

			rpm := rl.RequestsPerMinute
			if rpm <= 0 {
				rpm = 60
			}

			result, _ := limiter.Check(r.Context(), client, int64(rpm), time.Minute)

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"client", client,
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit(client)
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BudgetMiddleware returns chi middleware enforcing the per-client daily
// spend cap. A nil tracker or a zero limit disables the check.
func BudgetMiddleware(budget *BudgetTracker, metrics *telemetry.Metrics, dailyLimitUSD func() float64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limitUSD := dailyLimitUSD()
			if budget == nil || limitUSD <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqID := w.Header().Get("X-Request-ID")
			client := clientid.FromContext(r.Context())

			result, _ := budget.CheckDailySpend(r.Context(), client, MicroUSD(limitUSD))
			if !result.Allowed {
				slog.Warn("daily budget exceeded",
					"request_id", reqID,
					"client", client,
					"spent_micro_usd", result.SpentMicroUSD,
					"limit_micro_usd", result.LimitMicroUSD,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit(client)
				}
				httputil.WriteBudgetExceededError(w, reqID,
					fmt.Sprintf("Daily budget exceeded: spent %.6f of %.6f USD",
						float64(result.SpentMicroUSD)/1e6, float64(result.LimitMicroUSD)/1e6))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
