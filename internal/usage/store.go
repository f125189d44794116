// Package usage persists per-request accounting rows to PostgreSQL. Writes
// are fire-and-forget: usage is an audit trail, not part of the request
// contract, so database trouble never fails a request.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel-ops/sentinel-gateway/internal/types"
)

const writeTimeout = 2 * time.Second

// Store writes usage rows to the usage_log table.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// RecordUsage inserts one outcome row asynchronously. Implements
// gateway.UsageSink.
func (s *Store) RecordUsage(_ context.Context, outcome *types.Outcome, clientID string) {
	if s.db == nil {
		return
	}

	// Detached context: the request is already being finalized.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		_, err := s.db.Exec(ctx, `
			INSERT INTO usage_log (
				request_id, client_id, model, status,
				input_tokens, output_tokens, cost_usd, latency_ms,
				injection_detected, pii_detected
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			outcome.RequestID,
			clientID,
			outcome.Model,
			outcome.Status,
			outcome.InputTokens,
			outcome.OutputTokens,
			outcome.CostEstimate,
			outcome.LatencyMs,
			outcome.PromptInjectionDetected,
			outcome.PIIDetected,
		)
		if err != nil {
			slog.Error("usage write failed", "error", err, "request_id", outcome.RequestID)
		}
	}()
}

// DailySpend sums the cost recorded for a client since midnight UTC.
// Implements ratelimit.SpendSource as the budget backing when Redis is
// absent.
func (s *Store) DailySpend(ctx context.Context, clientID string) (float64, error) {
	if s.db == nil {
		return 0, nil
	}

	var total float64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM usage_log
		WHERE client_id = $1
		  AND created_at >= date_trunc('day', NOW() AT TIME ZONE 'utc')
	`, clientID).Scan(&total)
	return total, err
}
