package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinel-ops/sentinel-gateway/internal/types"
)

// BudgetResult is the outcome of a daily spend check. Amounts are in
// micro-USD: per-request LLM costs are small fractions of a cent, so cents
// would round everything to zero.
type BudgetResult struct {
	Allowed       bool
	SpentMicroUSD int64
	LimitMicroUSD int64
}

// MicroUSD converts a dollar amount to the budget tracker's unit.
func MicroUSD(usd float64) int64 {
	return int64(usd * 1_000_000)
}

// SpendSource reports a client's accumulated spend for the current UTC day,
// in USD. Used as the budget backing when Redis is absent.
type SpendSource interface {
	DailySpend(ctx context.Context, clientID string) (float64, error)
}

// BudgetTracker tracks daily spend per client. Redis is the primary
// counter; without it, checks consult the fallback source (if any) and
// otherwise pass.
type BudgetTracker struct {
	rdb      *redis.Client
	fallback SpendSource
}

// NewBudgetTracker creates a budget tracker. Both rdb and fallback may be
// nil; with neither, all checks pass.
func NewBudgetTracker(rdb *redis.Client, fallback SpendSource) *BudgetTracker {
	return &BudgetTracker{rdb: rdb, fallback: fallback}
}

func dailyBudgetKey(clientID string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return "sentinel:budget:daily:" + clientID + ":" + day
}

// CheckDailySpend checks if the client is under its daily spend limit.
func (b *BudgetTracker) CheckDailySpend(ctx context.Context, clientID string, limitMicroUSD int64) (BudgetResult, error) {
	if b.rdb == nil {
		return b.checkFallback(ctx, clientID, limitMicroUSD)
	}

	key := dailyBudgetKey(clientID)
	spent, err := b.rdb.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors
		return BudgetResult{Allowed: true, LimitMicroUSD: limitMicroUSD}, nil
	}

	return BudgetResult{
		Allowed:       spent < limitMicroUSD,
		SpentMicroUSD: spent,
		LimitMicroUSD: limitMicroUSD,
	}, nil
}

func (b *BudgetTracker) checkFallback(ctx context.Context, clientID string, limitMicroUSD int64) (BudgetResult, error) {
	if b.fallback == nil {
		return BudgetResult{Allowed: true, LimitMicroUSD: limitMicroUSD}, nil
	}

	usd, err := b.fallback.DailySpend(ctx, clientID)
	if err != nil {
		// Fail open, same as the Redis path
		return BudgetResult{Allowed: true, LimitMicroUSD: limitMicroUSD}, nil
	}

	spent := MicroUSD(usd)
	return BudgetResult{
		Allowed:       spent < limitMicroUSD,
		SpentMicroUSD: spent,
		LimitMicroUSD: limitMicroUSD,
	}, nil
}

// RecordSpend adds cost to the client's daily spend counter.
func (b *BudgetTracker) RecordSpend(ctx context.Context, clientID string, costMicroUSD int64) error {
	if b.rdb == nil || costMicroUSD <= 0 {
		return nil
	}

	key := dailyBudgetKey(clientID)
	pipe := b.rdb.Pipeline()
	pipe.IncrBy(ctx, key, costMicroUSD)
	// Expire at end of day UTC + 1 hour buffer
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := endOfDay.Sub(now) + time.Hour
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// RecordUsage feeds a request's cost estimate into the daily spend counter
// so CheckDailySpend sees it on the next request. Implements the gateway
// usage sink; the write happens off the request path.
func (b *BudgetTracker) RecordUsage(_ context.Context, outcome *types.Outcome, clientID string) {
	amount := MicroUSD(outcome.CostEstimate)
	if b.rdb == nil || amount <= 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.RecordSpend(ctx, clientID, amount); err != nil {
			slog.Warn("budget spend write failed", "error", err, "client", clientID)
		}
	}()
}
