package pricing

import (
	"testing"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

func testTable() *Table {
	return NewTable(&config.PricingConfig{
		DefaultModel: "pro",
		Models: map[string]config.PriceEntry{
			"pro":   {InputPer1K: 0.00125, OutputPer1K: 0.0025},
			"flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
		},
	})
}

func TestEstimateCost(t *testing.T) {
	table := testTable()

	// 1000 input + 1000 output tokens of "pro" = 0.00125 + 0.0025
	got := table.EstimateCost(1000, 1000, "pro")
	if got != 0.00375 {
		t.Errorf("expected 0.00375, got %v", got)
	}
}

func TestEstimateCost_Rounding(t *testing.T) {
	table := testTable()

	// 1 input token of "pro": 0.00000125 rounds to 0.000001 at 6 decimals.
	got := table.EstimateCost(1, 0, "pro")
	if got != 0.000001 {
		t.Errorf("expected 0.000001, got %v", got)
	}
}

func TestEstimateCost_UnknownModelFallsBack(t *testing.T) {
	table := testTable()

	unknown := table.EstimateCost(1000, 1000, "never-heard-of-it")
	pro := table.EstimateCost(1000, 1000, "pro")
	if unknown != pro {
		t.Errorf("unknown model cost %v should equal default model cost %v", unknown, pro)
	}
}

func TestEstimateCost_Monotonic(t *testing.T) {
	table := testTable()

	prev := table.EstimateCost(0, 0, "flash")
	for tokens := 100; tokens <= 100_000; tokens *= 10 {
		cur := table.EstimateCost(tokens, 0, "flash")
		if cur < prev {
			t.Errorf("cost decreased from %v to %v at %d input tokens", prev, cur, tokens)
		}
		prev = cur
	}

	prev = table.EstimateCost(0, 0, "flash")
	for tokens := 100; tokens <= 100_000; tokens *= 10 {
		cur := table.EstimateCost(0, tokens, "flash")
		if cur < prev {
			t.Errorf("cost decreased from %v to %v at %d output tokens", prev, cur, tokens)
		}
		prev = cur
	}
}

func TestEstimateCost_NeverNegative(t *testing.T) {
	table := testTable()

	if got := table.EstimateCost(-5, -10, "pro"); got != 0 {
		t.Errorf("expected 0 for negative token counts, got %v", got)
	}
	if got := table.EstimateCost(0, 0, "pro"); got != 0 {
		t.Errorf("expected 0 for zero tokens, got %v", got)
	}
}

func TestNewTable_MissingDefaultEntry(t *testing.T) {
	table := NewTable(&config.PricingConfig{
		DefaultModel: "ghost",
		Models:       map[string]config.PriceEntry{},
	})

	// Must not panic and must return a non-negative cost.
	if got := table.EstimateCost(1000, 1000, "anything"); got != 0 {
		t.Errorf("expected 0 cost for zero-price fallback, got %v", got)
	}
}
