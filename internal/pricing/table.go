// Package pricing converts token counts into USD estimates using a per-model
// price table.
package pricing

import (
	"math"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

// Table is an immutable price table built at startup and shared read-only
// across requests.
type Table struct {
	defaultModel string
	entries      map[string]config.PriceEntry
}

// NewTable builds a price table from configuration. A missing or unknown
// default model gets a zero-price entry, so estimation stays total.
func NewTable(cfg *config.PricingConfig) *Table {
	entries := make(map[string]config.PriceEntry, len(cfg.Models))
	for model, entry := range cfg.Models {
		entries[model] = entry
	}
	if _, ok := entries[cfg.DefaultModel]; !ok {
		entries[cfg.DefaultModel] = config.PriceEntry{}
	}
	return &Table{
		defaultModel: cfg.DefaultModel,
		entries:      entries,
	}
}

// EstimateCost returns the USD estimate for a request, rounded to 6 decimal
// places. Unknown models fall back to the default model's pricing. Negative
// token counts are treated as zero.
func (t *Table) EstimateCost(inputTokens, outputTokens int, model string) float64 {
	entry, ok := t.entries[model]
	if !ok {
		entry = t.entries[t.defaultModel]
	}

	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	cost := float64(inputTokens)/1000*entry.InputPer1K +
		float64(outputTokens)/1000*entry.OutputPer1K
	return math.Round(cost*1e6) / 1e6
}

// DefaultModel returns the fallback model name.
func (t *Table) DefaultModel() string {
	return t.defaultModel
}
