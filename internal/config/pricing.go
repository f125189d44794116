package config

// PricingConfig maps model names to per-1K-token prices. The default model's
// entry doubles as the fallback for unknown model names.
type PricingConfig struct {
	DefaultModel string                `yaml:"default_model"`
	Models       map[string]PriceEntry `yaml:"models"`
}

type PriceEntry struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// DefaultPricing returns the built-in price table, used when no pricing.yaml
// is present.
func DefaultPricing() *PricingConfig {
	return &PricingConfig{
		DefaultModel: "gemini-1.5-pro",
		Models: map[string]PriceEntry{
			"gemini-1.5-pro": {
				InputPer1K:  0.00125,
				OutputPer1K: 0.0025,
			},
			"gemini-1.5-flash": {
				InputPer1K:  0.000075,
				OutputPer1K: 0.0003,
			},
		},
	}
}
