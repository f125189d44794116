// Package tokens estimates token counts without a real tokenizer.
// Estimates feed cost accounting and telemetry, so they deliberately err
// high: underestimating tokens means undercharging and under-reporting load.
package tokens

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Tokens-per-word ratios by content type. Calibrated against GPT-family
// tokenizers on English text and typical source code.
const (
	ratioCode    = 1.5
	ratioEnglish = 1.2
	ratioMixed   = 1.3
)

var codeIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(function|def|class|import|from|return|if|else|for|while|try|catch)\b`),
	regexp.MustCompile(`[{}()\[\];,]`),
	regexp.MustCompile(`=\s*\w+`),
	regexp.MustCompile(`(?i)\b(var|let|const)\b`),
	regexp.MustCompile(`//|#|/\*|\*/`),
}

var englishFunctionWords = regexp.MustCompile(`(?i)\b(the|and|or|but|is|are|was|were|have|has|had|will|would|could|should|may|might|can|this|that|these|those|with|from|they|them|their|there|here|when|where|who|what|how|why)\b`)

// Estimate returns an approximate token count for text. Empty or
// whitespace-only input returns 0. The result is the conservative maximum of
// a word-ratio estimate and a characters/4 estimate. Never panics.
func Estimate(text string) (n int) {
	defer func() {
		if r := recover(); r != nil {
			n = charEstimate(text)
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	words := strings.Fields(trimmed)
	ratio := ratioMixed
	if isCodeLike(trimmed) {
		ratio = ratioCode
	} else if isEnglishHeavy(trimmed, len(words)) {
		ratio = ratioEnglish
	}

	wordEstimate := int(float64(len(words)) * ratio)
	if ce := charEstimate(trimmed); ce > wordEstimate {
		return ce
	}
	return wordEstimate
}

// charEstimate is the fallback heuristic: roughly 4 characters per token.
func charEstimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	e := len(text) / 4
	if e < 1 {
		return 1
	}
	return e
}

// isCodeLike reports whether text looks like source code. At least two
// distinct indicator classes must match.
func isCodeLike(text string) bool {
	hits := 0
	for _, re := range codeIndicators {
		if re.MatchString(text) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}

// isEnglishHeavy reports whether more than 10% of words are common English
// function words.
func isEnglishHeavy(text string, wordCount int) bool {
	if wordCount == 0 {
		return false
	}
	matches := englishFunctionWords.FindAllString(text, -1)
	return float64(len(matches))/float64(wordCount) > 0.1
}

// CountPair estimates input and output tokens for a prompt/response pair.
func CountPair(prompt, response string) (inputTokens, outputTokens int) {
	return Estimate(prompt), Estimate(response)
}

// FormatCount renders a token count for display, e.g. "1.2K" or "1.5M".
func FormatCount(tokens int) string {
	switch {
	case tokens >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(tokens)/1_000_000)
	case tokens >= 1_000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1_000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}

// LimitCheck reports whether a prompt fits within a token budget and how much
// of the model's context window it consumes.
type LimitCheck struct {
	WithinLimits    bool    `json:"within_limits"`
	PromptTokens    int     `json:"prompt_tokens"`
	MaxTokens       int     `json:"max_tokens"`
	ModelLimit      int     `json:"model_limit"`
	Model           string  `json:"model"`
	UsagePercentage float64 `json:"usage_percentage"`
}

// ValidateLimit checks the estimated prompt size against maxTokens and the
// model's context window. Unknown models fall back to the largest window.
func ValidateLimit(prompt string, maxTokens int, model string, contextWindows map[string]int, defaultModel string) LimitCheck {
	limit, ok := contextWindows[model]
	if !ok {
		limit = contextWindows[defaultModel]
	}
	if limit <= 0 {
		limit = 1_000_000
	}

	promptTokens := Estimate(prompt)
	pct := float64(promptTokens) / float64(limit) * 100

	return LimitCheck{
		WithinLimits:    promptTokens <= maxTokens,
		PromptTokens:    promptTokens,
		MaxTokens:       maxTokens,
		ModelLimit:      limit,
		Model:           model,
		UsagePercentage: math.Round(pct*100) / 100,
	}
}
