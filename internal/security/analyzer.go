// Package security provides pattern-based prompt injection and PII detection
// for inbound prompts, and a safety post-check for model responses.
package security

import (
	"log/slog"
	"regexp"
	"sort"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

// Span is a matched region of the input text.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// RuleMatch records all matches of one injection rule.
type RuleMatch struct {
	RuleID   string  `json:"rule_id"`
	Category string  `json:"category"`
	Severity float64 `json:"severity"`
	Spans    []Span  `json:"spans"`
}

// PIISpan is a single PII detection with its category.
type PIISpan struct {
	Category string `json:"category"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
}

// Verdict is the immutable per-request result of prompt analysis.
type Verdict struct {
	InjectionDetected bool        `json:"injection_detected"`
	InjectionScore    float64     `json:"injection_score"`
	MatchedRules      []RuleMatch `json:"matched_rules,omitempty"`
	PIIDetected       bool        `json:"pii_detected"`
	PIICategories     []string    `json:"pii_categories,omitempty"`
	PIISpans          []PIISpan   `json:"pii_spans,omitempty"`
}

// RiskFactor records one response safety pattern that matched.
type RiskFactor struct {
	PatternID   string   `json:"pattern_id"`
	MatchedText []string `json:"matched_text"`
	Severity    float64  `json:"severity"`
}

// ResponseSafety is the verdict for a generated response. Confidence starts
// at 1.0 and drops 0.2 for each distinct pattern that matched at least once,
// clamped to [0, 1].
type ResponseSafety struct {
	IsSafe          bool         `json:"is_safe"`
	RiskFactors     []RiskFactor `json:"risk_factors,omitempty"`
	ConfidenceScore float64      `json:"confidence_score"`
}

const confidenceStepPerPattern = 0.2

// Analyzer applies the immutable rule sets to prompts and responses. It holds
// no per-request state; one instance is shared read-only across requests.
type Analyzer struct {
	rules         []Rule
	piiRules      []PIIRule
	responseRules []ResponseRule
	cfg           func() config.SecurityConfig
}

// NewAnalyzer creates an analyzer with the default rule sets.
func NewAnalyzer(cfg func() config.SecurityConfig) *Analyzer {
	return &Analyzer{
		rules:         DefaultRules(),
		piiRules:      DefaultPIIRules(),
		responseRules: DefaultResponseRules(),
		cfg:           cfg,
	}
}

// AnalyzePrompt scans text against every injection rule in order and returns
// a verdict with the accumulated score. The threshold is applied once, after
// all rules have been evaluated. Disabled security checks return an all-clear
// verdict without evaluating any pattern.
func (a *Analyzer) AnalyzePrompt(text string) Verdict {
	cfg := a.cfg()
	if !cfg.ChecksEnabled {
		return Verdict{}
	}

	var verdict Verdict
	for _, rule := range a.rules {
		locs := findAll(rule.Regex, rule.ID, text)
		if len(locs) == 0 {
			continue
		}

		match := RuleMatch{
			RuleID:   rule.ID,
			Category: rule.Category,
			Severity: rule.Severity,
		}
		for _, loc := range locs {
			match.Spans = append(match.Spans, Span{
				Start: loc[0],
				End:   loc[1],
				Text:  text[loc[0]:loc[1]],
			})
		}
		verdict.MatchedRules = append(verdict.MatchedRules, match)
		verdict.InjectionScore += rule.Severity * float64(len(locs))
	}

	verdict.InjectionDetected = verdict.InjectionScore >= cfg.InjectionThreshold

	if len(verdict.MatchedRules) > 0 {
		slog.Warn("prompt injection patterns matched",
			"score", verdict.InjectionScore,
			"rules", len(verdict.MatchedRules),
			"detected", verdict.InjectionDetected,
		)
	}
	return verdict
}

// ScanPII runs every PII rule against text, independent of the injection
// score. Returns a map of category to detected spans. Disabled PII detection
// returns an empty map.
func (a *Analyzer) ScanPII(text string) map[string][]PIISpan {
	cfg := a.cfg()
	if !cfg.PIIDetectionEnabled {
		return map[string][]PIISpan{}
	}

	detections := make(map[string][]PIISpan)
	for _, rule := range a.piiRules {
		locs := findAll(rule.Regex, rule.Category, text)
		for _, loc := range locs {
			detections[rule.Category] = append(detections[rule.Category], PIISpan{
				Category: rule.Category,
				Start:    loc[0],
				End:      loc[1],
				Text:     text[loc[0]:loc[1]],
			})
		}
	}

	if len(detections) > 0 {
		total := 0
		for _, spans := range detections {
			total += len(spans)
		}
		slog.Warn("pii detected in prompt", "instances", total, "categories", len(detections))
	}
	return detections
}

// Analyze combines injection analysis and PII scanning into one verdict.
func (a *Analyzer) Analyze(text string) Verdict {
	verdict := a.AnalyzePrompt(text)

	pii := a.ScanPII(text)
	if len(pii) == 0 {
		return verdict
	}

	verdict.PIIDetected = true
	for category, spans := range pii {
		verdict.PIICategories = append(verdict.PIICategories, category)
		verdict.PIISpans = append(verdict.PIISpans, spans...)
	}
	sort.Strings(verdict.PIICategories)
	sort.Slice(verdict.PIISpans, func(i, j int) bool {
		if verdict.PIISpans[i].Start != verdict.PIISpans[j].Start {
			return verdict.PIISpans[i].Start < verdict.PIISpans[j].Start
		}
		return verdict.PIISpans[i].Category < verdict.PIISpans[j].Category
	})
	return verdict
}

// AnalyzeResponseSafety checks a generated response against the
// harmful-content patterns. Each distinct pattern that matches flips IsSafe
// and costs one confidence step, regardless of how many times it matched.
func (a *Analyzer) AnalyzeResponseSafety(response string) ResponseSafety {
	result := ResponseSafety{IsSafe: true, ConfidenceScore: 1.0}

	for _, rule := range a.responseRules {
		locs := findAll(rule.Regex, rule.ID, response)
		if len(locs) == 0 {
			continue
		}

		factor := RiskFactor{PatternID: rule.ID, Severity: rule.Severity}
		for _, loc := range locs {
			factor.MatchedText = append(factor.MatchedText, response[loc[0]:loc[1]])
		}
		result.RiskFactors = append(result.RiskFactors, factor)
		result.IsSafe = false
		result.ConfidenceScore -= confidenceStepPerPattern
	}

	if result.ConfidenceScore < 0 {
		result.ConfidenceScore = 0
	}
	return result
}

// findAll wraps FindAllStringIndex so a single misbehaving rule degrades to
// "no match" instead of aborting the whole analysis.
func findAll(re *regexp.Regexp, ruleID, text string) (locs [][]int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pattern evaluation failed, treating as no match", "rule", ruleID, "panic", r)
			locs = nil
		}
	}()
	return re.FindAllStringIndex(text, -1)
}
