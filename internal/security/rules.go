package security

import "regexp"

// Rule categories for injection detection.
const (
	CategoryInstructionOverride    = "instruction_override"
	CategoryPersonaManipulation    = "persona_manipulation"
	CategoryJailbreak              = "jailbreak"
	CategorySystemPromptExtraction = "system_prompt_extraction"
	CategoryCodeInjection          = "code_injection"
	CategoryDataExtraction         = "data_extraction"
)

// Rule defines a prompt injection detection pattern. Severity is assigned
// from a fixed cyclic table by rule position, so it is tied to the rule's
// slot in the ordered list, not computed per match.
type Rule struct {
	ID       string
	Regex    *regexp.Regexp
	Category string
	Severity float64
}

// severityWeights is the cyclic severity table, indexed by rule position mod 8.
var severityWeights = [8]float64{0.8, 0.7, 0.9, 0.6, 0.8, 0.9, 0.7, 0.8}

type ruleSpec struct {
	id       string
	pattern  string
	category string
}

var injectionRuleSpecs = []ruleSpec{
	// Direct instruction overrides
	{"ignore_previous", `(?i)ignore\s+(?:all\s+)?(?:previous|above)\s+(?:instructions|prompts)`, CategoryInstructionOverride},
	{"disregard_previous", `(?i)disregard\s+(?:all\s+)?(?:previous|above)\s+(?:instructions|prompts)`, CategoryInstructionOverride},
	{"forget_previous", `(?i)forget\s+(?:all\s+)?(?:previous|above)\s+(?:instructions|prompts)`, CategoryInstructionOverride},

	// Role-playing and persona manipulation
	{"you_are_not", `(?i)you\s+are\s+(?:not|a|an)\s+.*(?:assistant|AI|model|bot)`, CategoryPersonaManipulation},
	{"act_as_different", `(?i)act\s+as\s+(?:if\s+)?you\s+(?:are|were)\s+.*(?:different|another|not\s+an?\s+assistant)`, CategoryPersonaManipulation},
	{"pretend_to_be", `(?i)pretend\s+(?:to\s+)?be\s+.*(?:different|another|not\s+an?\s+assistant)`, CategoryPersonaManipulation},

	// Jailbreak and restriction bypass
	{"harmful_howto", `(?i)how\s+to\s+build\s+(?:a\s+)?(?:bomb|weapon|harmful|illegal|malicious)\b`, CategoryJailbreak},
	{"bypass_restrictions", `(?i)bypass\s+(?:your|this\s+)?(?:guidelines|restrictions|limitations|system|content\s+filter)`, CategoryJailbreak},
	{"ignore_restrictions", `(?i)ignore\s+(?:your|this\s+)?(?:guidelines|restrictions|limitations|system|content\s+filter)`, CategoryJailbreak},

	// System prompt extraction
	{"reveal_instructions", `(?i)what\s+are\s+(?:your|this\s+)?(?:system\s+)?(?:prompts|instructions|guidelines|rules)`, CategorySystemPromptExtraction},
	{"repeat_instructions", `(?i)repeat\s+(?:back|after\s+me)\s+.*(?:prompts|instructions|guidelines|rules)`, CategorySystemPromptExtraction},

	// Code injection markers
	{"code_execution", `(?i)execute\s+code|run\s+code|system\(|eval\(|import\s+os|import\s+subprocess`, CategoryCodeInjection},

	// Sensitive data extraction phrasing
	{"extract_sensitive", `(?i)extract\s+(?:sensitive|private|confidential)\s+(?:data|information|content)`, CategoryDataExtraction},
	{"dump_sensitive", `(?i)dump\s+(?:sensitive|private|confidential)\s+(?:data|information|content)`, CategoryDataExtraction},
}

// DefaultRules returns the built-in injection detection rules in priority
// order, with severities drawn from the cyclic weight table.
func DefaultRules() []Rule {
	rules := make([]Rule, len(injectionRuleSpecs))
	for i, spec := range injectionRuleSpecs {
		rules[i] = Rule{
			ID:       spec.id,
			Regex:    regexp.MustCompile(spec.pattern),
			Category: spec.category,
			Severity: severityWeights[i%len(severityWeights)],
		}
	}
	return rules
}

// ResponseRule defines a harmful-content pattern applied to model output.
type ResponseRule struct {
	ID       string
	Regex    *regexp.Regexp
	Severity float64
}

// DefaultResponseRules returns the built-in response safety patterns.
func DefaultResponseRules() []ResponseRule {
	return []ResponseRule{
		{
			ID:       "harmful_content_advice",
			Regex:    regexp.MustCompile(`(?i)(?:violent|harmful|dangerous|illegal|unethical)\s+(?:content|instructions|advice)`),
			Severity: 0.8,
		},
		{
			ID:       "cause_harm_howto",
			Regex:    regexp.MustCompile(`(?i)how\s+to\s+cause\s+(?:harm|damage|destruction|violence)`),
			Severity: 0.8,
		},
		{
			ID:       "create_harmful",
			Regex:    regexp.MustCompile(`(?i)(?:create|make|build)\s+(?:harmful|dangerous|malicious|harm)\b`),
			Severity: 0.8,
		},
	}
}
