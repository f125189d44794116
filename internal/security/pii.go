package security

import "regexp"

// PII categories.
const (
	PIIEmail      = "email"
	PIIPhone      = "phone"
	PIISSN        = "ssn"
	PIICreditCard = "credit_card"
	PIIIPAddress  = "ip_address"
	PIIDOB        = "dob"
)

// PIIRule detects one category of personally identifiable information.
// PII rules are independent and unordered; each reports every
// non-overlapping match.
type PIIRule struct {
	Category string
	Regex    *regexp.Regexp
}

// DefaultPIIRules returns the built-in PII detection rules.
func DefaultPIIRules() []PIIRule {
	return []PIIRule{
		{
			Category: PIIEmail,
			Regex:    regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		},
		{
			// US formats: 555-123-4567, (555) 123-4567, +1 555 123 4567
			Category: PIIPhone,
			Regex:    regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
		},
		{
			Category: PIISSN,
			Regex:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		{
			Category: PIICreditCard,
			Regex:    regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		},
		{
			Category: PIIIPAddress,
			Regex:    regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
		},
		{
			// MM/DD/YYYY or MM-DD-YYYY with 19xx/20xx years
			Category: PIIDOB,
			Regex:    regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:19|20)\d{2}\b`),
		},
	}
}
