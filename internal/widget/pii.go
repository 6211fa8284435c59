package widget

import (
	"regexp"
	"strings"
	"unicode"
)

// PIIPattern is a named shape that an opaque user reference must never match.
// Source is kept in a form both Go's RE2 and browser RegExp accept so the
// loader script can be rendered from the same list.
type PIIPattern struct {
	Name   string
	Source string
	re     *regexp.Regexp
}

var piiPatterns = compilePatterns([]PIIPattern{
	{Name: "card", Source: `\b\d{4}-\d{4}-\d{4}-\d{4}\b`},
	{Name: "ssn", Source: `\b\d{3}-\d{2}-\d{4}\b`},
	{Name: "iban", Source: `\b[A-Z]{2}\d{2}\s?\d{4}\s?\d{6}\b`},
	{Name: "passport", Source: `\b[A-Z]{2}\d{8}\b`},
	{Name: "aadhaar", Source: `\b\d{12}\b`},
})

// MinPhoneDigits is the digit count at which an identifier is treated as a
// phone number or national id regardless of separators.
const MinPhoneDigits = 10

func compilePatterns(in []PIIPattern) []PIIPattern {
	out := make([]PIIPattern, len(in))
	for i, p := range in {
		p.re = regexp.MustCompile(p.Source)
		out[i] = p
	}
	return out
}

// PIIPatterns returns the regex shapes checked by IsPotentialPII.
func PIIPatterns() []PIIPattern {
	out := make([]PIIPattern, len(piiPatterns))
	copy(out, piiPatterns)
	return out
}

// IsPotentialPII reports whether value looks like an email, phone number,
// card, SSN, IBAN, passport or Aadhaar number.
func IsPotentialPII(value string) bool {
	_, ok := MatchPII(value)
	return ok
}

// MatchPII is IsPotentialPII that also names the matching shape.
func MatchPII(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return "email", true
	}
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits >= MinPhoneDigits {
		return "phone", true
	}
	for _, p := range piiPatterns {
		if p.re.MatchString(value) {
			return p.Name, true
		}
	}
	return "", false
}

// PIIPolicy decides what happens when a user reference looks like PII.
type PIIPolicy int

const (
	// PIIWarn logs and continues.
	PIIWarn PIIPolicy = iota
	// PIIBlock aborts initialization.
	PIIBlock
)

func (p PIIPolicy) String() string {
	if p == PIIBlock {
		return "block"
	}
	return "warn"
}
