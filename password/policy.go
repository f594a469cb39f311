package password

import (
	"fmt"
	"strings"
	"unicode"
)

// SymbolSet is the punctuation accepted as the "special character" class.
const SymbolSet = `!@#$%^&*(),.?":{}|<>`

// Rule identifies one complexity requirement.
type Rule string

const (
	RuleMinLength Rule = "min_length"
	RuleUppercase Rule = "uppercase"
	RuleLowercase Rule = "lowercase"
	RuleDigit     Rule = "digit"
	RuleSymbol    Rule = "symbol"
)

// Violation names one failed rule with its user-facing message.
type Violation struct {
	Rule    Rule
	Message string
}

// PolicyError lists every rule the candidate password failed. Rules are
// evaluated independently so each missing class is individually identifiable.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "password policy violation"
	}
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether the error includes a violation of rule.
func (e *PolicyError) Has(rule Rule) bool {
	if e == nil {
		return false
	}
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// ValidatePolicy checks candidate against all complexity rules and returns a
// *PolicyError collecting every failure, or nil when all rules pass.
func ValidatePolicy(candidate string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}

	var (
		hasUpper, hasLower, hasDigit, hasSymbol bool
	)
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SymbolSet, r):
			hasSymbol = true
		}
	}

	var violations []Violation
	if len(candidate) < minLength {
		violations = append(violations, Violation{
			Rule:    RuleMinLength,
			Message: fmt.Sprintf("password must be at least %d characters long", minLength),
		})
	}
	if !hasUpper {
		violations = append(violations, Violation{
			Rule:    RuleUppercase,
			Message: "password must contain at least one uppercase letter",
		})
	}
	if !hasLower {
		violations = append(violations, Violation{
			Rule:    RuleLowercase,
			Message: "password must contain at least one lowercase letter",
		})
	}
	if !hasDigit {
		violations = append(violations, Violation{
			Rule:    RuleDigit,
			Message: "password must contain at least one number",
		})
	}
	if !hasSymbol {
		violations = append(violations, Violation{
			Rule:    RuleSymbol,
			Message: "password must contain at least one special character",
		})
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
