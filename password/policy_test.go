package password

import (
	"errors"
	"testing"
)

func TestValidatePolicyAcceptsCompliantPasswords(t *testing.T) {
	for _, candidate := range []string{"Valid123!", "Sunrise99!", `Quote"Mark7x`} {
		if err := ValidatePolicy(candidate, 8); err != nil {
			t.Fatalf("expected %q to pass, got %v", candidate, err)
		}
	}
}

func TestValidatePolicyFlagsEachMissingClass(t *testing.T) {
	cases := []struct {
		candidate string
		rule      Rule
	}{
		{"Short1!", RuleMinLength},
		{"alllowercase1!", RuleUppercase},
		{"ALLUPPER1!", RuleLowercase},
		{"NoDigitsHere!", RuleDigit},
		{"NoSymbols123", RuleSymbol},
	}
	for _, tc := range cases {
		err := ValidatePolicy(tc.candidate, 8)
		var policyErr *PolicyError
		if !errors.As(err, &policyErr) {
			t.Fatalf("expected a PolicyError for %q, got %v", tc.candidate, err)
		}
		if !policyErr.Has(tc.rule) {
			t.Fatalf("expected %q to violate %s, got %v", tc.candidate, tc.rule, policyErr)
		}
		if len(policyErr.Violations) != 1 {
			t.Fatalf("expected exactly one violation for %q, got %v", tc.candidate, policyErr)
		}
	}
}

func TestValidatePolicyCollectsAllViolations(t *testing.T) {
	err := ValidatePolicy("abc", 8)
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected a PolicyError, got %v", err)
	}
	for _, rule := range []Rule{RuleMinLength, RuleUppercase, RuleDigit, RuleSymbol} {
		if !policyErr.Has(rule) {
			t.Fatalf("expected violation of %s, got %v", rule, policyErr)
		}
	}
	if policyErr.Has(RuleLowercase) {
		t.Fatal("did not expect a lowercase violation")
	}
}

func TestValidatePolicyDefaultsMinLength(t *testing.T) {
	err := ValidatePolicy("Ab1!Ab1", 0)
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) || !policyErr.Has(RuleMinLength) {
		t.Fatalf("expected the 8-character default to apply, got %v", err)
	}
}

func TestPolicyErrorMessageListsViolations(t *testing.T) {
	err := ValidatePolicy("NoSymbols123", 8)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "password must contain at least one special character" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
