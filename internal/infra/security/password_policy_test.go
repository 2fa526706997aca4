package security

import (
	"errors"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func assertViolation(t *testing.T, err error, rule string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s violation", rule)
	}
	var violation *PolicyViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected PolicyViolation, got %T", err)
	}
	if violation.Rule != rule {
		t.Fatalf("expected %s rule, got %s", rule, violation.Rule)
	}
}

func TestPasswordPolicyAcceptsStrongPassword(t *testing.T) {
	policy := NewPasswordPolicy(DefaultPasswordPolicyConfig())

	password := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < defaultMinZxcvbnScore {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := policy.Validate(password, "analyst@registry.test"); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestPasswordPolicyViolations(t *testing.T) {
	policy := NewPasswordPolicy(DefaultPasswordPolicyConfig())

	assertViolation(t, policy.Validate("Short1!"), RuleMinLength)
	assertViolation(t, policy.Validate("lowercasepassword"), RuleCharacterClasses)
	assertViolation(t, policy.Validate("Password1234"), RuleWeakPassword)
	assertViolation(t, policy.Validate("Xk9!jdoe-Vault#77", "JDoe"), RuleContainsIdentifier)
}

func TestPasswordPolicyAppliesConfiguredLength(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinLength: 20, MinCharacterClasses: 3, MinScore: 3})

	assertViolation(t, policy.Validate("C0mplex!Phrase#9"), RuleMinLength)
}

func TestPasswordPolicyIgnoresShortUserInputs(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinLength: 4, MinCharacterClasses: 2})

	if err := policy.Validate("abacus-Gr8!", "ab", "  ", "trader"); err != nil {
		t.Fatalf("short inputs must be ignored, got %v", err)
	}
	assertViolation(t, policy.Validate("MyTRADER-pass1", "trader"), RuleContainsIdentifier)
}

func TestPasswordPolicyCountsCharacterClasses(t *testing.T) {
	cases := map[string]int{
		"":         0,
		"abc":      1,
		"abcDEF":   2,
		"abc123!":  3,
		"aB3$":     4,
		"пароль9€": 3,
	}
	for password, want := range cases {
		if got := characterClasses(password); got != want {
			t.Fatalf("characterClasses(%q) = %d, want %d", password, got, want)
		}
	}
}
