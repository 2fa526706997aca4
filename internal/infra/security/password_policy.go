package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/auction-registry/internal/core/port"
)

const (
	defaultMinPasswordLength   = 12
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3

	maxZxcvbnScore = 4
	// Identifier fragments shorter than this are too common to reject on.
	minUserInputLength = 3
)

// Policy rule names reported in PolicyViolation.Rule.
const (
	RuleMinLength          = "min_length"
	RuleCharacterClasses   = "character_classes"
	RuleContainsIdentifier = "contains_identifier"
	RuleWeakPassword       = "weak_password"
)

// PolicyViolation names the first rule a candidate credential broke.
type PolicyViolation struct {
	Rule    string
	Message string
}

func (v *PolicyViolation) Error() string {
	return v.Message
}

// PasswordPolicyConfig tunes the rules applied to new credentials.
type PasswordPolicyConfig struct {
	MinLength           int
	MinCharacterClasses int
	MinScore            int
}

// DefaultPasswordPolicyConfig returns the built-in password policy.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           defaultMinPasswordLength,
		MinCharacterClasses: defaultMinCharacterClasses,
		MinScore:            defaultMinZxcvbnScore,
	}
}

// PasswordPolicy checks new credentials for length, character variety, containment of the
// principal's own identifiers and zxcvbn strength, in that order.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy builds a policy from cfg, falling back to defaults for unset values.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinPasswordLength
	}
	if cfg.MinCharacterClasses < 0 {
		cfg.MinCharacterClasses = 0
	}
	if cfg.MinScore < 0 {
		cfg.MinScore = 0
	}
	if cfg.MinScore > maxZxcvbnScore {
		cfg.MinScore = maxZxcvbnScore
	}
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns a *PolicyViolation for the first rule password breaks. userInputs carry
// values, such as the login identifier, that the password must not contain and that zxcvbn penalizes.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, len(userInputs))
	for _, input := range userInputs {
		if trimmed := strings.TrimSpace(input); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}

	if n := len([]rune(password)); n < p.cfg.MinLength {
		return &PolicyViolation{
			Rule:    RuleMinLength,
			Message: fmt.Sprintf("password must be at least %d characters long", p.cfg.MinLength),
		}
	}
	if classes := characterClasses(password); classes < p.cfg.MinCharacterClasses {
		return &PolicyViolation{
			Rule:    RuleCharacterClasses,
			Message: fmt.Sprintf("password must mix at least %d of upper case, lower case, digits and symbols", p.cfg.MinCharacterClasses),
		}
	}
	if containsUserInput(password, inputs) {
		return &PolicyViolation{
			Rule:    RuleContainsIdentifier,
			Message: "password must not contain your identifier or name",
		}
	}
	if p.cfg.MinScore > 0 {
		if result := zxcvbn.PasswordStrength(password, inputs); result.Score < p.cfg.MinScore {
			return &PolicyViolation{
				Rule:    RuleWeakPassword,
				Message: "password is too easy to guess",
			}
		}
	}
	return nil
}

// characterClasses counts how many of upper case, lower case, digits and symbols occur in password.
func characterClasses(password string) int {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			symbol = true
		}
	}

	count := 0
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			count++
		}
	}
	return count
}

func containsUserInput(password string, inputs []string) bool {
	candidate := strings.ToLower(password)
	for _, input := range inputs {
		input = strings.ToLower(input)
		if len([]rune(input)) < minUserInputLength {
			continue
		}
		if strings.Contains(candidate, input) {
			return true
		}
	}
	return false
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
