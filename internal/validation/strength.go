package validation

import (
	"math"
	"unicode/utf8"
)

const (
	strongLength = 12
	maxScore     = 4
)

// Strength describes password quality on a 0-4 scale.
//
// IsStrong compares the unfloored composite against 4 while Score is the
// floored value, so both are reported as computed.
type Strength struct {
	Score    int      `json:"score"`
	Feedback []string `json:"feedback"`
	IsStrong bool     `json:"is_strong"`
}

// Label names the score band shown next to the strength bar.
func (s Strength) Label() string {
	switch {
	case s.Score <= 1:
		return "Weak"
	case s.Score == 2:
		return "Fair"
	case s.Score == 3:
		return "Good"
	default:
		return "Strong"
	}
}

// Requirement is one line of the password checklist.
type Requirement struct {
	Text string `json:"text"`
	Met  bool   `json:"met"`
}

// CheckPasswordStrength scores password against the five base rules plus the
// length and complexity bonuses.
func CheckPasswordStrength(password string) Strength {
	total := 0.0
	feedback := []string{}

	length := utf8.RuneCountInString(password)
	lower, upper, digit, special := hasLower(password), hasUpper(password), hasDigit(password), hasSpecial(password)

	rules := []struct {
		ok   bool
		hint string
	}{
		{length >= minPasswordLength, "Use at least 8 characters"},
		{lower, "Add lowercase letters"},
		{upper, "Add uppercase letters"},
		{digit, "Add numbers"},
		{special, "Add special characters"},
	}
	for _, rule := range rules {
		if rule.ok {
			total++
			continue
		}
		feedback = append(feedback, rule.hint)
	}

	if length >= strongLength {
		total += 0.5
	}
	if lower && upper && digit && special {
		total += 0.5
	}

	return Strength{
		Score:    int(math.Min(math.Floor(total), maxScore)),
		Feedback: feedback,
		IsStrong: total >= maxScore,
	}
}

// Requirements returns the checklist rendered under the password field.
func Requirements(password string) []Requirement {
	return []Requirement{
		{Text: "At least 8 characters", Met: utf8.RuneCountInString(password) >= minPasswordLength},
		{Text: "One lowercase letter", Met: hasLower(password)},
		{Text: "One uppercase letter", Met: hasUpper(password)},
		{Text: "One number", Met: hasDigit(password)},
		{Text: "One special character (@$!%*?&)", Met: hasSpecial(password)},
	}
}
