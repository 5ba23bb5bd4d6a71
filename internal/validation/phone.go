package validation

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// FormatPhoneNumber renders ten-digit numbers as (XXX) XXX-XXXX and returns
// anything else unchanged.
func FormatPhoneNumber(phone string) string {
	d := Digits(phone)
	if len(d) != 10 {
		return phone
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}

// NormalizeE164 keeps digits and '+' and adds a country prefix when missing.
// Bare ten-digit numbers are treated as North American.
func NormalizeE164(phone string) string {
	formatted := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, phone)

	if strings.HasPrefix(formatted, "+") {
		return formatted
	}
	switch {
	case len(formatted) == 10:
		return "+1" + formatted
	default:
		// 11 digits with a leading 1 already carry the country code.
		return "+" + formatted
	}
}

// IsValidE164 reports whether phone is an E.164 number of plausible length.
func IsValidE164(phone string) bool {
	return e164Pattern.MatchString(phone) && len(phone) >= 8 && len(phone) <= 16
}
