package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	minNameLength     = 2
	maxNameLength     = 50
	minPhoneDigits    = 10
	maxPhoneDigits    = 15
	codeLength        = 6

	// SpecialCharacters lists the symbols accepted by the password policy.
	SpecialCharacters = "@$!%*?&"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

// Result is the outcome of a single field validation. Valid is true exactly
// when Errors is empty.
type Result struct {
	Valid  bool     `json:"is_valid"`
	Errors []string `json:"errors"`
}

// First returns the highest-precedence error or an empty string.
func (r Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

func newResult(errs []string) Result {
	if errs == nil {
		errs = []string{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Sanitize strips angle brackets and surrounding whitespace from user input.
// It is not an HTML sanitizer.
func Sanitize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '<' || r == '>' {
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(cleaned)
}

// ValidateEmail checks presence and a basic local@domain.tld shape.
func ValidateEmail(email string) Result {
	if email == "" {
		return newResult([]string{"Email is required"})
	}
	if !emailPattern.MatchString(email) {
		return newResult([]string{"Please enter a valid email address"})
	}
	return newResult(nil)
}

// ValidatePassword reports every unmet password policy rule.
func ValidatePassword(password string) Result {
	if password == "" {
		return newResult([]string{"Password is required"})
	}

	var errs []string
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs = append(errs, "Password must be at least 8 characters long")
	}
	if !hasLower(password) {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !hasUpper(password) {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !hasDigit(password) {
		errs = append(errs, "Password must contain at least one number")
	}
	if !hasSpecial(password) {
		errs = append(errs, "Password must contain at least one special character (@$!%*?&)")
	}
	return newResult(errs)
}

// ValidateConfirmPassword requires confirm to be present and identical to password.
func ValidateConfirmPassword(password, confirm string) Result {
	if confirm == "" {
		return newResult([]string{"Please confirm your password"})
	}
	if password != confirm {
		return newResult([]string{"Passwords do not match"})
	}
	return newResult(nil)
}

// ValidateName accepts 2 to 50 ASCII letters and whitespace.
func ValidateName(name string) Result {
	if name == "" {
		return newResult([]string{"Name is required"})
	}

	var errs []string
	n := utf8.RuneCountInString(name)
	if n < minNameLength {
		errs = append(errs, "Name must be at least 2 characters long")
	}
	if n > maxNameLength {
		errs = append(errs, "Name must be less than 50 characters")
	}
	if !namePattern.MatchString(name) {
		errs = append(errs, "Name can only contain letters and spaces")
	}
	return newResult(errs)
}

// ValidatePhoneNumber is a digit-count heuristic; it does not check numbering plans.
func ValidatePhoneNumber(phone string) Result {
	if phone == "" {
		return newResult([]string{"Phone number is required"})
	}

	var errs []string
	digits := len(Digits(phone))
	if digits < minPhoneDigits {
		errs = append(errs, "Phone number must be at least 10 digits")
	}
	if digits > maxPhoneDigits {
		errs = append(errs, "Phone number must be less than 15 digits")
	}
	return newResult(errs)
}

// ValidateVerificationCode requires a code of exactly six characters.
func ValidateVerificationCode(code string) Result {
	if code == "" {
		return newResult([]string{"Verification code is required"})
	}
	if utf8.RuneCountInString(code) != codeLength {
		return newResult([]string{"Verification code must be 6 digits"})
	}
	return newResult(nil)
}

func hasLower(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= 'a' && r <= 'z' }) >= 0
}

func hasUpper(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

func hasSpecial(s string) bool {
	return strings.ContainsAny(s, SpecialCharacters)
}
