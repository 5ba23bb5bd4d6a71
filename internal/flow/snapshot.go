package flow

import (
	"time"

	"github.com/propertyhub/authgateway/internal/validation"
)

// Snapshot is the observable form state. Password fields are never echoed;
// PasswordSet reports whether one has been entered.
type Snapshot struct {
	ID               string            `json:"flow_id"`
	Kind             Kind              `json:"kind"`
	Method           Method            `json:"method"`
	Step             string            `json:"step"`
	Fields           map[string]string `json:"fields"`
	PasswordSet      bool              `json:"password_set"`
	Flags            map[string]bool   `json:"flags"`
	Errors           map[string]string `json:"errors"`
	FormattedPhone   string            `json:"formatted_phone,omitempty"`
	CodeSentTo       string            `json:"code_sent_to,omitempty"`
	CodeExpiresAt    *time.Time        `json:"code_expires_at,omitempty"`
	PasswordStrength *StrengthView     `json:"password_strength,omitempty"`
}

// StrengthView is the live strength meter shown on the sign-up form.
type StrengthView struct {
	validation.Strength
	Label        string                   `json:"label"`
	Requirements []validation.Requirement `json:"requirements"`
}

func (f *Flow) snapshot() Snapshot {
	s := Snapshot{
		ID:          f.id,
		Kind:        f.kind,
		Method:      f.method,
		Step:        f.step.Name(),
		Fields:      make(map[string]string, len(f.fields)),
		PasswordSet: f.fields[FieldPassword] != "",
		Flags:       make(map[string]bool, len(flagFields)),
		Errors:      make(map[string]string, len(f.errors)),
	}
	for k, v := range f.fields {
		if !secretFields[k] {
			s.Fields[k] = v
		}
	}
	for k := range flagFields {
		s.Flags[k] = f.flags[k]
	}
	for k, v := range f.errors {
		s.Errors[k] = v
	}
	if phone := f.fields[FieldPhoneNumber]; phone != "" {
		s.FormattedPhone = validation.FormatPhoneNumber(phone)
	}
	if step, ok := f.step.(AwaitingCode); ok {
		s.CodeSentTo = step.Handle.PhoneNumber
		if !step.Handle.ExpiresAt.IsZero() {
			exp := step.Handle.ExpiresAt
			s.CodeExpiresAt = &exp
		}
	}
	if f.kind == KindSignUp {
		pw := f.fields[FieldPassword]
		strength := validation.CheckPasswordStrength(pw)
		s.PasswordStrength = &StrengthView{
			Strength:     strength,
			Label:        strength.Label(),
			Requirements: validation.Requirements(pw),
		}
	}
	return s
}
