package flow

import "github.com/propertyhub/authgateway/internal/provider"

// Kind selects between the sign-in and sign-up forms.
type Kind string

const (
	KindSignIn Kind = "signin"
	KindSignUp Kind = "signup"
)

// ParseKind validates a kind received from a client.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSignIn, KindSignUp:
		return Kind(s), nil
	default:
		return "", ErrUnknownKind
	}
}

// Method is the active authentication method.
type Method string

const (
	MethodEmail Method = "email"
	MethodPhone Method = "phone"
)

// ParseMethod validates a method received from a client.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodEmail, MethodPhone:
		return Method(s), nil
	default:
		return "", ErrUnknownMethod
	}
}

// PhoneStep is the position within the phone flow: either AwaitingNumber or
// AwaitingCode. Only AwaitingCode carries a confirmation handle.
type PhoneStep interface {
	Name() string
	isPhoneStep()
}

// AwaitingNumber waits for the user to submit a phone number.
type AwaitingNumber struct{}

// AwaitingCode waits for the code sent under Handle.
type AwaitingCode struct {
	Handle provider.ConfirmationHandle
}

func (AwaitingNumber) Name() string { return "phone" }
func (AwaitingCode) Name() string   { return "verification" }

func (AwaitingNumber) isPhoneStep() {}
func (AwaitingCode) isPhoneStep()   {}

// Text fields accepted by SetField.
const (
	FieldEmail            = "email"
	FieldPassword         = "password"
	FieldConfirmPassword  = "confirmPassword"
	FieldName             = "name"
	FieldPhoneNumber      = "phoneNumber"
	FieldVerificationCode = "verificationCode"
	// FieldGeneral keys errors that are not tied to one input.
	FieldGeneral = "general"
)

// Flags accepted by SetFlag.
const (
	FlagRememberMe           = "rememberMe"
	FlagAgreeToTerms         = "agreeToTerms"
	FlagAgreeToPrivacy       = "agreeToPrivacy"
	FlagSubscribeToMarketing = "subscribeToMarketing"
)

var (
	textFields = map[string]bool{
		FieldEmail: true, FieldPassword: true, FieldConfirmPassword: true,
		FieldName: true, FieldPhoneNumber: true, FieldVerificationCode: true,
	}
	secretFields = map[string]bool{FieldPassword: true, FieldConfirmPassword: true}
	flagFields   = map[string]bool{
		FlagRememberMe: true, FlagAgreeToTerms: true, FlagAgreeToPrivacy: true, FlagSubscribeToMarketing: true,
	}
)

// Outcome reports where the client should go after a submit. A zero Outcome
// means the form stays on screen, usually with errors to show.
type Outcome struct {
	Navigate string         `json:"navigate,omitempty"`
	Redirect string         `json:"redirect,omitempty"`
	User     *provider.User `json:"user,omitempty"`
}

// Done reports whether the flow has handed control elsewhere.
func (o Outcome) Done() bool {
	return o.Navigate != "" || o.Redirect != ""
}
