package provider

import (
	"errors"
	"fmt"
)

// Code enumerates the failure reasons an identity provider can report.
type Code int

const (
	CodeUnknown Code = iota
	CodeUserNotFound
	CodeWrongPassword
	CodeInvalidEmail
	CodeUserDisabled
	CodeTooManyRequests
	CodeEmailAlreadyInUse
	CodeOperationNotAllowed
	CodeWeakPassword
	CodePopupBlocked
	CodePopupClosedByUser
	CodeCancelledPopupRequest
	CodeAccountExistsWithDifferentCredential
	CodeInvalidPhoneNumber
	CodeInvalidVerificationCode
	CodeInvalidActionCode
)

var codeNames = map[Code]string{
	CodeUnknown:                              "auth/unknown",
	CodeUserNotFound:                         "auth/user-not-found",
	CodeWrongPassword:                        "auth/wrong-password",
	CodeInvalidEmail:                         "auth/invalid-email",
	CodeUserDisabled:                         "auth/user-disabled",
	CodeTooManyRequests:                      "auth/too-many-requests",
	CodeEmailAlreadyInUse:                    "auth/email-already-in-use",
	CodeOperationNotAllowed:                  "auth/operation-not-allowed",
	CodeWeakPassword:                         "auth/weak-password",
	CodePopupBlocked:                         "auth/popup-blocked",
	CodePopupClosedByUser:                    "auth/popup-closed-by-user",
	CodeCancelledPopupRequest:                "auth/cancelled-popup-request",
	CodeAccountExistsWithDifferentCredential: "auth/account-exists-with-different-credential",
	CodeInvalidPhoneNumber:                   "auth/invalid-phone-number",
	CodeInvalidVerificationCode:              "auth/invalid-verification-code",
	CodeInvalidActionCode:                    "auth/invalid-action-code",
}

// String returns the wire identifier, e.g. "auth/user-not-found".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return codeNames[CodeUnknown]
}

// ParseCode maps a wire identifier back to a Code. Unrecognised names map to
// CodeUnknown.
func ParseCode(name string) Code {
	for code, n := range codeNames {
		if n == name {
			return code
		}
	}
	return CodeUnknown
}

// Error is a failure reported by an identity provider.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a provider error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the provider code and raw message from err. Errors that did
// not come from a provider are reported as CodeUnknown with err's text.
func CodeOf(err error) (Code, string) {
	if err == nil {
		return CodeUnknown, ""
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code, perr.Message
	}
	return CodeUnknown, err.Error()
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == code
}
