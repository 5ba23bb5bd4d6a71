package flow

import (
	"errors"
	"fmt"

	"github.com/propertyhub/authgateway/internal/provider"
)

const (
	msgTermsRequired    = "You must agree to the Terms of Service"
	msgPrivacyRequired  = "You must agree to the Privacy Policy"
	msgAgreeBeforeGoing = "Please agree to the Terms of Service and Privacy Policy before continuing"
	msgGoogleSignInDown = "Unable to sign in with Google. Please try again or use email sign in."
	msgGoogleSignUpDown = "Unable to sign up with Google. Please try again or use email signup."
	msgTooManyAttempts  = "Too many attempts. Please try again in %d minutes."
)

// messageTable turns provider failures into text for the general error area.
type messageTable struct {
	messages map[provider.Code]string
	fallback string
}

// translate maps known codes through the table. Unmapped provider codes use
// the provider's own message; anything that is not a provider error gets the
// fallback.
func (t messageTable) translate(err error) string {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		return t.fallback
	}
	if msg, ok := t.messages[perr.Code]; ok {
		return msg
	}
	if perr.Message != "" {
		return perr.Message
	}
	return t.fallback
}

var (
	signInEmailMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodeUserNotFound:    "No account found with this email address",
			provider.CodeWrongPassword:   "Incorrect password",
			provider.CodeInvalidEmail:    "Invalid email address",
			provider.CodeUserDisabled:    "This account has been disabled",
			provider.CodeTooManyRequests: "Too many failed attempts. Please try again later",
		},
		fallback: "An error occurred during sign in",
	}

	signUpEmailMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodeEmailAlreadyInUse:   "An account with this email already exists",
			provider.CodeInvalidEmail:        "Invalid email address",
			provider.CodeOperationNotAllowed: "Email/password accounts are not enabled",
			provider.CodeWeakPassword:        "Password is too weak",
		},
		fallback: "An error occurred during sign up",
	}

	phoneMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodeInvalidPhoneNumber:      "Invalid phone number format",
			provider.CodeTooManyRequests:         "Too many requests. Please try again later",
			provider.CodeInvalidVerificationCode: "Invalid verification code",
		},
		fallback: "Phone authentication failed",
	}

	federatedSignInMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodePopupClosedByUser:                    "Sign in was cancelled. Please try again.",
			provider.CodeCancelledPopupRequest:                "Sign in was cancelled. Please try again.",
			provider.CodeAccountExistsWithDifferentCredential: "An account already exists with this email using a different sign-in method.",
		},
		fallback: "Failed to sign in with Google",
	}

	federatedSignUpMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodePopupClosedByUser:                    "Sign up was cancelled. Please try again.",
			provider.CodeCancelledPopupRequest:                "Sign up was cancelled. Please try again.",
			provider.CodeAccountExistsWithDifferentCredential: "An account already exists with this email using a different sign-in method.",
		},
		fallback: "Failed to sign up with Google",
	}

	resetMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodeUserNotFound:    "No account found with this email address",
			provider.CodeInvalidEmail:    "Invalid email address",
			provider.CodeTooManyRequests: "Too many requests. Please try again later",
		},
		fallback: "Failed to send reset email",
	}

	resetConfirmMessages = messageTable{
		messages: map[provider.Code]string{
			provider.CodeInvalidActionCode: "This password reset link is invalid or has expired",
			provider.CodeUserNotFound:      "This password reset link is invalid or has expired",
			provider.CodeUserDisabled:      "This account has been disabled",
			provider.CodeTooManyRequests:   "Too many requests. Please try again later",
		},
		fallback: "Failed to reset password",
	}
)

func tooManyAttempts(minutes int) string {
	return fmt.Sprintf(msgTooManyAttempts, minutes)
}
