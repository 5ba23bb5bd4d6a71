// Package provider defines the boundary to the identity backend that
// performs credential exchange for the authentication flows.
package provider

import (
	"context"
	"time"
)

// User is the identity returned by a successful credential exchange.
type User struct {
	ID            string    `json:"user_id"`
	Email         string    `json:"email,omitempty"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	LastLoginAt   time.Time `json:"last_login_at"`
	// TokenVersion is stamped into session tokens and never serialized.
	TokenVersion int `json:"-"`
}

// ConfirmationHandle identifies an outstanding phone verification.
type ConfirmationHandle struct {
	VerificationID string
	PhoneNumber    string
	ExpiresAt      time.Time
}

// FederatedCredential carries the result of the client-side federated popup.
// An empty IDToken means the popup never produced a credential. When Nonce is
// set the ID token must carry the same nonce claim.
type FederatedCredential struct {
	IDToken string
	Nonce   string
}

// Provider performs credential exchange. Implementations report failures as
// *Error values; any other error is treated as CodeUnknown by callers.
type Provider interface {
	SignInWithEmail(ctx context.Context, email, password string, rememberMe bool) (User, error)
	SignUpWithEmail(ctx context.Context, email, password, displayName string) (User, error)
	SignInWithFederatedPopup(ctx context.Context, cred FederatedCredential) (User, error)
	// SignInWithFederatedRedirect returns the URL the client must follow.
	SignInWithFederatedRedirect(ctx context.Context, state string) (string, error)
	SendPhoneVerification(ctx context.Context, phoneNumber string) (ConfirmationHandle, error)
	ConfirmPhoneCode(ctx context.Context, handle ConfirmationHandle, code string) (User, error)
	ResetPassword(ctx context.Context, email string) error
}

// FederatedIdentity is a verified identity asserted by an external IdP.
type FederatedIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
}

// Federated verifies federated credentials and builds redirect URLs. It
// returns identity facts only and never creates accounts.
type Federated interface {
	Name() string
	// VerifyIDToken checks rawIDToken and, when nonce is non-empty, its
	// nonce claim.
	VerifyIDToken(ctx context.Context, rawIDToken, nonce string) (FederatedIdentity, error)
	RedirectURL(state string) string
	ExchangeCode(ctx context.Context, code string) (FederatedIdentity, error)
}
