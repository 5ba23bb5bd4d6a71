package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/propertyhub/authgateway/internal/identity"
	"github.com/propertyhub/authgateway/internal/notification"
	"github.com/propertyhub/authgateway/internal/ratelimit"
	"github.com/propertyhub/authgateway/internal/validation"
	"github.com/propertyhub/authgateway/internal/verification"
)

const (
	defaultOTPTTL          = 5 * time.Minute
	defaultResetTTL        = time.Hour
	defaultResetLinkBase   = "/reset-password"
	defaultThrottleMax     = 10
	defaultThrottleWindow  = time.Hour
	resetSecretBytes       = 32
	resetBodyFormat        = "Reset your PropertyHub password: %s"
	verificationBodyFormat = "Your PropertyHub verification code is %s"
)

// LocalConfig tunes the built-in provider.
type LocalConfig struct {
	OTPTTL          time.Duration
	MaxCodeAttempts int
	// ResetTTL bounds how long a password reset link stays usable.
	ResetTTL time.Duration
	// ResetLinkBase is the page the reset link points at; the token is
	// appended as the "token" query parameter.
	ResetLinkBase string
	// DisableSignUp rejects email/password registration with CodeOperationNotAllowed.
	DisableSignUp bool
	// Throttle limits provider-side attempts per identifier. A default
	// limiter is created when nil.
	Throttle *ratelimit.Limiter
}

// Local is the built-in identity provider backed by the identity service,
// a verification store and a notifier. Federated sign-in is available when a
// Federated implementation is configured.
type Local struct {
	ids       *identity.Service
	codes     verification.Store
	notifier  notification.Notifier
	federated Federated
	throttle  *ratelimit.Limiter
	cfg       LocalConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewLocal builds the built-in provider. federated may be nil.
func NewLocal(ids *identity.Service, codes verification.Store, notifier notification.Notifier, federated Federated, cfg LocalConfig, logger *slog.Logger) *Local {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = verification.DefaultMaxAttempts
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = defaultResetTTL
	}
	if cfg.ResetLinkBase == "" {
		cfg.ResetLinkBase = defaultResetLinkBase
	}
	throttle := cfg.Throttle
	if throttle == nil {
		throttle = ratelimit.New(defaultThrottleMax, defaultThrottleWindow)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		ids:       ids,
		codes:     codes,
		notifier:  notifier,
		federated: federated,
		throttle:  throttle,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SignInWithEmail verifies an email/password pair.
func (p *Local) SignInWithEmail(ctx context.Context, email, password string, rememberMe bool) (User, error) {
	if !validation.ValidateEmail(email).Valid {
		return User{}, Errorf(CodeInvalidEmail, "malformed email address")
	}
	if !p.throttle.Allow("signin:" + email) {
		return User{}, Errorf(CodeTooManyRequests, "access to this account has been temporarily disabled")
	}
	user, err := p.ids.Authenticate(ctx, email, password, rememberMe)
	if err != nil {
		return User{}, p.identityError(ctx, err)
	}
	return toUser(user), nil
}

// SignUpWithEmail registers an email/password account.
func (p *Local) SignUpWithEmail(ctx context.Context, email, password, displayName string) (User, error) {
	if p.cfg.DisableSignUp {
		return User{}, Errorf(CodeOperationNotAllowed, "password sign-up is disabled")
	}
	if !validation.ValidateEmail(email).Valid {
		return User{}, Errorf(CodeInvalidEmail, "malformed email address")
	}
	if res := validation.ValidatePassword(password); !res.Valid {
		return User{}, &Error{Code: CodeWeakPassword, Message: res.First()}
	}
	user, err := p.ids.Register(ctx, email, password, displayName)
	if err != nil {
		return User{}, p.identityError(ctx, err)
	}
	return toUser(user), nil
}

// SignInWithFederatedPopup verifies the ID token produced by the client popup.
func (p *Local) SignInWithFederatedPopup(ctx context.Context, cred FederatedCredential) (User, error) {
	if p.federated == nil {
		return User{}, Errorf(CodeOperationNotAllowed, "federated sign-in is not configured")
	}
	if cred.IDToken == "" {
		return User{}, Errorf(CodePopupBlocked, "popup did not return a credential")
	}
	ident, err := p.federated.VerifyIDToken(ctx, cred.IDToken, cred.Nonce)
	if err != nil {
		return User{}, err
	}
	return p.ensureFederated(ctx, ident)
}

// SignInWithFederatedRedirect returns the authorization URL for the redirect flow.
func (p *Local) SignInWithFederatedRedirect(_ context.Context, state string) (string, error) {
	if p.federated == nil {
		return "", Errorf(CodeOperationNotAllowed, "federated sign-in is not configured")
	}
	return p.federated.RedirectURL(state), nil
}

// CompleteFederatedRedirect finishes the redirect flow with the returned code.
func (p *Local) CompleteFederatedRedirect(ctx context.Context, code string) (User, error) {
	if p.federated == nil {
		return User{}, Errorf(CodeOperationNotAllowed, "federated sign-in is not configured")
	}
	ident, err := p.federated.ExchangeCode(ctx, code)
	if err != nil {
		return User{}, err
	}
	return p.ensureFederated(ctx, ident)
}

// SendPhoneVerification issues a verification code to phoneNumber.
func (p *Local) SendPhoneVerification(ctx context.Context, phoneNumber string) (ConfirmationHandle, error) {
	phone := validation.NormalizeE164(phoneNumber)
	if !validation.IsValidE164(phone) {
		return ConfirmationHandle{}, Errorf(CodeInvalidPhoneNumber, "%q is not a valid phone number", phoneNumber)
	}
	if !p.throttle.Allow("otp:" + phone) {
		return ConfirmationHandle{}, Errorf(CodeTooManyRequests, "too many verification requests for this number")
	}

	code, err := verification.GenerateCode()
	if err != nil {
		return ConfirmationHandle{}, err
	}
	handle := ConfirmationHandle{
		VerificationID: uuid.NewString(),
		PhoneNumber:    phone,
		ExpiresAt:      p.now().Add(p.cfg.OTPTTL),
	}
	challenge := verification.Challenge{ID: handle.VerificationID, Phone: phone, CodeHash: verification.HashCode(code)}
	if err := p.codes.Save(ctx, challenge, p.cfg.OTPTTL); err != nil {
		return ConfirmationHandle{}, fmt.Errorf("save verification: %w", err)
	}

	msg := notification.Message{
		Kind:        notification.KindVerificationCode,
		Destination: phone,
		Body:        fmt.Sprintf(verificationBodyFormat, code),
	}
	if err := p.notifier.Send(ctx, msg); err != nil {
		return ConfirmationHandle{}, fmt.Errorf("send verification: %w", err)
	}
	return handle, nil
}

// ConfirmPhoneCode checks code against the challenge behind handle.
func (p *Local) ConfirmPhoneCode(ctx context.Context, handle ConfirmationHandle, code string) (User, error) {
	challenge, err := p.codes.Consume(ctx, handle.VerificationID, code, p.cfg.MaxCodeAttempts)
	switch {
	case errors.Is(err, verification.ErrNotFound):
		return User{}, Errorf(CodeInvalidVerificationCode, "verification expired or unknown")
	case errors.Is(err, verification.ErrCodeMismatch):
		return User{}, Errorf(CodeInvalidVerificationCode, "verification code does not match")
	case errors.Is(err, verification.ErrAttemptsExceeded):
		return User{}, Errorf(CodeTooManyRequests, "too many wrong verification codes")
	case err != nil:
		return User{}, err
	}
	if challenge.Phone != handle.PhoneNumber {
		return User{}, Errorf(CodeInvalidVerificationCode, "verification does not belong to this number")
	}

	user, err := p.ids.EnsurePhoneUser(ctx, challenge.Phone)
	if err != nil {
		return User{}, p.identityError(ctx, err)
	}
	return toUser(user), nil
}

// ResetPassword issues a single-use reset token for the account behind email
// and sends it as a link. Only the digest of the secret is stored.
func (p *Local) ResetPassword(ctx context.Context, email string) error {
	if !validation.ValidateEmail(email).Valid {
		return Errorf(CodeInvalidEmail, "malformed email address")
	}
	if !p.throttle.Allow("reset:" + email) {
		return Errorf(CodeTooManyRequests, "too many reset requests")
	}
	user, err := p.ids.Lookup(ctx, email)
	if err != nil {
		return p.identityError(ctx, err)
	}
	if user.Disabled {
		return Errorf(CodeUserDisabled, "the user account has been disabled")
	}

	secret, err := verification.GenerateSecret(resetSecretBytes)
	if err != nil {
		return err
	}
	resetID := uuid.NewString()
	challenge := verification.Challenge{ID: resetID, Subject: user.ID, CodeHash: verification.HashCode(secret)}
	if err := p.codes.Save(ctx, challenge, p.cfg.ResetTTL); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}

	return p.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindPasswordReset,
		Destination: user.Email,
		Body:        fmt.Sprintf(resetBodyFormat, p.resetLink(resetID+"."+secret)),
	})
}

// ConfirmPasswordReset consumes token and sets newPassword on the account it
// was issued for. A token works once; any mismatch burns it.
func (p *Local) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	resetID, secret, ok := strings.Cut(token, ".")
	if !ok || resetID == "" || secret == "" {
		return Errorf(CodeInvalidActionCode, "malformed reset token")
	}
	if res := validation.ValidatePassword(newPassword); !res.Valid {
		return &Error{Code: CodeWeakPassword, Message: res.First()}
	}

	challenge, err := p.codes.Consume(ctx, resetID, secret, 1)
	switch {
	case errors.Is(err, verification.ErrNotFound),
		errors.Is(err, verification.ErrCodeMismatch),
		errors.Is(err, verification.ErrAttemptsExceeded):
		return Errorf(CodeInvalidActionCode, "reset link is invalid or has expired")
	case err != nil:
		return err
	}
	if challenge.Subject == "" {
		return Errorf(CodeInvalidActionCode, "reset link is invalid or has expired")
	}

	if _, err := p.ids.SetPassword(ctx, challenge.Subject, newPassword); err != nil {
		return p.identityError(ctx, err)
	}
	p.logger.InfoContext(ctx, "password reset completed", slog.String("user_id", challenge.Subject))
	return nil
}

func (p *Local) resetLink(token string) string {
	sep := "?"
	if strings.Contains(p.cfg.ResetLinkBase, "?") {
		sep = "&"
	}
	return p.cfg.ResetLinkBase + sep + "token=" + url.QueryEscape(token)
}

func (p *Local) ensureFederated(ctx context.Context, ident FederatedIdentity) (User, error) {
	user, err := p.ids.EnsureExternalUser(ctx, identity.External{
		Provider:      ident.Provider,
		Subject:       ident.ProviderUserID,
		Email:         ident.Email,
		EmailVerified: ident.EmailVerified,
		DisplayName:   ident.DisplayName,
	})
	if err != nil {
		return User{}, p.identityError(ctx, err)
	}
	return toUser(user), nil
}

func (p *Local) identityError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return Errorf(CodeUserNotFound, "there is no user record corresponding to this identifier")
	case errors.Is(err, identity.ErrInvalidPassword):
		return Errorf(CodeWrongPassword, "the password is invalid")
	case errors.Is(err, identity.ErrUserDisabled):
		return Errorf(CodeUserDisabled, "the user account has been disabled")
	case errors.Is(err, identity.ErrUserExists):
		return Errorf(CodeEmailAlreadyInUse, "the email address is already in use by another account")
	case errors.Is(err, identity.ErrCredentialMismatch):
		return Errorf(CodeAccountExistsWithDifferentCredential, "an account already exists with the same email address")
	default:
		p.logger.ErrorContext(ctx, "identity backend failure", slog.Any("error", err))
		return err
	}
}

func toUser(u identity.User) User {
	return User{
		ID:            u.ID,
		Email:         u.Email,
		PhoneNumber:   u.Phone,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		TokenVersion:  u.TokenVersion,
	}
}
