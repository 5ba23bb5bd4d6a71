package provider

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/propertyhub/authgateway/internal/identity"
	"github.com/propertyhub/authgateway/internal/logging"
	"github.com/propertyhub/authgateway/internal/notification"
	"github.com/propertyhub/authgateway/internal/ratelimit"
	"github.com/propertyhub/authgateway/internal/verification"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *captureNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return nil
}

func (n *captureNotifier) last(t *testing.T) notification.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

type stubFederated struct {
	ident FederatedIdentity
	err   error
	nonce string
}

func (s stubFederated) Name() string { return "google.com" }

func (s stubFederated) VerifyIDToken(_ context.Context, _, nonce string) (FederatedIdentity, error) {
	if nonce != s.nonce {
		return FederatedIdentity{}, errors.New("nonce mismatch")
	}
	return s.ident, s.err
}

func (s stubFederated) RedirectURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (s stubFederated) ExchangeCode(context.Context, string) (FederatedIdentity, error) {
	return s.ident, s.err
}

type localFixture struct {
	provider *Local
	notifier *captureNotifier
	ids      *identity.Service
}

func newLocalFixture(t *testing.T, fed Federated, cfg LocalConfig) localFixture {
	t.Helper()
	ids := identity.NewService(identity.NewMemoryRepository()).WithHashCost(bcrypt.MinCost)
	n := &captureNotifier{}
	p := NewLocal(ids, verification.NewMemoryStore(), n, fed, cfg, logging.Discard())
	return localFixture{provider: p, notifier: n, ids: ids}
}

func sentCode(t *testing.T, m notification.Message) string {
	t.Helper()
	idx := strings.LastIndex(m.Body, " ")
	require.GreaterOrEqual(t, idx, 0)
	return m.Body[idx+1:]
}

func sentResetToken(t *testing.T, m notification.Message) string {
	t.Helper()
	link, err := url.Parse(sentCode(t, m))
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestLocalEmailSignUpAndSignIn(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{})
	ctx := context.Background()

	created, err := fx.provider.SignUpWithEmail(ctx, "ada@example.com", "Passw0rd!", "Ada Lovelace")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ada Lovelace", created.DisplayName)

	_, err = fx.provider.SignUpWithEmail(ctx, "ada@example.com", "Passw0rd!", "Ada")
	assert.True(t, Is(err, CodeEmailAlreadyInUse), "got %v", err)

	user, err := fx.provider.SignInWithEmail(ctx, "ada@example.com", "Passw0rd!", true)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = fx.provider.SignInWithEmail(ctx, "ada@example.com", "Wrong0ne!", false)
	assert.True(t, Is(err, CodeWrongPassword), "got %v", err)

	_, err = fx.provider.SignInWithEmail(ctx, "nobody@example.com", "Passw0rd!", false)
	assert.True(t, Is(err, CodeUserNotFound), "got %v", err)

	_, err = fx.provider.SignInWithEmail(ctx, "nope", "Passw0rd!", false)
	assert.True(t, Is(err, CodeInvalidEmail), "got %v", err)
}

func TestLocalSignUpPolicy(t *testing.T) {
	ctx := context.Background()

	fx := newLocalFixture(t, nil, LocalConfig{})
	_, err := fx.provider.SignUpWithEmail(ctx, "ada@example.com", "password", "Ada")
	require.True(t, Is(err, CodeWeakPassword), "got %v", err)
	code, msg := CodeOf(err)
	assert.Equal(t, CodeWeakPassword, code)
	assert.Equal(t, "Password must contain at least one uppercase letter", msg)

	disabled := newLocalFixture(t, nil, LocalConfig{DisableSignUp: true})
	_, err = disabled.provider.SignUpWithEmail(ctx, "ada@example.com", "Passw0rd!", "Ada")
	assert.True(t, Is(err, CodeOperationNotAllowed), "got %v", err)
}

func TestLocalThrottle(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{Throttle: ratelimit.New(2, time.Hour)})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := fx.provider.SignInWithEmail(ctx, "ada@example.com", "Passw0rd!", false)
		require.True(t, Is(err, CodeUserNotFound), "got %v", err)
	}
	_, err := fx.provider.SignInWithEmail(ctx, "ada@example.com", "Passw0rd!", false)
	assert.True(t, Is(err, CodeTooManyRequests), "got %v", err)
}

func TestLocalPhoneVerification(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{MaxCodeAttempts: 2})
	ctx := context.Background()

	_, err := fx.provider.SendPhoneVerification(ctx, "12")
	require.True(t, Is(err, CodeInvalidPhoneNumber), "got %v", err)

	handle, err := fx.provider.SendPhoneVerification(ctx, "(555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", handle.PhoneNumber)
	assert.NotEmpty(t, handle.VerificationID)
	assert.True(t, handle.ExpiresAt.After(time.Now()))

	msg := fx.notifier.last(t)
	assert.Equal(t, notification.KindVerificationCode, msg.Kind)
	assert.Equal(t, "+15551234567", msg.Destination)
	code := sentCode(t, msg)
	require.Len(t, code, verification.CodeLength)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = fx.provider.ConfirmPhoneCode(ctx, handle, wrong)
	assert.True(t, Is(err, CodeInvalidVerificationCode), "got %v", err)

	user, err := fx.provider.ConfirmPhoneCode(ctx, handle, code)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", user.PhoneNumber)

	_, err = fx.provider.ConfirmPhoneCode(ctx, handle, code)
	assert.True(t, Is(err, CodeInvalidVerificationCode), "consumed challenge cannot be reused: %v", err)
}

func TestLocalPhoneVerificationAttemptsExceeded(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{MaxCodeAttempts: 1})
	ctx := context.Background()

	handle, err := fx.provider.SendPhoneVerification(ctx, "+442079460000")
	require.NoError(t, err)
	code := sentCode(t, fx.notifier.last(t))
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err = fx.provider.ConfirmPhoneCode(ctx, handle, wrong)
	require.Error(t, err)
	_, err = fx.provider.ConfirmPhoneCode(ctx, handle, code)
	assert.Error(t, err)
}

func TestLocalUnknownHandle(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{})
	_, err := fx.provider.ConfirmPhoneCode(context.Background(), ConfirmationHandle{VerificationID: "nope"}, "123456")
	assert.True(t, Is(err, CodeInvalidVerificationCode), "got %v", err)
}

func TestLocalFederated(t *testing.T) {
	ctx := context.Background()

	none := newLocalFixture(t, nil, LocalConfig{})
	_, err := none.provider.SignInWithFederatedPopup(ctx, FederatedCredential{IDToken: "tok"})
	assert.True(t, Is(err, CodeOperationNotAllowed), "got %v", err)
	_, err = none.provider.SignInWithFederatedRedirect(ctx, "state")
	assert.True(t, Is(err, CodeOperationNotAllowed), "got %v", err)

	fed := stubFederated{ident: FederatedIdentity{
		Provider:       "google.com",
		ProviderUserID: "sub-1",
		Email:          "grace@example.com",
		EmailVerified:  true,
		DisplayName:    "Grace Hopper",
	}}
	fx := newLocalFixture(t, fed, LocalConfig{})

	_, err = fx.provider.SignInWithFederatedPopup(ctx, FederatedCredential{})
	assert.True(t, Is(err, CodePopupBlocked), "got %v", err)

	first, err := fx.provider.SignInWithFederatedPopup(ctx, FederatedCredential{IDToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", first.Email)
	assert.True(t, first.EmailVerified)

	again, err := fx.provider.CompleteFederatedRedirect(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	url, err := fx.provider.SignInWithFederatedRedirect(ctx, "flow-1")
	require.NoError(t, err)
	assert.Contains(t, url, "state=flow-1")

	clash := newLocalFixture(t, stubFederated{ident: FederatedIdentity{Provider: "google.com", ProviderUserID: "sub-2", Email: "alan@example.com"}}, LocalConfig{})
	_, err = clash.ids.Register(ctx, "alan@example.com", "Passw0rd!", "Alan")
	require.NoError(t, err)
	_, err = clash.provider.SignInWithFederatedPopup(ctx, FederatedCredential{IDToken: "tok"})
	assert.True(t, Is(err, CodeAccountExistsWithDifferentCredential), "got %v", err)

	nonced := newLocalFixture(t, stubFederated{ident: fed.ident, nonce: "n-1"}, LocalConfig{})
	_, err = nonced.provider.SignInWithFederatedPopup(ctx, FederatedCredential{IDToken: "tok", Nonce: "n-2"})
	assert.EqualError(t, err, "nonce mismatch")
	_, err = nonced.provider.SignInWithFederatedPopup(ctx, FederatedCredential{IDToken: "tok", Nonce: "n-1"})
	require.NoError(t, err)

	failing := newLocalFixture(t, stubFederated{err: Errorf(CodePopupClosedByUser, "closed")}, LocalConfig{})
	_, err = failing.provider.SignInWithFederatedPopup(ctx, FederatedCredential{IDToken: "tok"})
	assert.True(t, Is(err, CodePopupClosedByUser), "got %v", err)
}

func TestLocalResetPassword(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{ResetLinkBase: "https://app.example.com/reset"})
	ctx := context.Background()

	err := fx.provider.ResetPassword(ctx, "ada@example.com")
	assert.True(t, Is(err, CodeUserNotFound), "got %v", err)

	_, err = fx.provider.SignUpWithEmail(ctx, "ada@example.com", "Passw0rd!", "Ada")
	require.NoError(t, err)
	require.NoError(t, fx.provider.ResetPassword(ctx, "ada@example.com"))

	msg := fx.notifier.last(t)
	assert.Equal(t, notification.KindPasswordReset, msg.Kind)
	assert.Equal(t, "ada@example.com", msg.Destination)
	assert.Contains(t, msg.Body, "https://app.example.com/reset?token=")
	token := sentResetToken(t, msg)

	err = fx.provider.ConfirmPasswordReset(ctx, token, "weak")
	assert.True(t, Is(err, CodeWeakPassword), "got %v", err)

	require.NoError(t, fx.provider.ConfirmPasswordReset(ctx, token, "N3wPassw0rd!"))

	_, err = fx.provider.SignInWithEmail(ctx, "ada@example.com", "Passw0rd!", false)
	assert.True(t, Is(err, CodeWrongPassword), "got %v", err)
	user, err := fx.provider.SignInWithEmail(ctx, "ada@example.com", "N3wPassw0rd!", false)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TokenVersion)

	err = fx.provider.ConfirmPasswordReset(ctx, token, "An0therPass!")
	assert.True(t, Is(err, CodeInvalidActionCode), "token is single use: %v", err)
}

func TestLocalConfirmPasswordResetRejectsBadTokens(t *testing.T) {
	fx := newLocalFixture(t, nil, LocalConfig{})
	ctx := context.Background()

	_, err := fx.provider.SignUpWithEmail(ctx, "ada@example.com", "Passw0rd!", "Ada")
	require.NoError(t, err)
	require.NoError(t, fx.provider.ResetPassword(ctx, "ada@example.com"))
	token := sentResetToken(t, fx.notifier.last(t))
	resetID, _, _ := strings.Cut(token, ".")

	for _, bad := range []string{"", "no-separator", resetID + ".", "." + token, "unknown.secret"} {
		err := fx.provider.ConfirmPasswordReset(ctx, bad, "N3wPassw0rd!")
		assert.True(t, Is(err, CodeInvalidActionCode), "%q: got %v", bad, err)
	}

	err = fx.provider.ConfirmPasswordReset(ctx, resetID+".wrong-secret", "N3wPassw0rd!")
	assert.True(t, Is(err, CodeInvalidActionCode), "got %v", err)
	err = fx.provider.ConfirmPasswordReset(ctx, token, "N3wPassw0rd!")
	assert.True(t, Is(err, CodeInvalidActionCode), "a wrong guess burns the token: %v", err)
}

func TestLocalResetTokenExpires(t *testing.T) {
	now := time.Now()
	ids := identity.NewService(identity.NewMemoryRepository()).WithHashCost(bcrypt.MinCost)
	n := &captureNotifier{}
	codes := verification.NewMemoryStore().WithClock(func() time.Time { return now })
	p := NewLocal(ids, codes, n, nil, LocalConfig{ResetTTL: 10 * time.Minute}, logging.Discard())
	ctx := context.Background()

	_, err := p.SignUpWithEmail(ctx, "ada@example.com", "Passw0rd!", "Ada")
	require.NoError(t, err)
	require.NoError(t, p.ResetPassword(ctx, "ada@example.com"))
	token := sentResetToken(t, n.last(t))

	now = now.Add(10 * time.Minute)
	err = p.ConfirmPasswordReset(ctx, token, "N3wPassw0rd!")
	assert.True(t, Is(err, CodeInvalidActionCode), "got %v", err)
}

func TestCodeOfAndParseCode(t *testing.T) {
	code, msg := CodeOf(errors.New("plain"))
	assert.Equal(t, CodeUnknown, code)
	assert.Equal(t, "plain", msg)

	wrapped := errors.Join(errors.New("ctx"), Errorf(CodeUserDisabled, "off"))
	code, msg = CodeOf(wrapped)
	assert.Equal(t, CodeUserDisabled, code)
	assert.Equal(t, "off", msg)

	assert.Equal(t, CodeWrongPassword, ParseCode("auth/wrong-password"))
	assert.Equal(t, CodeUnknown, ParseCode("auth/made-up"))
	assert.Equal(t, "auth/unknown", Code(999).String())
	assert.Equal(t, "auth/invalid-email", (&Error{Code: CodeInvalidEmail}).Error())
}
