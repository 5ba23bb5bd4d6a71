package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyhub/authgateway/internal/config"
	"github.com/propertyhub/authgateway/internal/logging"
	"github.com/propertyhub/authgateway/internal/notification"
	"github.com/propertyhub/authgateway/internal/provider"
)

type stubFederated struct{}

func (stubFederated) Name() string { return "google.com" }

func (stubFederated) VerifyIDToken(context.Context, string, string) (provider.FederatedIdentity, error) {
	return provider.FederatedIdentity{
		Provider: "google.com", ProviderUserID: "sub-1", Email: "grace@example.com", EmailVerified: true, DisplayName: "Grace",
	}, nil
}

func (stubFederated) RedirectURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (s stubFederated) ExchangeCode(ctx context.Context, _ string) (provider.FederatedIdentity, error) {
	return s.VerifyIDToken(ctx, "", "")
}

// syncBuffer collects log output written while requests are served.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:               "development",
		IdempotencyTTL:       time.Minute,
		SignInMaxAttempts:    5,
		SignUpMaxAttempts:    3,
		AttemptWindow:        15 * time.Minute,
		OTPTTL:               5 * time.Minute,
		FlowIdleTTL:          time.Hour,
		SubmitThrottlePerMin: 1000,
		JWTSecret:            "test-secret",
		SessionTTL:           time.Hour,
		ResetTTL:             time.Hour,
		ResetLinkBase:        "https://propertyhub.example/reset-password",
	}
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app, _ := newTestAppWithLogs(t)
	return app
}

func newTestAppWithLogs(t *testing.T) (*fiber.App, *syncBuffer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logs := &syncBuffer{}
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:        testConfig(),
		Logger:     slog.New(slog.NewJSONHandler(logs, nil)),
		Federated:  stubFederated{},
		Background: ctx,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, logs
}

func call(t *testing.T, app *fiber.App, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func expectStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Fatalf("expected status %d, got %d", want, got)
	}
}

// dig walks nested JSON objects and returns the value at keys.
func dig(t *testing.T, m map[string]any, keys ...string) any {
	t.Helper()
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("expected an object at %q in %v", k, m)
		}
		cur = obj[k]
	}
	return cur
}

func expectValue(t *testing.T, m map[string]any, want any, keys ...string) {
	t.Helper()
	if got := dig(t, m, keys...); got != want {
		t.Fatalf("%s: expected %v, got %v", strings.Join(keys, "."), want, got)
	}
}

func bearer(token string) []string {
	return []string{fiber.HeaderAuthorization, "Bearer " + token}
}

func createFlow(t *testing.T, app *fiber.App, kind, from string) string {
	t.Helper()
	status, body := call(t, app, fiber.MethodPost, "/api/v1/flows", map[string]string{"kind": kind, "from": from})
	expectStatus(t, status, fiber.StatusCreated)
	id, _ := body["flow_id"].(string)
	if id == "" {
		t.Fatalf("missing flow_id in %v", body)
	}
	return id
}

func setField(t *testing.T, app *fiber.App, id, field, value string) {
	t.Helper()
	status, _ := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/fields", map[string]string{"field": field, "value": value})
	expectStatus(t, status, fiber.StatusOK)
}

func setFlag(t *testing.T, app *fiber.App, id, flag string) {
	t.Helper()
	status, _ := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/fields", map[string]any{"flag": flag, "checked": true})
	expectStatus(t, status, fiber.StatusOK)
}

func signUp(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()
	id := createFlow(t, app, "signup", "")
	setField(t, app, id, "name", "Ada Lovelace")
	setField(t, app, id, "email", email)
	setField(t, app, id, "password", password)
	setField(t, app, id, "confirmPassword", password)
	setFlag(t, app, id, "agreeToTerms")
	setFlag(t, app, id, "agreeToPrivacy")
	status, body := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/email", nil)
	expectStatus(t, status, fiber.StatusOK)
	token, _ := dig(t, body, "session", "access_token").(string)
	if token == "" {
		t.Fatalf("sign-up did not issue a session: %v", body)
	}
	return token
}

func signIn(t *testing.T, app *fiber.App, email, password string) map[string]any {
	t.Helper()
	id := createFlow(t, app, "signin", "/saved")
	setField(t, app, id, "email", email)
	setField(t, app, id, "password", password)
	status, body := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/email", nil)
	expectStatus(t, status, fiber.StatusOK)
	return body
}

// resetTokenFromLogs extracts the token from the last reset link written by
// the development notifier.
func resetTokenFromLogs(t *testing.T, logs *syncBuffer) string {
	t.Helper()
	var link string
	sc := bufio.NewScanner(strings.NewReader(logs.String()))
	for sc.Scan() {
		var rec map[string]any
		if json.Unmarshal(sc.Bytes(), &rec) != nil || rec["kind"] != notification.KindPasswordReset {
			continue
		}
		body, _ := rec["body"].(string)
		link = body[strings.LastIndex(body, " ")+1:]
	}
	if link == "" {
		t.Fatalf("no reset link logged")
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	if !strings.HasPrefix(link, "https://propertyhub.example/reset-password?") {
		t.Fatalf("unexpected reset link %q", link)
	}
	return u.Query().Get("token")
}

func TestHealthAndPing(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, fiber.MethodGet, "/healthz", nil)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "not_configured", "status", "postgres")
	expectValue(t, body, "not_configured", "status", "redis")

	status, body = call(t, app, fiber.MethodGet, "/api/v1/ping", nil)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "ok", "status")
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("missing request id: %v", body)
	}
}

func TestSignUpThenSignInOverHTTP(t *testing.T) {
	app := newTestApp(t)

	id := createFlow(t, app, "signup", "")
	setField(t, app, id, "name", "Ada Lovelace")
	setField(t, app, id, "email", "ada@example.com")
	setField(t, app, id, "password", "Passw0rd!")
	setField(t, app, id, "confirmPassword", "Passw0rd!")

	status, body := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/email", nil)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "You must agree to the Terms of Service", "state", "errors", "agreeToTerms")
	if body["session"] != nil {
		t.Fatalf("session issued for an invalid form")
	}

	setFlag(t, app, id, "agreeToTerms")
	setFlag(t, app, id, "agreeToPrivacy")
	status, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/email", nil)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "/dashboard", "outcome", "navigate")
	if body["session"] == nil {
		t.Fatalf("expected a session after sign-up")
	}

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/flows/"+id, nil)
	expectStatus(t, status, fiber.StatusNotFound)

	in := createFlow(t, app, "signin", "/saved")
	setField(t, app, in, "email", "ada@example.com")
	setField(t, app, in, "password", "Wrong0ne!")
	_, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+in+"/email", nil)
	expectValue(t, body, "Incorrect password", "state", "errors", "general")

	setField(t, app, in, "password", "Passw0rd!")
	_, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+in+"/email", nil)
	expectValue(t, body, "/saved", "outcome", "navigate")
	token := dig(t, body, "session", "access_token").(string)

	status, body = call(t, app, fiber.MethodGet, "/api/v1/me", nil, bearer(token)...)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "ada@example.com", "email")
	expectValue(t, body, "Ada Lovelace", "display_name")

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", nil)
	expectStatus(t, status, fiber.StatusUnauthorized)
}

func TestSignInIgnoresOffSiteOrigin(t *testing.T) {
	app := newTestApp(t)
	signUp(t, app, "ada@example.com", "Passw0rd!")

	for _, from := range []string{"https://evil.example/phish", "//evil.example", "/\\evil.example"} {
		id := createFlow(t, app, "signin", from)
		setField(t, app, id, "email", "ada@example.com")
		setField(t, app, id, "password", "Passw0rd!")
		_, body := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/email", nil)
		expectValue(t, body, "/", "outcome", "navigate")
	}
}

func TestFlowRequestErrors(t *testing.T) {
	app := newTestApp(t)

	status, _ := call(t, app, fiber.MethodPost, "/api/v1/flows", map[string]string{"kind": "admin"})
	expectStatus(t, status, fiber.StatusBadRequest)

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/flows/unknown", nil)
	expectStatus(t, status, fiber.StatusNotFound)

	id := createFlow(t, app, "signin", "")
	status, _ = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/fields", map[string]string{"field": "ssn", "value": "x"})
	expectStatus(t, status, fiber.StatusBadRequest)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/phone", nil)
	expectStatus(t, status, fiber.StatusConflict)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/method", map[string]string{"method": "fax"})
	expectStatus(t, status, fiber.StatusBadRequest)
}

func TestPhoneFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app, "signin", "")

	status, body := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/method", map[string]string{"method": "phone"})
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "phone", "method")

	setField(t, app, id, "phoneNumber", "(555) 123-4567")
	_, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/phone", nil)
	expectValue(t, body, "verification", "state", "step")
	expectValue(t, body, "+15551234567", "state", "code_sent_to")

	setField(t, app, id, "verificationCode", "12")
	_, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/phone", nil)
	expectValue(t, body, "Verification code must be 6 digits", "state", "errors", "verificationCode")

	status, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/phone/resend", nil)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, true, "resent")
	expectValue(t, body, "phone", "state", "step")
	expectValue(t, body, "(555) 123-4567", "state", "fields", "phoneNumber")
}

func TestFederatedOverHTTP(t *testing.T) {
	app := newTestApp(t)

	id := createFlow(t, app, "signup", "")
	_, body := call(t, app, fiber.MethodPost, "/api/v1/flows/"+id+"/federated", map[string]string{"id_token": "tok"})
	expectValue(t, body, "Please agree to the Terms of Service and Privacy Policy before continuing", "state", "errors", "general")

	in := createFlow(t, app, "signin", "/saved")
	_, body = call(t, app, fiber.MethodPost, "/api/v1/flows/"+in+"/federated", nil)
	expectValue(t, body, "https://accounts.example.com/o/oauth2/auth?state="+in, "outcome", "redirect")

	status, body := call(t, app, fiber.MethodGet, "/api/v1/auth/google/callback?state="+in+"&code=abc", nil)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "/saved", "outcome", "navigate")
	if body["session"] == nil {
		t.Fatalf("expected a session after the callback")
	}

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/auth/google/callback?error=access_denied", nil)
	expectStatus(t, status, fiber.StatusBadRequest)
}

func TestPasswordEndpoints(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/password/strength", map[string]string{"password": "Passw0rd!"})
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, true, "is_strong")
	if reqs, _ := body["requirements"].([]any); len(reqs) != 5 {
		t.Fatalf("expected 5 requirements, got %v", body["requirements"])
	}

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/password/reset", map[string]string{"email": "ada@example.com"})
	expectStatus(t, status, fiber.StatusBadRequest)

	status, body = call(t, app, fiber.MethodPost, "/api/v1/password/reset", map[string]string{"email": "ada@example.com"}, "Idempotency-Key", "k1")
	expectStatus(t, status, fiber.StatusUnprocessableEntity)
	expectValue(t, body, "No account found with this email address", "message")

	status, body = call(t, app, fiber.MethodPost, "/api/v1/password/reset", map[string]string{"email": "bad"}, "Idempotency-Key", "k2")
	expectStatus(t, status, fiber.StatusUnprocessableEntity)
	expectValue(t, body, "Please enter a valid email address", "message")
}

func TestPasswordResetRoundTrip(t *testing.T) {
	app, logs := newTestAppWithLogs(t)
	oldSession := signUp(t, app, "ada@example.com", "Passw0rd!")

	status, body := call(t, app, fiber.MethodPost, "/api/v1/password/reset", map[string]string{"email": "ada@example.com"}, "Idempotency-Key", "reset-1")
	expectStatus(t, status, fiber.StatusAccepted)
	expectValue(t, body, "Password reset email sent! Check your inbox.", "message")
	token := resetTokenFromLogs(t, logs)

	status, body = call(t, app, fiber.MethodPost, "/api/v1/password/reset/confirm", map[string]string{
		"token": token, "password": "N3wPassw0rd!", "confirm_password": "different",
	})
	expectStatus(t, status, fiber.StatusUnprocessableEntity)
	expectValue(t, body, "Passwords do not match", "errors", "confirmPassword")

	status, body = call(t, app, fiber.MethodPost, "/api/v1/password/reset/confirm", map[string]string{
		"token": token, "password": "N3wPassw0rd!", "confirm_password": "N3wPassw0rd!",
	})
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, true, "ok")

	status, body = call(t, app, fiber.MethodPost, "/api/v1/password/reset/confirm", map[string]string{
		"token": token, "password": "An0therPass!", "confirm_password": "An0therPass!",
	})
	expectStatus(t, status, fiber.StatusUnprocessableEntity)
	expectValue(t, body, "This password reset link is invalid or has expired", "message")

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", nil, bearer(oldSession)...)
	expectStatus(t, status, fiber.StatusUnauthorized)

	body = signIn(t, app, "ada@example.com", "Passw0rd!")
	expectValue(t, body, "Incorrect password", "state", "errors", "general")
	body = signIn(t, app, "ada@example.com", "N3wPassw0rd!")
	expectValue(t, body, "/saved", "outcome", "navigate")
}

func TestLogoutRevokesSession(t *testing.T) {
	app := newTestApp(t)
	token := signUp(t, app, "ada@example.com", "Passw0rd!")

	status, _ := call(t, app, fiber.MethodPost, "/api/v1/logout", nil)
	expectStatus(t, status, fiber.StatusUnauthorized)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/logout", nil, bearer(token)...)
	expectStatus(t, status, fiber.StatusNoContent)

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", nil, bearer(token)...)
	expectStatus(t, status, fiber.StatusUnauthorized)

	fresh := dig(t, signIn(t, app, "ada@example.com", "Passw0rd!"), "session", "access_token").(string)
	status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", nil, bearer(fresh)...)
	expectStatus(t, status, fiber.StatusOK)
}

func TestUpdateProfile(t *testing.T) {
	app := newTestApp(t)
	token := signUp(t, app, "ada@example.com", "Passw0rd!")

	status, _ := call(t, app, fiber.MethodPatch, "/api/v1/me", map[string]any{"display_name": "Ada"})
	expectStatus(t, status, fiber.StatusUnauthorized)

	status, body := call(t, app, fiber.MethodPatch, "/api/v1/me", map[string]any{"display_name": "Ada 2"}, bearer(token)...)
	expectStatus(t, status, fiber.StatusUnprocessableEntity)
	expectValue(t, body, "Name can only contain letters and spaces", "errors", "name")

	status, body = call(t, app, fiber.MethodPatch, "/api/v1/me", map[string]any{
		"display_name": "  Ada King  ",
		"preferences":  map[string]bool{"marketing": true},
	}, bearer(token)...)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "Ada King", "display_name")
	expectValue(t, body, true, "preferences", "marketing")
	expectValue(t, body, true, "preferences", "notifications")

	status, body = call(t, app, fiber.MethodPatch, "/api/v1/me", map[string]any{
		"preferences": map[string]bool{"notifications": false},
	}, bearer(token)...)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "Ada King", "display_name")
	expectValue(t, body, false, "preferences", "notifications")
	expectValue(t, body, true, "preferences", "marketing")

	status, body = call(t, app, fiber.MethodGet, "/api/v1/me", nil, bearer(token)...)
	expectStatus(t, status, fiber.StatusOK)
	expectValue(t, body, "Ada King", "display_name")
}

func TestSetupRequiresBackendsOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	if err == nil || !strings.Contains(err.Error(), "database is required") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}
