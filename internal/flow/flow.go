// Package flow drives the sign-in and sign-up forms: field state, per-field
// errors, the email/phone method switch, the two-step phone verification,
// client-side attempt limiting and federated sign-in with redirect fallback.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/propertyhub/authgateway/internal/provider"
	"github.com/propertyhub/authgateway/internal/ratelimit"
	"github.com/propertyhub/authgateway/internal/validation"
)

const (
	defaultSignInDestination = "/"
	signUpDestination        = "/dashboard"
)

// Option customises a Flow.
type Option func(*Flow)

// WithDestination sets the path a successful sign-in navigates to. Only
// in-app paths are accepted; anything else keeps the default.
func WithDestination(from string) Option {
	return func(f *Flow) {
		if isLocalPath(from) {
			f.from = from
		}
	}
}

// isLocalPath reports whether p is an absolute path on this site, with no
// scheme, host or protocol-relative prefix.
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}
	if strings.ContainsAny(p, "\\\r\n\t") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithID fixes the flow identifier instead of generating one.
func WithID(id string) Option {
	return func(f *Flow) {
		if id != "" {
			f.id = id
		}
	}
}

// Flow is one form session. All operations are serialised; a provider call
// in progress blocks other operations on the same flow.
type Flow struct {
	mu sync.Mutex

	id      string
	kind    Kind
	from    string
	method  Method
	step    PhoneStep
	fields  map[string]string
	flags   map[string]bool
	errors  map[string]string
	idp     provider.Provider
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// New creates a flow in its initial state: email method, empty fields,
// no errors and the phone step awaiting a number.
func New(kind Kind, idp provider.Provider, limiter *ratelimit.Limiter, opts ...Option) *Flow {
	f := &Flow{
		id:      uuid.NewString(),
		kind:    kind,
		from:    defaultSignInDestination,
		method:  MethodEmail,
		step:    AwaitingNumber{},
		fields:  make(map[string]string),
		flags:   make(map[string]bool),
		errors:  make(map[string]string),
		idp:     idp,
		limiter: limiter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.limiter == nil {
		f.limiter = ratelimit.New(0, 0)
	}
	f.logger = f.logger.With(slog.String("flow_id", f.id), slog.String("kind", string(kind)))
	return f
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.id }

// Kind returns whether this is a sign-in or sign-up flow.
func (f *Flow) Kind() Kind { return f.kind }

// SetField stores a sanitized value and clears any error shown for it.
func (f *Flow) SetField(name, value string) error {
	if !textFields[name] {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fields[name] = validation.Sanitize(value)
	delete(f.errors, name)
	return nil
}

// SetFlag stores a checkbox value and clears any error shown for it.
func (f *Flow) SetFlag(name string, value bool) error {
	if !flagFields[name] {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flags[name] = value
	delete(f.errors, name)
	return nil
}

// SetMethod switches between email and phone. The phone step returns to
// AwaitingNumber and the entered code is dropped; shared fields are kept.
func (f *Flow) SetMethod(m Method) error {
	if m != MethodEmail && m != MethodPhone {
		return ErrUnknownMethod
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.method = m
	f.step = AwaitingNumber{}
	delete(f.fields, FieldVerificationCode)
	f.errors = make(map[string]string)
	return nil
}

// SubmitEmail validates the email form and, if valid and within the attempt
// limit, calls the provider. Errors end up in the flow state; the returned
// error is reserved for misuse.
func (f *Flow) SubmitEmail(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.method != MethodEmail {
		return Outcome{}, ErrWrongMethod
	}
	if !f.validateEmailForm() {
		return Outcome{}, nil
	}

	email := f.fields[FieldEmail]
	if !f.limiter.Allow(email) {
		f.errors = map[string]string{
			FieldGeneral: tooManyAttempts(ratelimit.RetryMinutes(f.limiter.RemainingTime(email))),
		}
		f.logger.WarnContext(ctx, "attempt limit reached", slog.String("method", string(MethodEmail)))
		return Outcome{}, nil
	}
	f.errors = make(map[string]string)

	var (
		user  provider.User
		err   error
		table messageTable
		dest  string
	)
	if f.kind == KindSignIn {
		table, dest = signInEmailMessages, f.from
		err = guard(func() error {
			var e error
			user, e = f.idp.SignInWithEmail(ctx, email, f.fields[FieldPassword], f.flags[FlagRememberMe])
			return e
		})
	} else {
		table, dest = signUpEmailMessages, signUpDestination
		err = guard(func() error {
			var e error
			user, e = f.idp.SignUpWithEmail(ctx, email, f.fields[FieldPassword], f.fields[FieldName])
			return e
		})
	}
	if err != nil {
		f.fail(ctx, "email submit failed", table, err)
		return Outcome{}, nil
	}

	f.logger.InfoContext(ctx, "email authentication succeeded", slog.String("user_id", user.ID))
	return Outcome{Navigate: dest, User: &user}, nil
}

// SubmitPhone either requests a code (AwaitingNumber) or confirms one
// (AwaitingCode).
func (f *Flow) SubmitPhone(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.method != MethodPhone {
		return Outcome{}, ErrWrongMethod
	}

	switch step := f.step.(type) {
	case AwaitingCode:
		return f.confirmCode(ctx, step.Handle), nil
	default:
		f.sendCode(ctx)
		return Outcome{}, nil
	}
}

func (f *Flow) sendCode(ctx context.Context) {
	if !f.validatePhoneForm() {
		return
	}
	phone := f.fields[FieldPhoneNumber]
	if !f.limiter.Allow(phone) {
		f.errors = map[string]string{
			FieldGeneral: tooManyAttempts(ratelimit.RetryMinutes(f.limiter.RemainingTime(phone))),
		}
		f.logger.WarnContext(ctx, "attempt limit reached", slog.String("method", string(MethodPhone)))
		return
	}
	f.errors = make(map[string]string)

	var handle provider.ConfirmationHandle
	err := guard(func() error {
		var e error
		handle, e = f.idp.SendPhoneVerification(ctx, phone)
		return e
	})
	if err != nil {
		f.fail(ctx, "send verification failed", phoneMessages, err)
		return
	}
	f.step = AwaitingCode{Handle: handle}
}

func (f *Flow) confirmCode(ctx context.Context, handle provider.ConfirmationHandle) Outcome {
	code := f.fields[FieldVerificationCode]
	if res := validation.ValidateVerificationCode(code); !res.Valid {
		f.errors = map[string]string{FieldVerificationCode: res.First()}
		return Outcome{}
	}
	f.errors = make(map[string]string)

	var user provider.User
	err := guard(func() error {
		var e error
		user, e = f.idp.ConfirmPhoneCode(ctx, handle, code)
		return e
	})
	if err != nil {
		f.fail(ctx, "confirm verification failed", phoneMessages, err)
		return Outcome{}
	}

	f.logger.InfoContext(ctx, "phone authentication succeeded", slog.String("user_id", user.ID))
	return Outcome{Navigate: f.destination(), User: &user}
}

// ResendCode drops the outstanding handle and the entered code, returning to
// AwaitingNumber with the phone number intact. It reports whether anything
// changed.
func (f *Flow) ResendCode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.step.(AwaitingCode); !ok {
		return false
	}
	f.step = AwaitingNumber{}
	delete(f.fields, FieldVerificationCode)
	delete(f.errors, FieldVerificationCode)
	return true
}

// SignInWithFederated tries the popup credential first and falls back to a
// single redirect attempt when the popup was blocked. Sign-up requires both
// agreements before the provider is contacted.
func (f *Flow) SignInWithFederated(ctx context.Context, cred provider.FederatedCredential) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.kind == KindSignUp && !(f.flags[FlagAgreeToTerms] && f.flags[FlagAgreeToPrivacy]) {
		f.errors = map[string]string{FieldGeneral: msgAgreeBeforeGoing}
		return Outcome{}, nil
	}
	f.errors = make(map[string]string)

	table, downMsg := federatedSignInMessages, msgGoogleSignInDown
	if f.kind == KindSignUp {
		table, downMsg = federatedSignUpMessages, msgGoogleSignUpDown
	}

	var user provider.User
	err := guard(func() error {
		var e error
		user, e = f.idp.SignInWithFederatedPopup(ctx, cred)
		return e
	})
	if err == nil {
		f.logger.InfoContext(ctx, "federated authentication succeeded", slog.String("user_id", user.ID))
		return Outcome{Navigate: f.destination(), User: &user}, nil
	}

	if !provider.Is(err, provider.CodePopupBlocked) {
		f.fail(ctx, "federated popup failed", table, err)
		return Outcome{}, nil
	}

	var url string
	err = guard(func() error {
		var e error
		url, e = f.idp.SignInWithFederatedRedirect(ctx, f.id)
		return e
	})
	if err != nil {
		f.logger.WarnContext(ctx, "federated redirect failed", slog.Any("error", err))
		f.errors = map[string]string{FieldGeneral: downMsg}
		return Outcome{}, nil
	}
	return Outcome{Redirect: url}, nil
}

// State returns a copy of the observable form state.
func (f *Flow) State() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *Flow) destination() string {
	if f.kind == KindSignUp {
		return signUpDestination
	}
	return f.from
}

func (f *Flow) fail(ctx context.Context, msg string, table messageTable, err error) {
	code, _ := provider.CodeOf(err)
	f.logger.WarnContext(ctx, msg, slog.String("code", code.String()), slog.Any("error", err))
	f.errors = map[string]string{FieldGeneral: table.translate(err)}
}

// validateEmailForm replaces the error map with the current validation
// failures and reports whether there were none.
func (f *Flow) validateEmailForm() bool {
	errs := make(map[string]string)
	check := func(field string, res validation.Result) {
		if !res.Valid {
			errs[field] = res.First()
		}
	}

	check(FieldEmail, validation.ValidateEmail(f.fields[FieldEmail]))
	check(FieldPassword, validation.ValidatePassword(f.fields[FieldPassword]))
	if f.kind == KindSignUp {
		check(FieldName, validation.ValidateName(f.fields[FieldName]))
		check(FieldConfirmPassword, validation.ValidateConfirmPassword(f.fields[FieldPassword], f.fields[FieldConfirmPassword]))
		f.checkAgreements(errs)
	}

	f.errors = errs
	return len(errs) == 0
}

func (f *Flow) validatePhoneForm() bool {
	errs := make(map[string]string)
	if res := validation.ValidatePhoneNumber(f.fields[FieldPhoneNumber]); !res.Valid {
		errs[FieldPhoneNumber] = res.First()
	}
	if f.kind == KindSignUp {
		if res := validation.ValidateName(f.fields[FieldName]); !res.Valid {
			errs[FieldName] = res.First()
		}
		f.checkAgreements(errs)
	}

	f.errors = errs
	return len(errs) == 0
}

func (f *Flow) checkAgreements(errs map[string]string) {
	if !f.flags[FlagAgreeToTerms] {
		errs[FlagAgreeToTerms] = msgTermsRequired
	}
	if !f.flags[FlagAgreeToPrivacy] {
		errs[FlagAgreeToPrivacy] = msgPrivacyRequired
	}
}

// guard runs fn and converts a panic into an error so that a misbehaving
// provider surfaces as a general error instead of tearing down the caller.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return fn()
}

// RedirectCompleter finishes a federated redirect with the authorization
// code returned to the callback.
type RedirectCompleter interface {
	CompleteFederatedRedirect(ctx context.Context, code string) (provider.User, error)
}

// CompleteRedirect finishes the redirect fallback started by
// SignInWithFederated.
func (f *Flow) CompleteRedirect(ctx context.Context, rc RedirectCompleter, code string) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := federatedSignInMessages
	if f.kind == KindSignUp {
		table = federatedSignUpMessages
	}

	var user provider.User
	err := guard(func() error {
		var e error
		user, e = rc.CompleteFederatedRedirect(ctx, code)
		return e
	})
	if err != nil {
		f.fail(ctx, "federated redirect completion failed", table, err)
		return Outcome{}
	}
	f.errors = make(map[string]string)
	f.logger.InfoContext(ctx, "federated authentication succeeded", slog.String("user_id", user.ID))
	return Outcome{Navigate: f.destination(), User: &user}
}
