package flow

import (
	"context"
	"sync"
	"time"

	"github.com/propertyhub/authgateway/internal/provider"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	signIn     func(email, password string, remember bool) (provider.User, error)
	signUp     func(email, password, name string) (provider.User, error)
	popup      func(cred provider.FederatedCredential) (provider.User, error)
	redirect   func(state string) (string, error)
	sendCode   func(phone string) (provider.ConfirmationHandle, error)
	confirm    func(h provider.ConfirmationHandle, code string) (provider.User, error)
	reset      func(email string) error
	completeFn func(code string) (provider.User, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: make(map[string]int)}
}

func (p *fakeProvider) record(name string) {
	p.mu.Lock()
	p.calls[name]++
	p.mu.Unlock()
}

func (p *fakeProvider) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

var testUser = provider.User{ID: "user-1", Email: "ada@example.com"}

func (p *fakeProvider) SignInWithEmail(_ context.Context, email, password string, remember bool) (provider.User, error) {
	p.record("signIn")
	if p.signIn != nil {
		return p.signIn(email, password, remember)
	}
	return testUser, nil
}

func (p *fakeProvider) SignUpWithEmail(_ context.Context, email, password, name string) (provider.User, error) {
	p.record("signUp")
	if p.signUp != nil {
		return p.signUp(email, password, name)
	}
	return testUser, nil
}

func (p *fakeProvider) SignInWithFederatedPopup(_ context.Context, cred provider.FederatedCredential) (provider.User, error) {
	p.record("popup")
	if p.popup != nil {
		return p.popup(cred)
	}
	return testUser, nil
}

func (p *fakeProvider) SignInWithFederatedRedirect(_ context.Context, state string) (string, error) {
	p.record("redirect")
	if p.redirect != nil {
		return p.redirect(state)
	}
	return "https://accounts.example.com/auth?state=" + state, nil
}

func (p *fakeProvider) SendPhoneVerification(_ context.Context, phone string) (provider.ConfirmationHandle, error) {
	p.record("sendCode")
	if p.sendCode != nil {
		return p.sendCode(phone)
	}
	return provider.ConfirmationHandle{
		VerificationID: "v-1",
		PhoneNumber:    phone,
		ExpiresAt:      time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC),
	}, nil
}

func (p *fakeProvider) ConfirmPhoneCode(_ context.Context, h provider.ConfirmationHandle, code string) (provider.User, error) {
	p.record("confirm")
	if p.confirm != nil {
		return p.confirm(h, code)
	}
	return testUser, nil
}

func (p *fakeProvider) ResetPassword(_ context.Context, email string) error {
	p.record("reset")
	if p.reset != nil {
		return p.reset(email)
	}
	return nil
}

func (p *fakeProvider) CompleteFederatedRedirect(_ context.Context, code string) (provider.User, error) {
	p.record("complete")
	if p.completeFn != nil {
		return p.completeFn(code)
	}
	return testUser, nil
}
