// Package google verifies Google sign-in credentials over OpenID Connect.
package google

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/propertyhub/authgateway/internal/provider"
)

const (
	providerName = "google"
	issuerURL    = "https://accounts.google.com"
)

// Provider implements provider.Federated for Google accounts.
type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	logger      *slog.Logger
}

// New discovers Google's OIDC configuration and builds a provider.
func New(ctx context.Context, clientID, clientSecret, redirectURL string, logger *slog.Logger) (*Provider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("init google oidc provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	return NewWithVerifier(oauthCfg, oidcProvider.Verifier(&oidc.Config{ClientID: clientID}), logger), nil
}

// NewWithVerifier builds a provider from an existing OAuth config and verifier.
func NewWithVerifier(cfg *oauth2.Config, verifier *oidc.IDTokenVerifier, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{oauthConfig: cfg, verifier: verifier, logger: logger}
}

// Name returns the provider identifier stored on federated accounts.
func (p *Provider) Name() string {
	return providerName
}

// RedirectURL builds the authorization URL used when the popup is unavailable.
func (p *Provider) RedirectURL(state string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// VerifyIDToken validates a raw ID token and extracts the identity claims.
// A non-empty nonce must match the token's nonce claim.
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken, nonce string) (provider.FederatedIdentity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return provider.FederatedIdentity{}, fmt.Errorf("google id_token verification failed: %w", err)
	}
	if nonce != "" && subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return provider.FederatedIdentity{}, errors.New("google id_token nonce mismatch")
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return provider.FederatedIdentity{}, fmt.Errorf("google id_token claims parse failed: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return provider.FederatedIdentity{}, errors.New("google id_token missing required claims")
	}

	p.logger.InfoContext(ctx, "google oidc verified",
		slog.String("issuer", idToken.Issuer),
		slog.Bool("email_verified", claims.EmailVerified),
		slog.Int64("expiry_unix", idToken.Expiry.Unix()),
	)

	return provider.FederatedIdentity{
		Provider:       providerName,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    claims.Name,
	}, nil
}

// ExchangeCode trades an authorization code for tokens and verifies the ID token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (provider.FederatedIdentity, error) {
	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return provider.FederatedIdentity{}, fmt.Errorf("google token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return provider.FederatedIdentity{}, errors.New("google did not return id_token")
	}
	return p.VerifyIDToken(ctx, rawIDToken, "")
}
