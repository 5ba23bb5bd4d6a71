// Package auth issues and verifies the session tokens handed out after a
// flow completes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/propertyhub/authgateway/internal/identity"
	"github.com/propertyhub/authgateway/internal/provider"
)

const issuer = "propertyhub-auth"

var (
	ErrInvalidToken = errors.New("invalid session token")
	// ErrTokenRevoked is returned for tokens issued before the last logout
	// or password change.
	ErrTokenRevoked = errors.New("session token revoked")
)

// Claims are carried by a session token.
type Claims struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	RememberMe bool   `json:"rem,omitempty"`
	Version    int    `json:"ver"`
	jwt.RegisteredClaims
}

// Session is returned to the client alongside a navigation outcome.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type Service struct {
	secret []byte
	ttl    time.Duration
	users  identity.Repository
	now    func() time.Time
}

// NewService builds the session service. users is consulted for the current
// token version of each subject.
func NewService(secret string, ttl time.Duration, users identity.Repository) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, users: users, now: time.Now}
}

// Issue signs an HS256 session token for user.
func (s *Service) Issue(user provider.User, rememberMe bool) (Session, error) {
	now := s.now()
	claims := Claims{
		Email:      user.Email,
		Phone:      user.PhoneNumber,
		RememberMe: rememberMe,
		Version:    user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Authenticate verifies token and checks that its version still matches the
// stored one for the subject.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	}
	if user.Disabled || user.TokenVersion != claims.Version {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.users.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
