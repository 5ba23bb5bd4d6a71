package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidPassword is returned when the password does not match the stored hash.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserDisabled is returned for accounts that may not sign in.
	ErrUserDisabled = errors.New("user disabled")
	// ErrCredentialMismatch is returned when a federated identity collides with
	// an account registered through another method.
	ErrCredentialMismatch = errors.New("account exists with different credential")
)

// Service manages user profiles and password credentials.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost returns a copy of the service using the given bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	cp := *s
	cp.cost = cost
	return &cp
}

// Register creates an email/password account and stores the hashed password.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (User, error) {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return User{}, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC()
	user := User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(email),
		DisplayName:  displayName,
		PasswordHash: hash,
		Provider:     ProviderPassword,
		Preferences:  defaultPreferences(),
		CreatedAt:    now,
		LastLoginAt:  now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies an email/password pair and records the login.
func (s *Service) Authenticate(ctx context.Context, email, password string, rememberMe bool) (User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if user.Disabled {
		return User{}, ErrUserDisabled
	}
	if len(user.PasswordHash) == 0 {
		return User{}, ErrCredentialMismatch
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidPassword
	}

	user.Preferences.RememberMe = rememberMe
	return s.touch(ctx, user)
}

// EnsurePhoneUser returns the profile bound to phone, creating it on first use.
func (s *Service) EnsurePhoneUser(ctx context.Context, phone string) (User, error) {
	user, err := s.repo.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		if user.Disabled {
			return User{}, ErrUserDisabled
		}
		return s.touch(ctx, user)
	case !errors.Is(err, ErrUserNotFound):
		return User{}, err
	}

	now := s.now().UTC()
	user = User{
		ID:          uuid.New().String(),
		Phone:       phone,
		Provider:    ProviderPhone,
		Preferences: defaultPreferences(),
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// EnsureExternalUser returns the profile for a federated identity, creating it
// on first sign-in. An existing account registered through another method
// with the same email is reported as ErrCredentialMismatch.
func (s *Service) EnsureExternalUser(ctx context.Context, ext External) (User, error) {
	user, err := s.repo.FindByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		if user.Provider != ext.Provider || user.ProviderUserID != ext.Subject {
			return User{}, ErrCredentialMismatch
		}
		if user.Disabled {
			return User{}, ErrUserDisabled
		}
		user.EmailVerified = ext.EmailVerified
		return s.touch(ctx, user)
	case !errors.Is(err, ErrUserNotFound):
		return User{}, err
	}

	now := s.now().UTC()
	user = User{
		ID:             uuid.New().String(),
		Email:          strings.ToLower(ext.Email),
		DisplayName:    ext.DisplayName,
		Provider:       ext.Provider,
		ProviderUserID: ext.Subject,
		EmailVerified:  ext.EmailVerified,
		Preferences:    defaultPreferences(),
		CreatedAt:      now,
		LastLoginAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Lookup fetches a profile by email without recording a login.
func (s *Service) Lookup(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// Profile fetches a profile by identifier.
func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// SetPassword replaces the password of the account identified by id. The
// token version is bumped so existing sessions stop working.
func (s *Service) SetPassword(ctx context.Context, id, password string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if user.Disabled {
		return User{}, ErrUserDisabled
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return User{}, err
	}
	user.PasswordHash = hash
	user.TokenVersion++
	return user, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the stored profile.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if upd.DisplayName != nil {
		user.DisplayName = *upd.DisplayName
	}
	if upd.Notifications != nil {
		user.Preferences.Notifications = *upd.Notifications
	}
	if upd.Marketing != nil {
		user.Preferences.Marketing = *upd.Marketing
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// RevokeSessions increments the token version so previously issued session
// tokens no longer verify.
func (s *Service) RevokeSessions(ctx context.Context, id string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) touch(ctx context.Context, user User) (User, error) {
	user.LastLoginAt = s.now().UTC()
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}
