package identity

import "time"

const (
	// ProviderPassword marks accounts created with email and password.
	ProviderPassword = "password"
	// ProviderPhone marks accounts created through phone verification.
	ProviderPhone = "phone"
)

// Preferences are the per-user settings stored with the profile.
type Preferences struct {
	Notifications bool `json:"notifications"`
	Marketing     bool `json:"marketing"`
	RememberMe    bool `json:"remember_me"`
}

// User is the stored profile of a marketplace account.
type User struct {
	ID             string
	Email          string
	Phone          string
	DisplayName    string
	PasswordHash   []byte
	Provider       string
	ProviderUserID string
	EmailVerified  bool
	Disabled       bool
	Preferences    Preferences
	// TokenVersion is embedded in session tokens; bumping it revokes them.
	TokenVersion int
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// External describes an identity asserted by a federated IdP.
type External struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	DisplayName   *string
	Notifications *bool
	Marketing     *bool
}

func defaultPreferences() Preferences {
	return Preferences{Notifications: true}
}
