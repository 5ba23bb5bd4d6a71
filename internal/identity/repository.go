package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound is returned when no profile matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the email or phone is already registered.
	ErrUserExists = errors.New("user exists")
)

// Repository persists user profiles.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	Update(ctx context.Context, user User) error
	// UpdatePassword replaces the password hash and bumps the token version.
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, phone, display_name, password_hash, provider, provider_user_id,
        email_verified, disabled, pref_notifications, pref_marketing, pref_remember_me, token_version, created_at, last_login_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		userID, user.Email, user.Phone, user.DisplayName, user.PasswordHash, user.Provider, user.ProviderUserID,
		user.EmailVerified, user.Disabled, user.Preferences.Notifications, user.Preferences.Marketing,
		user.Preferences.RememberMe, user.TokenVersion, user.CreatedAt.UTC(), user.LastLoginAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// FindByPhone fetches a user by E.164 phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

// Update stores the mutable profile fields.
func (r *PostgresRepository) Update(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET display_name = $1, email_verified = $2, disabled = $3,
        pref_notifications = $4, pref_marketing = $5, pref_remember_me = $6, last_login_at = $7 WHERE id = $8`,
		user.DisplayName, user.EmailVerified, user.Disabled, user.Preferences.Notifications,
		user.Preferences.Marketing, user.Preferences.RememberMe, user.LastLoginAt.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash and revokes outstanding sessions.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	return r.execOne(ctx, `UPDATE users SET password_hash = $1, token_version = token_version + 1 WHERE id = $2`, hash, userID)
}

// UpdateTokenVersion sets the session token version for a user.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	return r.execOne(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, version, userID)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (User, error) {
	row := r.db.QueryRow(ctx, query, arg)
	var (
		id               uuid.UUID
		email, phone     *string
		createdAt, login time.Time
		user             User
	)
	err := row.Scan(&id, &email, &phone, &user.DisplayName, &user.PasswordHash, &user.Provider,
		&user.ProviderUserID, &user.EmailVerified, &user.Disabled, &user.Preferences.Notifications,
		&user.Preferences.Marketing, &user.Preferences.RememberMe, &user.TokenVersion, &createdAt, &login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	if email != nil {
		user.Email = *email
	}
	if phone != nil {
		user.Phone = *phone
	}
	user.CreatedAt = createdAt.UTC()
	user.LastLoginAt = login.UTC()
	return user, nil
}
