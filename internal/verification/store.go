// Package verification stores outstanding one-time challenges: phone
// verification codes and password reset secrets. Secrets are kept only as
// SHA-256 digests and expire with their TTL.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	// CodeLength is the number of digits in a verification code.
	CodeLength = 6
	// DefaultMaxAttempts is the number of wrong codes tolerated per challenge.
	DefaultMaxAttempts = 5
)

var (
	ErrNotFound         = errors.New("verification not found")
	ErrCodeMismatch     = errors.New("verification code mismatch")
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	ErrStoreUnavailable = errors.New("verification store unavailable")
)

// Challenge is an outstanding verification. Phone is set for phone codes,
// Subject carries the user id for password resets.
type Challenge struct {
	ID       string
	Phone    string
	Subject  string
	CodeHash string
}

// Store persists challenges until they are consumed or expire.
type Store interface {
	Save(ctx context.Context, ch Challenge, ttl time.Duration) error
	// Consume checks code against the challenge and deletes it on success.
	// Each mismatch counts toward maxAttempts; the challenge is dropped once
	// the limit is reached.
	Consume(ctx context.Context, id, code string, maxAttempts int) (Challenge, error)
}

// HashCode returns the hex SHA-256 digest stored in place of the code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// GenerateSecret returns a URL-safe random secret of n bytes.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCode returns a uniformly random numeric code of CodeLength digits.
func GenerateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
