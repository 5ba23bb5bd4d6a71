package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyhub/authgateway/internal/auth"
)

// LocalUserID holds the authenticated subject in fiber locals.
const LocalUserID = "user_id"

// SessionAuth requires a valid bearer session token whose version matches
// the stored one, so logged-out tokens are refused.
func SessionAuth(sessions *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := sessions.Authenticate(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if errors.Is(err, auth.ErrTokenRevoked) {
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		}
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(LocalUserID, claims.Subject)
		return c.Next()
	}
}
