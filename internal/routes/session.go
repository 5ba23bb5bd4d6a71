package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyhub/authgateway/internal/auth"
	"github.com/propertyhub/authgateway/internal/identity"
	"github.com/propertyhub/authgateway/internal/middleware"
)

// RegisterSessionRoutes wires logout. It must sit behind SessionAuth.
func RegisterSessionRoutes(r fiber.Router, sessions *auth.Service, logger *slog.Logger) {
	r.Post("/logout", func(c *fiber.Ctx) error {
		uid, _ := c.Locals(middleware.LocalUserID).(string)
		if uid == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		err := sessions.Logout(c.UserContext(), uid)
		if errors.Is(err, identity.ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		if err != nil {
			logger.ErrorContext(c.UserContext(), "logout failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "could not log out")
		}
		return c.SendStatus(http.StatusNoContent)
	})
}
