package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyhub/authgateway/internal/flow"
	"github.com/propertyhub/authgateway/internal/identity"
	"github.com/propertyhub/authgateway/internal/middleware"
	"github.com/propertyhub/authgateway/internal/validation"
)

type profileUpdateRequest struct {
	DisplayName *string `json:"display_name"`
	Preferences *struct {
		Notifications *bool `json:"notifications"`
		Marketing     *bool `json:"marketing"`
	} `json:"preferences"`
}

// RegisterProfileRoutes wires endpoints that require a session.
func RegisterProfileRoutes(r fiber.Router, ids *identity.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals(middleware.LocalUserID).(string)
		if uid == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		user, err := ids.Profile(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(profileJSON(user))
	})

	r.Patch("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals(middleware.LocalUserID).(string)
		if uid == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		var req profileUpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		var upd identity.ProfileUpdate
		if req.DisplayName != nil {
			name := validation.Sanitize(*req.DisplayName)
			if res := validation.ValidateName(name); !res.Valid {
				return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
					"errors": fiber.Map{flow.FieldName: res.First()},
				})
			}
			upd.DisplayName = &name
		}
		if req.Preferences != nil {
			upd.Notifications = req.Preferences.Notifications
			upd.Marketing = req.Preferences.Marketing
		}

		user, err := ids.UpdateProfile(c.UserContext(), uid, upd)
		if errors.Is(err, identity.ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "could not update profile")
		}
		return c.JSON(profileJSON(user))
	})
}

func profileJSON(user identity.User) fiber.Map {
	return fiber.Map{
		"user_id":        user.ID,
		"email":          user.Email,
		"phone":          user.Phone,
		"display_name":   user.DisplayName,
		"provider":       user.Provider,
		"email_verified": user.EmailVerified,
		"preferences":    user.Preferences,
		"created_at":     user.CreatedAt,
		"last_login":     user.LastLoginAt,
	}
}
