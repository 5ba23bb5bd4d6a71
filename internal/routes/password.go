package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyhub/authgateway/internal/flow"
	"github.com/propertyhub/authgateway/internal/provider"
	"github.com/propertyhub/authgateway/internal/validation"
)

type strengthRequest struct {
	Password string `json:"password"`
}

type strengthResponse struct {
	validation.Strength
	Label        string                   `json:"label"`
	Requirements []validation.Requirement `json:"requirements"`
	Valid        validation.Result        `json:"policy"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// resetProvider is the part of the built-in provider the password routes use.
type resetProvider interface {
	provider.Provider
	flow.ResetConfirmer
}

// RegisterPasswordRoutes wires the strength meter, the reset request and the
// reset confirmation. idempotency is applied to the reset request only.
func RegisterPasswordRoutes(r fiber.Router, idp resetProvider, idempotency, throttle fiber.Handler, logger *slog.Logger) {
	g := r.Group("/password")

	g.Post("/strength", func(c *fiber.Ctx) error {
		var req strengthRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		s := validation.CheckPasswordStrength(req.Password)
		return c.JSON(strengthResponse{
			Strength:     s,
			Label:        s.Label(),
			Requirements: validation.Requirements(req.Password),
			Valid:        validation.ValidatePassword(req.Password),
		})
	})

	g.Post("/reset", throttle, idempotency, func(c *fiber.Ctx) error {
		var req resetRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		ok, msg := flow.ResetPassword(c.UserContext(), idp, req.Email, logger)
		status := http.StatusAccepted
		if !ok {
			status = http.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{"ok": ok, "message": msg})
	})

	g.Post("/reset/confirm", throttle, func(c *fiber.Ctx) error {
		var req resetConfirmRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		ok, msg, errs := flow.ConfirmPasswordReset(c.UserContext(), idp, req.Token, req.Password, req.ConfirmPassword, logger)
		if !ok {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"ok": false, "message": msg, "errors": errs})
		}
		return c.JSON(fiber.Map{"ok": true, "message": msg})
	})
}
