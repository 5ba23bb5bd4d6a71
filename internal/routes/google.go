package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RegisterGoogleRoutes wires the OAuth callback used by the redirect
// fallback. The state parameter carries the flow id.
func RegisterGoogleRoutes(r fiber.Router, h *flowHandler) {
	r.Get("/auth/google/callback", func(c *fiber.Ctx) error {
		if reason := c.Query("error"); reason != "" {
			return fiber.NewError(http.StatusBadRequest, "google sign-in failed: "+reason)
		}
		state, code := c.Query("state"), c.Query("code")
		if state == "" || code == "" {
			return fiber.NewError(http.StatusBadRequest, "state and code are required")
		}

		f, err := h.registry.Get(state)
		if err != nil {
			return flowError(err)
		}
		out := f.CompleteRedirect(c.UserContext(), h.completer, code)
		return h.respond(c, f, out)
	})
}
