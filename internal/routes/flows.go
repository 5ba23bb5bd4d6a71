package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyhub/authgateway/internal/auth"
	"github.com/propertyhub/authgateway/internal/flow"
	"github.com/propertyhub/authgateway/internal/provider"
)

type flowHandler struct {
	registry  *flow.Registry
	sessions  *auth.Service
	completer flow.RedirectCompleter
	logger    *slog.Logger
}

type createFlowRequest struct {
	Kind string `json:"kind"`
	From string `json:"from"`
}

type fieldRequest struct {
	Field   *string `json:"field"`
	Value   string  `json:"value"`
	Flag    *string `json:"flag"`
	Checked bool    `json:"checked"`
}

type methodRequest struct {
	Method string `json:"method"`
}

type federatedRequest struct {
	IDToken string `json:"id_token"`
	Nonce   string `json:"nonce"`
}

type submitResponse struct {
	Outcome flow.Outcome  `json:"outcome"`
	State   flow.Snapshot `json:"state"`
	Session *auth.Session `json:"session,omitempty"`
}

// RegisterFlowRoutes wires the form-session endpoints. throttle guards the
// endpoints that reach the identity provider.
func RegisterFlowRoutes(r fiber.Router, h *flowHandler, throttle fiber.Handler) {
	g := r.Group("/flows")
	g.Post("/", h.create)
	g.Get("/:id", h.state)
	g.Post("/:id/fields", h.setField)
	g.Post("/:id/method", h.setMethod)
	g.Post("/:id/email", throttle, h.submitEmail)
	g.Post("/:id/phone", throttle, h.submitPhone)
	g.Post("/:id/phone/resend", h.resend)
	g.Post("/:id/federated", throttle, h.federated)
}

func (h *flowHandler) create(c *fiber.Ctx) error {
	var req createFlowRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	kind, err := flow.ParseKind(req.Kind)
	if err != nil {
		return flowError(err)
	}
	f := h.registry.Create(kind, req.From)
	return c.Status(http.StatusCreated).JSON(f.State())
}

func (h *flowHandler) state(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(f.State())
}

func (h *flowHandler) setField(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	var req fieldRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	switch {
	case req.Field != nil:
		err = f.SetField(*req.Field, req.Value)
	case req.Flag != nil:
		err = f.SetFlag(*req.Flag, req.Checked)
	default:
		return fiber.NewError(http.StatusBadRequest, "field or flag is required")
	}
	if err != nil {
		return flowError(err)
	}
	return c.JSON(f.State())
}

func (h *flowHandler) setMethod(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	var req methodRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m, err := flow.ParseMethod(req.Method)
	if err != nil {
		return flowError(err)
	}
	if err := f.SetMethod(m); err != nil {
		return flowError(err)
	}
	return c.JSON(f.State())
}

func (h *flowHandler) submitEmail(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	out, err := f.SubmitEmail(c.UserContext())
	if err != nil {
		return flowError(err)
	}
	return h.respond(c, f, out)
}

func (h *flowHandler) submitPhone(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	out, err := f.SubmitPhone(c.UserContext())
	if err != nil {
		return flowError(err)
	}
	return h.respond(c, f, out)
}

func (h *flowHandler) resend(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	resent := f.ResendCode()
	return c.JSON(fiber.Map{"resent": resent, "state": f.State()})
}

func (h *flowHandler) federated(c *fiber.Ctx) error {
	f, err := h.lookup(c)
	if err != nil {
		return err
	}
	var req federatedRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	out, err := f.SignInWithFederated(c.UserContext(), provider.FederatedCredential{IDToken: req.IDToken, Nonce: req.Nonce})
	if err != nil {
		return flowError(err)
	}
	return h.respond(c, f, out)
}

// respond issues a session once a flow navigates away and drops the flow.
func (h *flowHandler) respond(c *fiber.Ctx, f *flow.Flow, out flow.Outcome) error {
	state := f.State()
	resp := submitResponse{Outcome: out, State: state}
	if out.Navigate == "" || out.User == nil {
		return c.JSON(resp)
	}

	sess, err := h.sessions.Issue(*out.User, state.Flags[flow.FlagRememberMe])
	if err != nil {
		h.logger.ErrorContext(c.UserContext(), "issue session", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "could not start session")
	}
	resp.Session = &sess
	h.registry.Finish(f.ID())
	return c.JSON(resp)
}

func (h *flowHandler) lookup(c *fiber.Ctx) (*flow.Flow, error) {
	f, err := h.registry.Get(c.Params("id"))
	if err != nil {
		return nil, flowError(err)
	}
	return f, nil
}

func flowError(err error) error {
	switch {
	case errors.Is(err, flow.ErrFlowNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, flow.ErrWrongMethod):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, flow.ErrUnknownField), errors.Is(err, flow.ErrUnknownMethod), errors.Is(err, flow.ErrUnknownKind):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
