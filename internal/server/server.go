package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/propertyhub/authgateway/internal/config"
	"github.com/propertyhub/authgateway/internal/provider"
	"github.com/propertyhub/authgateway/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	logger *slog.Logger
	stop   context.CancelFunc
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development; federated may be nil when Google
// sign-in is not configured.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, federated provider.Federated, logger *slog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: !cfg.IsDevelopment(),
		ErrorHandler:          s.handleError,
	})

	background, stop := context.WithCancel(context.Background())
	s.stop = stop

	deps := routes.Deps{
		Cfg:        cfg,
		DB:         db,
		Cache:      cache,
		Logger:     logger,
		Federated:  federated,
		Background: background,
	}
	if err := routes.Setup(s.app, deps); err != nil {
		stop()
		return nil, err
	}

	return s, nil
}

// App exposes the Fiber application, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.app.ShutdownWithContext(ctx)
}

// handleError renders errors as {"error": message}. Unexpected errors are
// logged and reported without detail.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		s.logger.ErrorContext(c.UserContext(), "unhandled error", slog.Any("error", err))
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
