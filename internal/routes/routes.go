package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/propertyhub/authgateway/internal/auth"
	"github.com/propertyhub/authgateway/internal/config"
	"github.com/propertyhub/authgateway/internal/flow"
	"github.com/propertyhub/authgateway/internal/identity"
	"github.com/propertyhub/authgateway/internal/logging"
	"github.com/propertyhub/authgateway/internal/middleware"
	"github.com/propertyhub/authgateway/internal/notification"
	"github.com/propertyhub/authgateway/internal/provider"
	"github.com/propertyhub/authgateway/internal/verification"
)

const flowSweepInterval = time.Minute

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Federated enables Google sign-in when non-nil.
	Federated provider.Federated
	// Background bounds goroutines started during setup, such as the idle
	// flow sweeper. Defaults to context.Background().
	Background context.Context
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Background == nil {
		d.Background = context.Background()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))

	RegisterHealthRoutes(app, d)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)

	var codes verification.Store
	if d.Cache != nil {
		codes = verification.NewRedisStore(d.Cache)
	} else {
		codes = verification.NewMemoryStore()
	}

	notifier := notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"), d.Cfg.IsDevelopment())
	local := provider.NewLocal(identitySvc, codes, notifier, d.Federated, provider.LocalConfig{
		OTPTTL:        d.Cfg.OTPTTL,
		ResetTTL:      d.Cfg.ResetTTL,
		ResetLinkBase: d.Cfg.ResetLinkBase,
	}, logging.Component(d.Logger, "provider"))

	registry := flow.NewRegistry(local, flow.RegistryConfig{
		SignInMaxAttempts: d.Cfg.SignInMaxAttempts,
		SignUpMaxAttempts: d.Cfg.SignUpMaxAttempts,
		AttemptWindow:     d.Cfg.AttemptWindow,
		IdleTTL:           d.Cfg.FlowIdleTTL,
	}, logging.Component(d.Logger, "flow"))
	go registry.Run(d.Background, flowSweepInterval)

	sessions := auth.NewService(d.Cfg.JWTSecret, d.Cfg.SessionTTL, identityRepo)
	flows := &flowHandler{registry: registry, sessions: sessions, completer: local, logger: d.Logger}
	throttle := middleware.SubmitThrottle(d.Cache, d.Cfg.SubmitThrottlePerMin, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterFlowRoutes(api, flows, throttle)
	RegisterPasswordRoutes(api, local, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger), throttle, d.Logger)
	RegisterGoogleRoutes(api, flows)

	protected := api.Group("", middleware.SessionAuth(sessions))
	RegisterProfileRoutes(protected, identitySvc)
	RegisterSessionRoutes(protected, sessions, d.Logger)

	return nil
}
