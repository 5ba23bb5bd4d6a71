package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "PropertyHub Auth"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultSignInAttempts  = 5
	defaultSignUpAttempts  = 3
	defaultAttemptWindow   = 15 * time.Minute
	defaultOTPTTL          = 5 * time.Minute
	defaultFlowIdleTTL     = 30 * time.Minute
	defaultSubmitPerMinute = 30
	defaultSessionTTL      = 12 * time.Hour
	defaultResetTTL        = time.Hour
	defaultResetLinkBase   = "http://localhost:3000/reset-password"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	SignInMaxAttempts    int
	SignUpMaxAttempts    int
	AttemptWindow        time.Duration
	OTPTTL               time.Duration
	FlowIdleTTL          time.Duration
	SubmitThrottlePerMin int

	JWTSecret  string
	SessionTTL time.Duration

	ResetTTL      time.Duration
	ResetLinkBase string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Load reads configuration values from the environment and populates a Config instance.
// Postgres and Redis are optional in development, where in-memory stores are used instead.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		ResetLinkBase:      getEnv("RESET_LINK_BASE", defaultResetLinkBase),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AttemptWindow, err = durationEnv("", "ATTEMPT_WINDOW", defaultAttemptWindow); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationEnv("", "OTP_TTL", defaultOTPTTL); err != nil {
		return Config{}, err
	}
	if cfg.FlowIdleTTL, err = durationEnv("", "FLOW_IDLE_TTL", defaultFlowIdleTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationEnv("", "SESSION_TTL", defaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.ResetTTL, err = durationEnv("", "RESET_TTL", defaultResetTTL); err != nil {
		return Config{}, err
	}
	if cfg.SignInMaxAttempts, err = intEnv("SIGNIN_MAX_ATTEMPTS", defaultSignInAttempts); err != nil {
		return Config{}, err
	}
	if cfg.SignUpMaxAttempts, err = intEnv("SIGNUP_MAX_ATTEMPTS", defaultSignUpAttempts); err != nil {
		return Config{}, err
	}
	if cfg.SubmitThrottlePerMin, err = intEnv("SUBMIT_THROTTLE_PER_MIN", defaultSubmitPerMinute); err != nil {
		return Config{}, err
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-secret-change-me"
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, errors.New("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the service runs in a local development setup.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local":
		return true
	}
	return false
}

// GoogleEnabled reports whether federated sign-in with Google is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers the integer seconds variable, then the Go duration one.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
