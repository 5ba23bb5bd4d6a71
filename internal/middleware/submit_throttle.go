package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/propertyhub/authgateway/internal/ratelimit"
)

const (
	submitThrottlePrefix = "rl:submit:"
	submitWindow         = time.Minute
)

// SubmitThrottle caps form submissions per client IP per minute. It counts in
// Redis when a client is given and falls back to an in-process limiter
// otherwise. Cache errors fail open.
func SubmitThrottle(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	if cache == nil {
		return localSubmitThrottle(ratelimit.New(maxPerMin, submitWindow), time.Now)
	}

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), cacheOpTimeout)
		defer cancel()

		key := submitThrottlePrefix + c.IP()
		pipe := cache.TxPipeline()
		incr := pipe.Incr(ctx, key)
		ttl := pipe.TTL(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("submit throttle unavailable", slog.Any("error", err))
			return c.Next()
		}
		// Repair counters left without an expiry.
		if ttl.Val() < 0 {
			if err := cache.Expire(ctx, key, submitWindow).Err(); err != nil {
				logger.Warn("submit throttle expiry not set", slog.Any("error", err))
				return c.Next()
			}
		}
		if incr.Val() > int64(maxPerMin) {
			return tooManySubmits(c, 1)
		}
		return c.Next()
	}
}

func localSubmitThrottle(local *ratelimit.Limiter, now func() time.Time) fiber.Handler {
	var lastPrune atomic.Int64
	lastPrune.Store(now().UnixNano())

	return func(c *fiber.Ctx) error {
		if prev := lastPrune.Load(); now().UnixNano()-prev > int64(submitWindow) {
			if lastPrune.CompareAndSwap(prev, now().UnixNano()) {
				local.Prune()
			}
		}

		ip := c.IP()
		if !local.Allow(ip) {
			return tooManySubmits(c, ratelimit.RetryMinutes(local.RemainingTime(ip)))
		}
		return c.Next()
	}
}

func tooManySubmits(c *fiber.Ctx, minutes int) error {
	c.Set(fiber.HeaderRetryAfter, fmt.Sprint(minutes*60))
	return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
}
