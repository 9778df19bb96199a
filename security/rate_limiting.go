package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window request limit per caller, shared
// across instances through Redis. Authenticated callers are keyed by
// record id, anonymous callers by IP.
type RateLimiter struct {
	redis    *redis.Client
	window   time.Duration
	requests int
}

func NewRateLimiter(redisClient *redis.Client, window time.Duration, requests int) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if requests <= 0 {
		requests = 60
	}
	return &RateLimiter{redis: redisClient, window: window, requests: requests}
}

// Middleware returns a request hook suitable for se.Router.BindFunc.
func (r *RateLimiter) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := fmt.Sprintf("ratelimit:ip:%s", e.RealIP())
		if e.Auth != nil {
			key = fmt.Sprintf("ratelimit:user:%s", e.Auth.Id)
		}

		count, err := r.redis.Incr(context.Background(), key).Result()
		if err != nil {
			// Redis trouble must not take the API down with it.
			slog.Error("rate limit check failed, letting request through", "error", err)
			return e.Next()
		}
		if count == 1 {
			r.redis.Expire(context.Background(), key, r.window)
		}
		if count > int64(r.requests) {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}

		return e.Next()
	}
}
