// Package ratelimit throttles requests with a Redis fixed-window counter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"github.com/redis/go-redis/v9"
)

// ErrNoStore is returned by Allow when no Redis client is configured.
var ErrNoStore = errors.New("rate limit store not configured")

// NewClient connects to the Redis server at url. An empty url returns a nil
// client, which disables rate limiting.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		observability.Logger.Warn("redis unreachable, rate limiting will fail open", "error", err)
	}
	return rdb, nil
}

// Limiter allows at most limit requests per window for each key.
type Limiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
}

// New returns a limiter backed by rdb. A nil rdb or a non-positive limit
// yields a limiter that allows everything.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	l := &Limiter{limit: limit, window: window}
	if rdb != nil {
		l.rdb = rdb
	}
	return l
}

// Allow checks if key has exceeded its rate limit for resource.
// Returns true if allowed, false if limit exceeded.
func (l *Limiter) Allow(ctx context.Context, resource, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	if l.rdb == nil {
		return false, ErrNoStore
	}

	k := fmt.Sprintf("rl:%s:%s", resource, key)

	cnt, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(l.limit), nil
}

// Middleware enforces the limit per client IP for the named resource.
// Store failures let the request through.
func (l *Limiter) Middleware(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := l.Allow(c.Request.Context(), resource, "ip:"+c.ClientIP())
		if err != nil {
			if !errors.Is(err, ErrNoStore) {
				observability.RedisErrors.WithLabelValues("rate_limit").Inc()
				observability.Logger.WarnContext(c.Request.Context(), "rate limit check failed",
					"resource", resource, "error", err)
			}
			c.Next()
			return
		}

		if !allowed {
			observability.RateLimitRejections.WithLabelValues(resource).Inc()
			c.Header("Retry-After", fmt.Sprintf("%d", int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
