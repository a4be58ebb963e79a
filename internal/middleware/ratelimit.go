// Package middleware provides shared HTTP middleware utilities.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"onboard/pkg/logger"
)

// RateLimiter applies a fixed-window rate limit backed by Redis.
type RateLimiter struct {
	cache  *redis.Client
	limit  int
	window time.Duration
	logger logger.Logger
}

// NewRateLimiter constructs a RateLimiter with the given limit and window.
func NewRateLimiter(cache *redis.Client, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		logger: log,
	}
}

// Limit enforces the rate limit, keyed by client IP and, when available, user ID.
// When Redis is unreachable requests are let through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}

		key := fmt.Sprintf("ratelimit:%s", ip)
		if userID, ok := UserIDFromContext(r.Context()); ok && userID != uuid.Nil {
			key = fmt.Sprintf("ratelimit:%s:%s", ip, userID.String())
		}

		count, err := rl.cache.Incr(r.Context(), key).Result()
		if err != nil {
			rl.logger.Warn("Rate limiter unavailable", map[string]interface{}{"error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}

		if count == 1 {
			if err := rl.cache.Expire(r.Context(), key, rl.window).Err(); err != nil {
				rl.logger.Warn("Rate limiter expire failed", map[string]interface{}{"error": err.Error()})
			}
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
