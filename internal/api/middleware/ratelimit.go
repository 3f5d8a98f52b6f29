package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits cover the mutating control routes. Reads and the event
// stream are not limited.
var DefaultLimits = map[string]RateLimit{
	"POST /rooms":   {Requests: 60, Window: time.Minute},
	"DELETE /rooms": {Requests: 60, Window: time.Minute},
	"POST /pause":   {Requests: 10, Window: time.Minute},
	"DELETE /pause": {Requests: 10, Window: time.Minute},
}

// RateLimiter implements fixed window rate limiting per client IP,
// shared across instances through Redis.
type RateLimiter struct {
	client *redis.Client
	limits map[string]RateLimit
	logger zerolog.Logger
}

// NewRateLimiter creates a new rate limiter. A nil client disables it.
func NewRateLimiter(client *redis.Client, limits map[string]RateLimit, logger zerolog.Logger) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &RateLimiter{client: client, limits: limits, logger: logger}
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// checkAndIncrement counts the request in the current window. It
// returns (allowed, remaining, resetAt). Redis failures allow the
// request.
func (rl *RateLimiter) checkAndIncrement(ctx context.Context, key string, limit RateLimit) (bool, int, time.Time) {
	now := time.Now()
	bucket := now.Unix() / int64(limit.Window.Seconds())
	windowKey := fmt.Sprintf("%s:%d", key, bucket)
	resetAt := time.Unix((bucket+1)*int64(limit.Window.Seconds()), 0)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, limit.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit.Requests, resetAt
	}

	count := int(incr.Val())
	remaining := limit.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit.Requests, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil {
			next.ServeHTTP(w, r)
			return
		}
		pattern, limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := RealIP(r)
		key := "ratelimit:" + pattern + ":" + ip
		allowed, remaining, resetAt := rl.checkAndIncrement(r.Context(), key, limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// findLimit picks the longest pattern that prefixes "METHOD /path".
func (rl *RateLimiter) findLimit(r *http.Request) (string, RateLimit, bool) {
	key := r.Method + " " + r.URL.Path
	var (
		best  string
		limit RateLimit
	)
	for pattern, l := range rl.limits {
		if strings.HasPrefix(key, pattern) && len(pattern) > len(best) {
			best, limit = pattern, l
		}
	}
	return best, limit, best != ""
}
