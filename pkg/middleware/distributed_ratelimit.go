package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/storage/postgres"
)

// DistributedRateLimiter implements rate limiting backed by Redis so the
// budget holds across API replicas. It uses a fixed window: the first request
// for a key starts the window, and the counter expires with it.
type DistributedRateLimiter struct {
	redis  *postgres.RedisClient
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed rate limiter
func NewDistributedRateLimiter(redis *postgres.RedisClient, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redis,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow checks if a request is allowed for the given key. When Redis is
// unreachable it fails open and reports the error alongside the allow.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.buildKey(key)
	limit := int64(rl.config.RequestsPerWindow + rl.config.BurstSize)

	count, err := rl.redis.Incr(ctx, redisKey)
	if err != nil {
		return true, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// Only the request that opens the window sets the expiry; refreshing it
	// on every hit would keep a busy key alive forever.
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration); err != nil {
			return true, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= limit, nil
}

// Remaining returns the number of requests left in the current window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	limit := rl.config.RequestsPerWindow + rl.config.BurstSize

	value, found, err := rl.redis.Get(ctx, rl.buildKey(key))
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	if !found {
		return limit, nil
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate limit counter: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetTime returns when the current window for a key expires. Keys with no
// active window reset a full window from now.
func (rl *DistributedRateLimiter) ResetTime(ctx context.Context, key string) (time.Time, error) {
	ttl, err := rl.redis.TTL(ctx, rl.buildKey(key))
	if err != nil {
		return time.Now().Add(rl.config.WindowDuration), fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl <= 0 {
		return time.Now().Add(rl.config.WindowDuration), nil
	}
	return time.Now().Add(ttl), nil
}

// Reset clears the rate limit counter for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	if err := rl.redis.Del(ctx, rl.buildKey(key)); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}

// HealthCheck verifies the Redis backing store is reachable
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx)
}

// DistributedRateLimitMiddleware provides HTTP rate limiting shared across
// replicas. Keying matches RateLimitMiddleware: operator subject for
// authenticated requests, client IP otherwise.
type DistributedRateLimitMiddleware struct {
	operatorLimiter  *DistributedRateLimiter
	anonymousLimiter *DistributedRateLimiter
}

// NewDistributedRateLimitMiddleware creates a Redis-backed rate limit middleware
func NewDistributedRateLimitMiddleware(redis *postgres.RedisClient) *DistributedRateLimitMiddleware {
	return &DistributedRateLimitMiddleware{
		operatorLimiter:  NewDistributedRateLimiter(redis, PerOperatorRateLimitConfig(), "ratelimit:operator"),
		anonymousLimiter: NewDistributedRateLimiter(redis, DefaultRateLimitConfig(), "ratelimit:anon"),
	}
}

// Handler wraps an HTTP handler with distributed rate limiting
func (m *DistributedRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limiter := m.pick(r)
		ctx := r.Context()

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			// Fail open: a Redis outage must not take the API down with it.
			observability.GetLogger(ctx).WithError(err).Warn("Rate limiter unavailable, allowing request")
		}

		if !allowed {
			m.rateLimitExceeded(ctx, w, limiter, key)
			return
		}

		if remaining, rerr := limiter.Remaining(ctx, key); rerr == nil {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if reset, terr := limiter.ResetTime(ctx, key); terr == nil {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *DistributedRateLimitMiddleware) pick(r *http.Request) (string, *DistributedRateLimiter) {
	if operator := OperatorFromContext(r); operator != nil {
		return operator.Subject, m.operatorLimiter
	}
	return getClientIP(r), m.anonymousLimiter
}

func (m *DistributedRateLimitMiddleware) rateLimitExceeded(ctx context.Context, w http.ResponseWriter, limiter *DistributedRateLimiter, key string) {
	reset, _ := limiter.ResetTime(ctx, key)
	retryAfter := int(time.Until(reset).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + strconv.Itoa(retryAfter) + `}`))
}
