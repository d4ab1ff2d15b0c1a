package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pushWindow = time.Minute

type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	logger *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, pushesPerMinute int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(pushesPerMinute),
		logger: logger,
	}
}

// PushRateLimit caps STK pushes per caller per minute. Every push prompts a
// customer's handset, so the cap applies before the order guard.
func (r *RateLimiter) PushRateLimit(e *core.RequestEvent) error {
	if r.limit <= 0 {
		return e.Next()
	}

	ctx := e.Request.Context()
	key := "ratelimit:stkpush:" + identifier(e)

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		// NX keeps the window fixed and re-arms a key that lost its TTL
		pipe.ExpireNX(ctx, key, pushWindow)
		return nil
	})
	if err != nil {
		r.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return e.Next()
	}
	if incr.Val() > r.limit {
		return apis.NewTooManyRequestsError("Too many payment requests. Please try again later.", nil)
	}

	return e.Next()
}

// Anti-bot protection
func (r *RateLimiter) AntiBot(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return e.Next()
}

// Rate limit by user for authenticated requests, by IP otherwise
func identifier(e *core.RequestEvent) string {
	if e.Auth != nil {
		return fmt.Sprintf("user:%s", e.Auth.Id)
	}
	return "ip:" + e.RealIP()
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
