package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Fixed window length
	Prefix      string        // Redis key namespace, e.g. "ratelimit:http"
}

// RateLimiter is a fixed-window counter per key, stored in Redis so every
// instance shares the same budget.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig) *RateLimiter {
	if config.Prefix == "" {
		config.Prefix = "ratelimit"
	}
	return &RateLimiter{
		redis:  redisClient,
		config: config,
	}
}

// Middleware limits requests per client IP. Redis errors let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := rl.CheckLimit(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// CheckLimit counts one hit for key and reports whether it is within the limit.
// When it is not, retryAfter is the time left in the window.
func (rl *RateLimiter) CheckLimit(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.config.Prefix, key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}

	// First hit opens the window
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count > int64(rl.config.MaxRequests) {
		ttl, err := rl.redis.TTL(ctx, redisKey).Result()
		if err != nil || ttl <= 0 {
			ttl = rl.config.Window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

// Allow is CheckLimit without the retry hint
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := rl.CheckLimit(ctx, key)
	return allowed, err
}
