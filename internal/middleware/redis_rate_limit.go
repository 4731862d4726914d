package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/logger"
	"go.uber.org/zap"
)

// Counter is the subset of the redis client the fixed-window limiter needs
type Counter interface {
	IncrBy(ctx context.Context, key string, increment int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

var _ Counter = (*cache.RedisClient)(nil)

// RedisRateLimitMiddleware creates a fixed-window rate limiter shared by every
// server instance using the same redis. With a nil counter it falls back to the
// in-memory token bucket.
func RedisRateLimitMiddleware(counter Counter, config RateLimitConfig) gin.HandlerFunc {
	if counter == nil {
		return NewRateLimiter(config)
	}
	if config.KeyFunc == nil {
		config.KeyFunc = clientKey
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s", config.KeyFunc(c))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := counter.IncrBy(ctx, key, 1)
		if err != nil {
			// a broken limiter must not open the API up
			logger.Log.Error("Rate limit check failed, rejecting request",
				zap.String("key", key),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
			return
		}

		if count == 1 {
			if err := counter.Expire(ctx, key, config.Window); err != nil && !errors.Is(err, cache.Nil) {
				logger.Log.Warn("Failed to set rate limit expiration",
					zap.String("key", key),
					zap.Error(err),
				)
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		if count > int64(config.Limit) {
			RecordRateLimitExceeded(routeLabel(c), c.Request.Method)
			retryAfter := int(config.Window.Seconds())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(config.Limit)-count, 10))

		c.Next()
	}
}
