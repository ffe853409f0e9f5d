package middleware

import (
	"net/http"
	"strconv"
	"time"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimit implements a fixed-window limit in Redis keyed by client IP and
// limit name. expr uses the "20/minute" form.
func RateLimit(rdb *redis.Client, name, expr string) (gin.HandlerFunc, error) {
	limit, window, err := config.ParseRateLimit(expr)
	if err != nil {
		return nil, err
	}
	return FixedWindowLimit(rdb, name, limit, window), nil
}

// FixedWindowLimit allows limit requests per window for each client IP.
func FixedWindowLimit(rdb *redis.Client, name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + name + ":" + c.ClientIP()

		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Fail open - don't block requests if Redis is down
			logger.Warn("Rate limit check failed", "limit", name, "error", err)
			c.Next()
			return
		}

		// Set expiration on first request
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			retryAfter := int(window.Seconds())
			if ttl, err := rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds())
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retryAfter)*time.Second).Unix(), 10))
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Rate limit exceeded: "+strconv.Itoa(limit)+" per "+window.String(),
				gin.H{
					"retry_after": retryAfter,
					"limit":       limit,
				})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
