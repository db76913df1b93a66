package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/logger"
)

// KeyFunc returns the identity a request is counted against. An empty key
// skips limiting for that request.
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client address. gin resolves the address
// through the configured trusted proxies only.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByStaff counts requests per authenticated staff member, falling back to the
// client address.
func ByStaff(c *gin.Context) string {
	if id := c.GetString(StaffIDKey); id != "" {
		return "staff:" + id
	}
	return c.ClientIP()
}

// RateLimiter creates a fixed-window limiter backed by Redis INCR and EXPIRE.
// Keys are "ratelimit:<scope>:<identity>". Redis failures let the request
// through so the API stays available when Redis is down.
func RateLimiter(redisClient *redis.Client, scope string, limit int, window time.Duration, keyFn KeyFunc) gin.HandlerFunc {
	log := logger.GetLogger().Named("rate_limit")
	return func(c *gin.Context) {
		if redisClient == nil || limit <= 0 {
			c.Next()
			return
		}
		identity := keyFn(c)
		if identity == "" {
			c.Next()
			return
		}
		key := fmt.Sprintf("ratelimit:%s:%s", scope, identity)
		ctx := c.Request.Context()

		// Use pipeline for atomic operations
		pipe := redisClient.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warnw("Rate limit check failed, allowing request", "scope", scope, "error", err)
			c.Next()
			return
		}

		count := incr.Val()
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if count > int64(limit) {
			ttl, err := redisClient.TTL(ctx, key).Result()
			if err != nil || ttl <= 0 {
				ttl = window
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))

			_ = c.Error(apperrors.RateLimitExceeded("Too many requests. Please try again later."))
			c.Abort()
			return
		}

		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}
