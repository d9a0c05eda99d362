package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/estatio/docrender/pkg/logger"
	"github.com/estatio/docrender/pkg/metrics"
)

// RedisRateLimitMiddleware is a fixed-window limiter shared by every replica.
// Each window admits floor(rps*window)+burst requests per key. When Redis
// cannot be reached the request is judged by an in-memory limiter instead.
func RedisRateLimitMiddleware(client redis.UniversalClient, scope string, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	fallback := NewRateLimiter(rps, burst)
	if client == nil {
		return fallback.Middleware(scope)
	}
	windowSeconds := int(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowedPerWindow := int64(rps*float64(windowSeconds)) + int64(burst)
	log := logger.With("component", "rate-limit", "scope", scope)

	return func(c *gin.Context) {
		key := limitKey(c, scope)
		bucket := time.Now().Unix() / int64(windowSeconds)
		redisKey := fmt.Sprintf("rl:%s:%d", key, bucket)

		ctx := c.Request.Context()
		cnt, err := client.Incr(ctx, redisKey).Result()
		if err != nil {
			log.Warn("redis limiter unavailable, using local limiter", "error", err)
			if !fallback.Allow(key) {
				reject(c, "memory", "1")
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
			c.Next()
			return
		}
		if cnt == 1 {
			_ = client.Expire(ctx, redisKey, time.Duration(windowSeconds+1)*time.Second).Err()
		}
		if cnt > allowedPerWindow {
			reject(c, "redis", fmt.Sprintf("%d", windowSeconds))
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
