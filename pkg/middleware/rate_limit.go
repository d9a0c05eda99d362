package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/estatio/docrender/pkg/metrics"
)

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	rps      float64
	burst    int
	limiters sync.Map // map[string]*rate.Limiter
}

// NewRateLimiter allows rps events per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{rps: rps, burst: burst}
}

// Allow takes a token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	v, ok := l.limiters.Load(key)
	if !ok {
		v, _ = l.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(l.rps), l.burst))
	}
	return v.(*rate.Limiter).Allow()
}

// limitKey prefers the authenticated subject, which keeps users behind one
// NAT apart, and falls back to the client IP. Scope separates budgets, for
// example rendering from template administration.
func limitKey(c *gin.Context, scope string) string {
	if sub := Subject(c); sub != "" {
		return scope + ":sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return scope + ":ip:" + ip
}

func reject(c *gin.Context, limiter, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	metrics.RateLimitRejected.WithLabelValues(limiter).Inc()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
}

// Middleware enforces the limiter per key within scope.
func (l *RateLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(limitKey(c, scope)) {
			reject(c, "memory", "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}

// RateLimitMiddleware is a single-scope in-memory limiter.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return NewRateLimiter(rps, burst).Middleware("default")
}
