package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/estatio/docrender/pkg/metrics"
)

func hit(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(2, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/limited"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/limited"))

	// one token is back after half a second
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(r, "/limited"))
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	l := NewRateLimiter(0.5, 1)
	r := gin.New()
	r.GET("/render", l.Middleware("render"), func(c *gin.Context) { c.Status(200) })
	r.GET("/admin", l.Middleware("admin"), func(c *gin.Context) { c.Status(200) })

	require.Equal(t, http.StatusOK, hit(r, "/render"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/render"))
	require.Equal(t, http.StatusOK, hit(r, "/admin"))
}

func TestRateLimitMiddleware_UsesSubjectWhenPresent(t *testing.T) {
	l := NewRateLimiter(0.5, 1)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("claims", map[string]interface{}{"sub": c.Query("sub")})
		c.Next()
	})
	r.Use(l.Middleware("render"))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/u?sub=user-123"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/u?sub=user-123"))
	// same IP, different subject
	require.Equal(t, http.StatusOK, hit(r, "/u?sub=user-456"))
}
