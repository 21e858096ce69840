// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RateLimiter keeps one token bucket per client key.
// Buckets that have not been used for visitorTTL are evicted.
type RateLimiter struct {
	visitors *cache.Cache
	limit    rate.Limit
	burst    int
	perMin   int
}

const visitorTTL = 10 * time.Minute

// NewRateLimiter creates a limiter allowing perMinute requests per key,
// with bursts up to perMinute. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		visitors: cache.New(visitorTTL, visitorTTL),
		perMin:   perMinute,
		burst:    perMinute,
		limit:    rate.Inf,
	}
	if perMinute > 0 {
		rl.limit = rate.Limit(float64(perMinute) / 60.0)
	}
	return rl
}

// limiter returns the bucket for key, creating it on first use.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.visitors.Get(key); ok {
		rl.visitors.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	// Add fails if another request created the bucket first
	if err := rl.visitors.Add(key, l, cache.DefaultExpiration); err != nil {
		if v, ok := rl.visitors.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// Allow reports whether the visitor may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit == rate.Inf {
		return true
	}
	return rl.limiter(key).Allow()
}

// Remaining returns the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	if rl.limit == rate.Inf {
		return rl.perMin
	}
	tokens := int(rl.limiter(key).Tokens())
	if tokens < 0 {
		return 0
	}
	return tokens
}

// VisitorCount returns the number of tracked keys.
func (rl *RateLimiter) VisitorCount() int {
	return rl.visitors.ItemCount()
}

// RateLimitMiddleware rejects requests over the limit with 429.
func RateLimitMiddleware(rl *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	helper := NewResponseHelper()
	return func(c *gin.Context) {
		key := keyFunc(c)
		allowed := rl.Allow(key)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.perMin))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining(key)))

		if !allowed {
			c.Header("Retry-After", "60")
			helper.Error(c, http.StatusTooManyRequests, ErrorRateLimited, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitByIP applies rate limiting based on client IP address.
func RateLimitByIP(rl *RateLimiter) gin.HandlerFunc {
	return RateLimitMiddleware(rl, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RequestIDMiddleware assigns every request an ID, reusing the caller's X-Request-ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(metrics *utils.StudioMetrics) gin.HandlerFunc {
	logger := utils.GetLogger().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		metrics.RecordAPIRequest(route, c.Request.Method, status, duration)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed", map[string]interface{}{
				"method":     c.Request.Method,
				"route":      route,
				"status":     status,
				"request_id": c.GetString(requestIDKey),
				"latency_ms": duration.Milliseconds(),
			})
		}
	}
}

// corsMiddleware 处理跨域请求
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
