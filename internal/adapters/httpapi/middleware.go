package httpapi

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	apiKeyHeader     = "X-API-Key"
	adminTokenHeader = "X-Admin-Token"
)

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
	}
}

// requireAPIKey rejects requests without a valid X-API-Key header.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(apiKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing X-API-Key"})
			return
		}
		if s.apiKey != "" && !secureEqual(key, s.apiKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid X-API-Key"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !secureEqual(c.GetHeader(adminTokenHeader), s.adminToken) {
			s.logger.Warn(c.Request.Context(), "Rejected admin request", map[string]interface{}{
				"path":   c.Request.URL.Path,
				"client": c.ClientIP(),
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	if maxRequests <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *rateLimiter) allow(client string) bool {
	r.mu.Lock()
	l, ok := r.limiters[client]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[client] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

func (r *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r != nil && !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
