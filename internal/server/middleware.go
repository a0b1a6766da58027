package server

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/orderfeed/internal/observability/context"
	"github.com/smallbiznis/orderfeed/pkg/telemetry"
	"go.uber.org/zap"
)

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.ObserveAPIRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// RequireSession rejects order reads while nobody is signed in and tags the
// request context with the active owner.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := s.identity.Current()
		if owner == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		ctx := obscontext.WithOwnerID(c.Request.Context(), owner)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ThrottleWrites applies the per-client write budget. Limiter failures let
// the request through.
func (s *Server) ThrottleWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.limiter.AllowClient(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("write limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
