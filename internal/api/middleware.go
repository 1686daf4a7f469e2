package api

import (
	"strconv"
	"time"

	"github.com/draftcast-team/draftcast/internal/telemetry"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			// Check if request ID already exists in header
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.New().String()
			}

			// Set request ID in response header
			res.Header().Set(echo.HeaderXRequestID, rid)

			// Store in context for logging
			c.Set("request_id", rid)

			return next(c)
		}
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			// Use route pattern (e.g., /api/v1/posts/generate) not actual
			// path to bound cardinality
			route := c.Path()
			if route == "" {
				route = "unknown"
			}

			telemetry.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration)

			return err
		}
	}
}

// BodyLimitConfig defines body size limits for different route types.
// The generation body limit is the outer size guard of the gateway: a
// request too large to hold valid answers is rejected before any field
// ever reaches the sanitizer.
type BodyLimitConfig struct {
	PostGeneration string
	GeneralAPI     string
}

// DefaultBodyLimitConfig returns the default body size limits
func DefaultBodyLimitConfig() BodyLimitConfig {
	return BodyLimitConfig{
		PostGeneration: "64KB", // 12 answers x 2000 chars plus JSON overhead
		GeneralAPI:     "1MB",  // default for other endpoints
	}
}

// NewBodyLimitMiddleware creates a body limit middleware with the given limit
func NewBodyLimitMiddleware(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
