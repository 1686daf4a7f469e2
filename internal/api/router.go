package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, h *Handlers, hh *HealthHandlers, ipLimiters *IPRateLimiterConfig) {
	// Health check and metrics endpoints (no middleware)
	e.GET("/health", hh.Health)
	e.GET("/health/ready", hh.Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Apply middleware to all other routes
	e.Use(RequestIDMiddleware())
	e.Use(MetricsMiddleware())
	e.Use(SecurityHeadersMiddleware())

	bodyLimits := DefaultBodyLimitConfig()

	// JSON API routes - v1
	api := e.Group("/api/v1",
		ipLimiters.GeneralAPI.Middleware(),
		NewBodyLimitMiddleware(bodyLimits.GeneralAPI),
	)

	// Post generation: the tighter body limit is the gateway's size guard
	api.POST("/posts/generate", h.GeneratePosts,
		NewBodyLimitMiddleware(bodyLimits.PostGeneration))
}
