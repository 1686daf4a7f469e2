package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/draftcast-team/draftcast/internal/generator"
	"github.com/draftcast-team/draftcast/internal/guard"
	"github.com/draftcast-team/draftcast/internal/models"
	"github.com/draftcast-team/draftcast/internal/ratelimit"
	"github.com/draftcast-team/draftcast/internal/telemetry"
	"github.com/labstack/echo/v4"
)

// GeneratorInterface defines the interface for AI post generation
type GeneratorInterface interface {
	Generate(ctx context.Context, answers models.AnswerSet) (*generator.GenerateResult, error)
}

// RateLimitChecker defines the interface for per-identity rate limiting
type RateLimitChecker interface {
	Check(ctx context.Context, key string, tier ratelimit.Tier) (ratelimit.Verdict, error)
}

// GenerationLoggerInterface defines the interface for auditing generation attempts
type GenerationLoggerInterface interface {
	LogSuccess(ctx context.Context, userID, userType, inputPrompt, rawResponse string, result *generator.GenerateResult, durationMS int) error
	LogError(ctx context.Context, userID, userType, inputPrompt, rawResponse, status, errorMessage string, inputTokens, outputTokens int, costUSD float64, durationMS int) error
}

// Handlers holds the HTTP handlers and dependencies
type Handlers struct {
	limiter       RateLimitChecker
	sanitizer     *guard.Sanitizer
	generator     GeneratorInterface
	generationLog GenerationLoggerInterface
}

// NewHandlers creates a new Handlers instance
func NewHandlers(limiter RateLimitChecker, sanitizer *guard.Sanitizer) *Handlers {
	return &Handlers{
		limiter:   limiter,
		sanitizer: sanitizer,
	}
}

// SetGenerator sets the AI generator for post generation
func (h *Handlers) SetGenerator(gen GeneratorInterface) {
	h.generator = gen
}

// SetLogger sets the generation audit logger
func (h *Handlers) SetLogger(logger GenerationLoggerInterface) {
	h.generationLog = logger
}

// GeneratePosts handles AI post generation requests
// POST /api/v1/posts/generate
//
// This is the gateway path: rate limit, size guard (body limit
// middleware), request validation, per-field sanitization, prompt
// assembly inside the generator, then the quality gate on the way out.
func (h *Handlers) GeneratePosts(c echo.Context) error {
	ctx := c.Request().Context()
	identity := ResolveIdentity(c)

	// Rate limit first: cheaper than any parsing, and abusers should not
	// learn anything about payload validation.
	verdict, err := h.limiter.Check(ctx, identity.Key, ratelimit.TierGenerate)
	if err != nil {
		// Unknown tier or broken store is a configuration fault
		return InternalServerError(c, "Rate limiting unavailable", err)
	}

	for k, v := range ratelimit.HeadersFor(verdict) {
		c.Response().Header().Set(k, v)
	}

	if !verdict.Allowed {
		telemetry.RateLimitHitsTotal.WithLabelValues(string(ratelimit.TierGenerate)).Inc()
		telemetry.PostGenerationsTotal.WithLabelValues("rate_limited").Inc()

		if h.generationLog != nil {
			_ = h.generationLog.LogError(ctx, identity.LogID(), identity.UserType(),
				"", "", "rate_limited", "Rate limit exceeded", 0, 0, 0.0, 0)
		}

		return c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "Rate limit exceeded for AI generation. Please try again later.",
		})
	}

	var req GeneratePostsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Details: err.Error(),
		})
	}

	if !req.Consent {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "AI generation requires explicit consent for LLM processing",
		})
	}

	// Schema validation of the answer map
	if err := req.Answers.Validate(); err != nil {
		telemetry.PostGenerationsTotal.WithLabelValues("validation_failed").Inc()

		if h.generationLog != nil {
			_ = h.generationLog.LogError(ctx, identity.LogID(), identity.UserType(),
				"", "", "validation_failed", err.Error(), 0, 0, 0.0, 0)
		}

		return ValidationError(c, "Invalid answers", err.Error())
	}

	// Sanitize every free-text field. A blocked field rejects the whole
	// request with a generic message; the matched content is never echoed.
	var fieldWarnings []FieldWarning
	sanitized := make(models.AnswerSet, len(req.Answers))
	for field, text := range req.Answers {
		fv := h.sanitizer.SanitizeField(identity.Key, field, text, models.MaxAnswerLength)
		if fv.Blocked {
			telemetry.PostGenerationsTotal.WithLabelValues("blocked").Inc()

			if h.generationLog != nil {
				_ = h.generationLog.LogError(ctx, identity.LogID(), identity.UserType(),
					"", "", "blocked", "answer field "+field+" rejected by safety filter",
					0, 0, 0.0, 0)
			}

			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "One or more answers could not be processed",
				Details: "field " + field + " was rejected; please rephrase it",
			})
		}
		sanitized[field] = fv.SanitizedText
		if len(fv.Warnings) > 0 {
			fieldWarnings = append(fieldWarnings, FieldWarning{Field: field, Warnings: fv.Warnings})
		}
	}

	if h.generator == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "AI post generation is not available",
		})
	}

	// The audit log stores the sanitized answers, never the raw input
	promptJSON, _ := json.Marshal(sanitized)

	start := time.Now()
	result, err := h.generator.Generate(ctx, req.Answers)
	duration := time.Since(start).Seconds()
	durationMS := int(duration * 1000)
	telemetry.GenerationDuration.Observe(duration)

	if err != nil {
		return h.generateError(c, identity, string(promptJSON), result, err, durationMS)
	}

	telemetry.PostGenerationsTotal.WithLabelValues("success").Inc()
	telemetry.GenerationCostUSD.Add(result.EstimatedCost)

	if h.generationLog != nil {
		_ = h.generationLog.LogSuccess(ctx, identity.LogID(), identity.UserType(),
			string(promptJSON), result.RawResponse, result, durationMS)
	}

	return c.JSON(http.StatusOK, GeneratePostsResponse{
		Posts:         result.Draft.Posts,
		FieldWarnings: fieldWarnings,
		Quality: QualityReport{
			Severity:    result.Quality.Severity.String(),
			Suggestions: result.Quality.Suggestions,
			Repaired:    len(result.RepairChanges) > 0,
			Changes:     result.RepairChanges,
		},
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	})
}

// generateError maps generator failures onto responses and audit records
func (h *Handlers) generateError(c echo.Context, identity Identity, promptJSON string, result *generator.GenerateResult, err error, durationMS int) error {
	ctx := c.Request().Context()

	var rawResponse string
	var inputTokens, outputTokens int
	var costUSD float64
	if result != nil {
		rawResponse = result.RawResponse
		inputTokens = result.InputTokens
		outputTokens = result.OutputTokens
		costUSD = result.EstimatedCost
	}

	status := "error"
	if errors.Is(err, generator.ErrCostLimitExceeded) {
		status = "budget_exceeded"
	}
	telemetry.PostGenerationsTotal.WithLabelValues(status).Inc()

	if h.generationLog != nil {
		_ = h.generationLog.LogError(ctx, identity.LogID(), identity.UserType(),
			promptJSON, rawResponse, status, err.Error(),
			inputTokens, outputTokens, costUSD, durationMS)
	}

	if errors.Is(err, generator.ErrCostLimitExceeded) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "AI generation is temporarily unavailable. Please try again tomorrow.",
		})
	}

	return InternalServerError(c, "Failed to generate posts", err)
}

// Health Check Handlers

// DBChecker is an interface for checking database connectivity
// This allows for mocking in tests
type DBChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandlers holds health check dependencies. A nil DBChecker means
// the service runs without a database and readiness skips that check.
type HealthHandlers struct {
	db DBChecker
}

// NewHealthHandlers creates a new HealthHandlers instance
func NewHealthHandlers(db DBChecker) *HealthHandlers {
	return &HealthHandlers{db: db}
}

// HealthResponse represents the liveness probe response
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// Health returns a basic liveness check
// GET /health
func (hh *HealthHandlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "draftcast-api",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness returns a readiness check with DB connectivity
// GET /health/ready
func (hh *HealthHandlers) Readiness(c echo.Context) error {
	checks := make(map[string]string)
	status := "ready"

	if hh.db != nil {
		if err := hh.db.PingContext(c.Request().Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = "not_ready"
		} else {
			checks["database"] = "healthy"
		}
	}

	httpStatus := http.StatusOK
	if status == "not_ready" {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, ReadinessResponse{
		Status:  status,
		Service: "draftcast-api",
		Checks:  checks,
	})
}
