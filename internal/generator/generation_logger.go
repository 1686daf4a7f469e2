package generator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDatabaseError is returned when the audit write fails
	ErrDatabaseError = errors.New("database error while logging generation")
)

// Valid statuses and user types for a generation log entry
var (
	validStatuses = map[string]bool{
		"success":           true,
		"error":             true,
		"rate_limited":      true,
		"validation_failed": true,
		"blocked":           true,
		"budget_exceeded":   true,
	}
	validUserTypes = map[string]bool{
		"anonymous":     true,
		"authenticated": true,
	}
)

// GenerationLog is the audit record for one generation attempt. UserID is
// the opaque identity for authenticated users and a hashed IP otherwise;
// InputPrompt holds the sanitized prompt, never the raw matched content.
type GenerationLog struct {
	ID           uuid.UUID
	UserID       string
	UserType     string // "anonymous" or "authenticated"
	InputPrompt  string
	RawResponse  string // empty if generation failed before the LLM call
	Status       string
	ErrorMessage string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	DurationMS   int
	CreatedAt    time.Time
}

// Validate checks the log entry against the closed status/user-type sets
func (l *GenerationLog) Validate() error {
	if !validStatuses[l.Status] {
		return errors.New("invalid status: must be success, error, rate_limited, validation_failed, blocked, or budget_exceeded")
	}
	if !validUserTypes[l.UserType] {
		return errors.New("invalid user_type: must be anonymous or authenticated")
	}
	return nil
}

// GenerationLogDB is the persistence interface for audit records
type GenerationLogDB interface {
	LogGeneration(ctx context.Context, entry *GenerationLog) error
}

// GenerationLogger records generation attempts for auditing and abuse
// investigation. A nil logger is a no-op.
type GenerationLogger struct {
	db GenerationLogDB
}

// NewGenerationLogger creates a new generation logger
func NewGenerationLogger(db GenerationLogDB) *GenerationLogger {
	return &GenerationLogger{db: db}
}

// LogSuccess records a successful generation
func (l *GenerationLogger) LogSuccess(
	ctx context.Context,
	userID string,
	userType string,
	inputPrompt string,
	rawResponse string,
	result *GenerateResult,
	durationMS int,
) error {
	if l == nil {
		return nil
	}

	entry := &GenerationLog{
		ID:           uuid.New(),
		UserID:       userID,
		UserType:     userType,
		InputPrompt:  inputPrompt,
		RawResponse:  rawResponse,
		Status:       "success",
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		CostUSD:      result.EstimatedCost,
		DurationMS:   durationMS,
		CreatedAt:    time.Now(),
	}

	if err := entry.Validate(); err != nil {
		return err
	}
	return l.db.LogGeneration(ctx, entry)
}

// LogError records a failed generation attempt
func (l *GenerationLogger) LogError(
	ctx context.Context,
	userID string,
	userType string,
	inputPrompt string,
	rawResponse string,
	status string,
	errorMessage string,
	inputTokens int,
	outputTokens int,
	costUSD float64,
	durationMS int,
) error {
	if l == nil {
		return nil
	}

	entry := &GenerationLog{
		ID:           uuid.New(),
		UserID:       userID,
		UserType:     userType,
		InputPrompt:  inputPrompt,
		RawResponse:  rawResponse,
		Status:       status,
		ErrorMessage: errorMessage,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      costUSD,
		DurationMS:   durationMS,
		CreatedAt:    time.Now(),
	}

	if err := entry.Validate(); err != nil {
		return err
	}
	return l.db.LogGeneration(ctx, entry)
}
