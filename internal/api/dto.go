package api

import (
	"github.com/draftcast-team/draftcast/internal/models"
)

// GeneratePostsRequest is the request body for AI post generation.
// Answers maps interview field names to the user's free-text answers.
type GeneratePostsRequest struct {
	Answers models.AnswerSet `json:"answers"`
	Consent bool             `json:"consent"`
}

// FieldWarning reports sanitizer findings for one answer field. Warnings
// name pattern IDs only; matched content is never echoed back.
type FieldWarning struct {
	Field    string   `json:"field"`
	Warnings []string `json:"warnings"`
}

// QualityReport summarizes the quality gate verdict for the draft
type QualityReport struct {
	Severity    string   `json:"severity"`
	Suggestions []string `json:"suggestions,omitempty"`
	Repaired    bool     `json:"repaired"`
	Changes     []string `json:"changes,omitempty"`
}

// GeneratePostsResponse is the success payload for post generation
type GeneratePostsResponse struct {
	Posts         []models.Post  `json:"posts"`
	FieldWarnings []FieldWarning `json:"fieldWarnings,omitempty"`
	Quality       QualityReport  `json:"quality"`
	InputTokens   int            `json:"inputTokens"`
	OutputTokens  int            `json:"outputTokens"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
