package generator

import (
	"github.com/draftcast-team/draftcast/internal/models"
)

// OutputSanitizer parses and sanitizes raw LLM output into a post draft
type OutputSanitizer struct{}

// NewOutputSanitizer creates a new output sanitizer
func NewOutputSanitizer() *OutputSanitizer {
	return &OutputSanitizer{}
}

// Sanitize parses the LLM's JSON output and runs the draft through the
// models-layer validation, which strips dangerous tags and control
// characters from every post body.
func (s *OutputSanitizer) Sanitize(llmOutput string) (*models.PostDraft, error) {
	draft, err := models.ParsePostDraft([]byte(llmOutput))
	if err != nil {
		return nil, err
	}

	if err := draft.ValidateDraft(); err != nil {
		return nil, err
	}

	return draft, nil
}
