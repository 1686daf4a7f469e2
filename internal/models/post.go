package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Platform identifies the social network a post is drafted for
type Platform string

const (
	PlatformBluesky  Platform = "bluesky"
	PlatformLinkedIn Platform = "linkedin"
	PlatformX        Platform = "x"
)

// Security limits for answer intake and LLM output parsing
const (
	MaxDraftSize         = 100 * 1024 // 100KB
	MaxPostsPerDraft     = 10
	MaxPostTextLength    = 3000
	MaxAnswersPerRequest = 12
	MaxAnswerLength      = 2000
	MaxFieldNameLength   = 64
)

// AnswerSet is the validated map of interview field name to the user's
// raw answer text, as produced by the request validator.
type AnswerSet map[string]string

// Post is one drafted social post produced by the generator
type Post struct {
	Platform Platform `json:"platform"`
	Text     string   `json:"text"`
}

// PostDraft is the structured output the LLM is asked to produce
type PostDraft struct {
	Posts []Post `json:"posts"`
}

var fieldNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate schema-checks the answer map before it reaches the gateway
// core: bounded field count, snake_case field names, non-empty answers
// within the per-field length cap.
func (a AnswerSet) Validate() error {
	if len(a) == 0 {
		return errors.New("at least one answer is required")
	}
	if len(a) > MaxAnswersPerRequest {
		return fmt.Errorf("too many answer fields: %d exceeds maximum of %d", len(a), MaxAnswersPerRequest)
	}

	for field, text := range a {
		if len(field) == 0 || len(field) > MaxFieldNameLength {
			return fmt.Errorf("answer field name must be 1-%d characters", MaxFieldNameLength)
		}
		if !fieldNameRegex.MatchString(field) {
			return fmt.Errorf("invalid answer field name %q: use lowercase letters, digits, underscores", field)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("answer %q cannot be empty", field)
		}
		if len(text) > MaxAnswerLength {
			return fmt.Errorf("answer %q too long: %d characters exceeds maximum of %d", field, len(text), MaxAnswerLength)
		}
	}
	return nil
}

// Matches dangerous HTML tags (script, iframe, object, embed, link, style, img)
// in both paired and self-closing forms, case-insensitive.
var dangerousTagsRegex = regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed|link|style|img)(\s+[^>]*)?>(.*?)</\s*(script|iframe|object|embed|link|style|img)\s*>|<\s*(script|iframe|object|embed|link|style|img)(\s+[^>]*)?>`)

// SanitizeText removes dangerous HTML tags and control characters from
// text that will be rendered or stored. Defense in depth on the output
// side; the guard package owns the prompt-injection side.
func SanitizeText(input string) string {
	sanitized := dangerousTagsRegex.ReplaceAllString(input, "")

	sanitized = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		return -1
	}, sanitized)

	return strings.TrimSpace(sanitized)
}

// ParsePostDraft parses a draft from LLM output. The model is told to
// answer with bare JSON, but fenced output is tolerated; YAML is accepted
// as a fallback with strict field checking.
func ParsePostDraft(data []byte) (*PostDraft, error) {
	if len(data) > MaxDraftSize {
		return nil, fmt.Errorf("draft too large: %d bytes exceeds maximum of 100KB", len(data))
	}

	data = stripCodeFence(data)

	var draft PostDraft

	if err := json.Unmarshal(data, &draft); err == nil {
		return &draft, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft as JSON or YAML: %w", err)
	}

	return &draft, nil
}

// ValidateDraft validates and sanitizes a parsed draft in place
func (d *PostDraft) ValidateDraft() error {
	if len(d.Posts) == 0 {
		return errors.New("draft must contain at least one post")
	}
	if len(d.Posts) > MaxPostsPerDraft {
		return fmt.Errorf("too many posts: %d exceeds maximum of %d", len(d.Posts), MaxPostsPerDraft)
	}

	for i, p := range d.Posts {
		switch p.Platform {
		case PlatformBluesky, PlatformLinkedIn, PlatformX:
		default:
			return fmt.Errorf("post %d: unsupported platform %q", i, p.Platform)
		}

		d.Posts[i].Text = SanitizeText(p.Text)

		if d.Posts[i].Text == "" {
			return fmt.Errorf("post %d: post text is required", i)
		}
		if len(d.Posts[i].Text) > MaxPostTextLength {
			return fmt.Errorf("post %d: text too long: %d characters exceeds maximum of %d", i, len(d.Posts[i].Text), MaxPostTextLength)
		}
	}
	return nil
}

// CombinedText joins all post bodies for whole-draft quality scoring
func (d *PostDraft) CombinedText() string {
	parts := make([]string, 0, len(d.Posts))
	for _, p := range d.Posts {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

var codeFenceRegex = regexp.MustCompile("(?s)^```(?:json|yaml)?\\s*\n?(.*?)\n?```\\s*$")

// stripCodeFence unwraps a markdown code fence if the whole payload is
// fenced, a habit LLMs fall into despite instructions
func stripCodeFence(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if m := codeFenceRegex.FindSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}
