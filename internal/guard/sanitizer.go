package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/draftcast-team/draftcast/internal/telemetry"
)

const (
	// SentinelToken replaces every injection-pattern match. Counting its
	// occurrences in the final text drives the block decision.
	SentinelToken = "[FILTERED]"

	// BlockedPlaceholder substitutes the body of a safe section whose
	// underlying verdict was blocked. Callers never see the raw content.
	BlockedPlaceholder = "[content removed: input rejected by safety filter]"
)

// Verdict is the result of sanitizing a single field. It is created fresh
// per call and never mutated after return.
//
// Invariants: Blocked implies SanitizedText == "", and SanitizedText never
// exceeds the requested max length.
type Verdict struct {
	SanitizedText string
	WasModified   bool
	Warnings      []string
	Blocked       bool
	BlockReason   string
}

// SecurityLog receives structured security events from the sanitizer.
// Implementations must not panic; they only ever see pattern IDs and an
// opaque key identifier, never the matched content.
type SecurityLog interface {
	PatternHit(keyID, patternID string)
	InputBlocked(keyID, reason string)
}

// stdSecurityLog writes security events to the process log and records
// them as Prometheus counters.
type stdSecurityLog struct{}

func (stdSecurityLog) PatternHit(keyID, patternID string) {
	telemetry.InjectionPatternHitsTotal.WithLabelValues(patternID).Inc()
	log.Printf("security: injection pattern %s matched (key=%s)", patternID, keyID)
}

func (stdSecurityLog) InputBlocked(keyID, reason string) {
	telemetry.InputBlockedTotal.Inc()
	log.Printf("security: input blocked (key=%s): %s", keyID, reason)
}

// NewSecurityLog returns the default log-and-metrics event sink
func NewSecurityLog() SecurityLog {
	return stdSecurityLog{}
}

// Sanitizer neutralizes prompt injection in untrusted text before it
// reaches a prompt template. It is pure and safe for concurrent use; the
// only side effect is the security log.
type Sanitizer struct {
	lib      *Library
	cfg      Config
	security SecurityLog
}

// NewSanitizer creates a sanitizer over the given pattern library and
// tuning config. A nil security log disables event emission.
func NewSanitizer(lib *Library, cfg Config, security SecurityLog) *Sanitizer {
	return &Sanitizer{lib: lib, cfg: cfg, security: security}
}

// Sanitize cleans a single untrusted field. It never fails: empty or
// whitespace-only input yields a quiet-pass verdict with empty text.
//
// Processing order: trim, replace injection matches with the sentinel,
// collect informational warnings, strip control characters, truncate, and
// finally reject the whole input if too many segments were filtered. That
// last rule intentionally trades false positives for safety: an input
// dense with injection attempts is discarded rather than patched.
func (s *Sanitizer) Sanitize(input string, maxLength int) Verdict {
	if maxLength <= 0 {
		maxLength = s.cfg.MaxFieldLength
	}

	text := strings.TrimSpace(input)
	if text == "" {
		return Verdict{}
	}

	var v Verdict

	for _, rule := range s.lib.Injection {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		text = rule.Pattern.ReplaceAllString(text, SentinelToken)
		v.WasModified = true
		v.Warnings = append(v.Warnings, "injection pattern removed: "+rule.ID)
	}

	for _, rule := range s.lib.Warning {
		if rule.Pattern.MatchString(text) {
			v.Warnings = append(v.Warnings, "suspicious content flagged: "+rule.ID)
		}
	}

	stripped := stripControlChars(text)
	if stripped != text {
		text = stripped
		v.WasModified = true
	}

	if utf8.RuneCountInString(text) > maxLength {
		text = string([]rune(text)[:maxLength])
		v.WasModified = true
		v.Warnings = append(v.Warnings, fmt.Sprintf("input truncated to %d characters", maxLength))
	}

	if n := strings.Count(text, SentinelToken); n > s.cfg.BlockThreshold {
		return Verdict{
			WasModified: true,
			Warnings:    v.Warnings,
			Blocked:     true,
			BlockReason: fmt.Sprintf("input rejected: %d filtered segments exceed the limit of %d", n, s.cfg.BlockThreshold),
		}
	}

	v.SanitizedText = text
	return v
}

// SanitizeField sanitizes one named field on behalf of an identified
// caller and emits security events for every injection hit and block.
// keyID is the rate-limit identity; it is hashed before logging.
func (s *Sanitizer) SanitizeField(keyID, field, input string, maxLength int) Verdict {
	v := s.Sanitize(input, maxLength)
	if s.security == nil {
		return v
	}

	hashed := HashKeyID(keyID)
	for _, w := range v.Warnings {
		if id, ok := strings.CutPrefix(w, "injection pattern removed: "); ok {
			s.security.PatternHit(hashed, id)
		}
	}
	if v.Blocked {
		s.security.InputBlocked(hashed, field+": "+v.BlockReason)
	}
	return v
}

// BuildSafeSection wraps sanitized text in a clearly delimited block for
// insertion into a larger prompt. A blocked verdict yields the fixed
// placeholder body, so callers never special-case rejected content.
func (s *Sanitizer) BuildSafeSection(name, text string, maxLength int) string {
	v := s.Sanitize(text, maxLength)

	body := EscapeStructuralDelimiters(v.SanitizedText)
	if v.Blocked {
		body = BlockedPlaceholder
	}

	label := strings.ToUpper(strings.TrimSpace(name))
	return fmt.Sprintf("=== %s ===\n%s\n=== END %s ===", label, body, label)
}

// Structural delimiter runs that could let user text break out of a
// delimited prompt section. Triple runs are split into pairs, doubled
// brackets into singles; each split inserts a space, which keeps the
// transformation idempotent.
var (
	tripleRuns = regexp.MustCompile("(?:`{3,})|(?:-{3,})|(?:={3,})")
	doubleRuns = regexp.MustCompile(`(?:\[{2,})|(?:\]{2,})|(?:<{2,})|(?:>{2,})`)
)

// EscapeStructuralDelimiters neutralizes sequences that could terminate or
// fake a prompt section delimiter. It runs after Sanitize and is a no-op
// on already-escaped text.
func EscapeStructuralDelimiters(text string) string {
	text = tripleRuns.ReplaceAllStringFunc(text, func(run string) string {
		return splitRun(run, 2)
	})
	text = doubleRuns.ReplaceAllStringFunc(text, func(run string) string {
		return splitRun(run, 1)
	})
	return text
}

// splitRun breaks a run of identical delimiter bytes into chunks of at
// most size, joined by single spaces
func splitRun(run string, size int) string {
	parts := make([]string, 0, len(run)/size+1)
	for len(run) > size {
		parts = append(parts, run[:size])
		run = run[size:]
	}
	parts = append(parts, run)
	return strings.Join(parts, " ")
}

// stripControlChars removes control characters except newline and tab.
// Carriage returns are dropped too; prompt templates are \n-delimited.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 || r == 0x7F) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashKeyID returns a short stable digest of an identity key, so security
// logs can correlate events without storing raw IPs or user IDs.
func HashKeyID(keyID string) string {
	sum := sha256.Sum256([]byte(keyID))
	return hex.EncodeToString(sum[:6])
}
