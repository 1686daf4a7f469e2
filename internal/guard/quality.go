package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity buckets a filler-match count into a discrete quality class
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

// String returns the lowercase label used in responses and metrics
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// QualityMatch is a single filler-phrase hit with its surrounding context
type QualityMatch struct {
	Phrase  string
	Context string
}

// QualityVerdict classifies drafted text by how much low-value filler
// language it contains. Severity is a pure function of the match count
// and never blocks a response on its own.
type QualityVerdict struct {
	Matches     []QualityMatch
	Severity    Severity
	Suggestions []string
}

// QualityGate scores generated text for generic AI-sounding language and
// can rewrite the worst of it. Pure and safe for concurrent use.
type QualityGate struct {
	lib *Library
	cfg Config
}

// NewQualityGate creates a quality gate over the given pattern library
func NewQualityGate(lib *Library, cfg Config) *QualityGate {
	return &QualityGate{lib: lib, cfg: cfg}
}

// Evaluate scans the text against the filler table and reports every
// occurrence with a fixed-width context window around the hit.
func (g *QualityGate) Evaluate(text string) QualityVerdict {
	var verdict QualityVerdict

	for _, rule := range g.lib.Filler {
		locs := rule.Pattern.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			ctx := contextWindow(text, loc[0], loc[1], g.cfg.ContextWindow)
			verdict.Matches = append(verdict.Matches, QualityMatch{
				Phrase:  rule.ID,
				Context: ctx,
			})
			verdict.Suggestions = append(verdict.Suggestions,
				fmt.Sprintf("remove/replace phrase %q found near: %s", rule.ID, ctx))
		}
	}

	verdict.Severity = g.severityFor(len(verdict.Matches))
	return verdict
}

// severityFor maps a match count onto a severity bucket. Monotonic:
// more matches never yields a lower severity.
func (g *QualityGate) severityFor(matches int) Severity {
	switch {
	case matches == 0:
		return SeverityNone
	case matches <= g.cfg.LowSeverityMax:
		return SeverityLow
	case matches <= g.cfg.MediumSeverityMax:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// PassesThreshold is the single gate the pipeline consults before treating
// generated text as final: None and Low pass, Medium and High do not.
func (g *QualityGate) PassesThreshold(text string) bool {
	sev := g.Evaluate(text).Severity
	return sev == SeverityNone || sev == SeverityLow
}

var (
	whitespaceRuns     = regexp.MustCompile(`\s+`)
	punctuationSpacing = regexp.MustCompile(`\s*([,.])\s*`)
)

// AutoRepair rewrites filler phrases using the repair table, then
// normalizes whitespace and punctuation spacing. One change entry is
// recorded per phrase replaced, not per occurrence. Running AutoRepair on
// its own output yields no further changes.
func (g *QualityGate) AutoRepair(text string) (string, []string) {
	var changes []string

	for _, rule := range g.lib.Filler {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		text = rule.Pattern.ReplaceAllString(text, rule.Replacement)
		if rule.Replacement == "" {
			changes = append(changes, fmt.Sprintf("removed phrase %q", rule.ID))
		} else {
			changes = append(changes, fmt.Sprintf("replaced phrase %q with %q", rule.ID, rule.Replacement))
		}
	}

	text = whitespaceRuns.ReplaceAllString(text, " ")
	text = punctuationSpacing.ReplaceAllString(text, "$1 ")
	text = strings.TrimSpace(text)

	return text, changes
}

// contextWindow extracts up to width characters either side of a match,
// collapsed onto one line
func contextWindow(text string, start, end, width int) string {
	lo := start - width
	if lo < 0 {
		lo = 0
	}
	hi := end + width
	if hi > len(text) {
		hi = len(text)
	}
	snippet := text[lo:hi]
	return whitespaceRuns.ReplaceAllString(snippet, " ")
}
