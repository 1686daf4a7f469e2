package guard

import (
	"fmt"
	"regexp"
)

// Category classifies a detection rule by what it guards against
type Category string

const (
	// CategoryInjection matches text that tries to override or escape the
	// intended prompt instructions. Matches are replaced with SentinelToken.
	CategoryInjection Category = "injection"

	// CategoryWarning matches suspicious but not clearly adversarial text.
	// Matches are reported but the text is left unmodified.
	CategoryWarning Category = "warning"

	// CategoryFiller matches low-value generic phrases in generated text.
	// Matches drive the quality gate and the auto-repair table.
	CategoryFiller Category = "filler"
)

// Rule is a single immutable detection rule. Rules are compiled once at
// startup; a malformed pattern panics during init rather than per-request.
type Rule struct {
	ID          string
	Category    Category
	Pattern     *regexp.Regexp
	Replacement string // repair text for filler rules, unused otherwise
}

// Library holds the ordered rule lists for all three categories.
// Order matters for replacement, not for detection.
type Library struct {
	Injection []Rule
	Warning   []Rule
	Filler    []Rule
}

// injectionPatterns match attempts to override the prompt template.
// Sources: prompt injection phrasing seen in the wild plus common chat
// template markers that would let input masquerade as system messages.
var injectionPatterns = []struct{ id, pattern string }{
	{"ignore_previous", `(?i)\bignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|context)`},
	{"disregard_previous", `(?i)\bdisregard\s+(all\s+)?(previous|prior|above)`},
	{"forget_rules", `(?i)\bforget\s+(everything|all|your)\s*(instructions?|rules|guidelines|training)?`},
	{"system_role", `(?i)\bsystem\s*:\s*you\s+are\b`},
	{"assistant_role", `(?i)\bassistant\s*:\s*i\s+will\b`},
	{"act_as", `(?i)\bact\s+as\s+(a|an|the|if)\b`},
	{"you_are_now", `(?i)\byou\s+are\s+now\s+(a|an|the)\b`},
	{"new_instructions", `(?i)\bnew\s+instructions?\s*:`},
	{"replace_instructions", `(?i)\breplace\s+your\s+instructions\b`},
	{"chat_template_marker", `(?i)<\|?(im_start|im_end|system|user|assistant)\|?>`},
	{"llama_template_marker", `(?i)\[/?INST\]|<</?SYS>>`},
	{"override_directive", `(?i)\b(important|critical)\s*:\s*(ignore|override)\b`},
}

// warningPatterns flag content worth a second look without modifying it
var warningPatterns = []struct{ id, pattern string }{
	{"roleplay_request", `(?i)\b(pretend|roleplay|role-play)\b`},
	{"jailbreak_term", `(?i)\b(jailbreak|dan\s+mode|developer\s+mode)\b`},
	{"reveal_prompt", `(?i)\b(repeat|reveal|print|show)\s+(your|the)\s+(system\s+)?(prompt|instructions)\b`},
	{"encoded_blob", `[A-Za-z0-9+/]{80,}={0,2}`},
	{"markdown_heading_run", "(?m)^#{3,}"},
}

// fillerPhrases is the curated table of generic AI-sounding phrases.
// The display form is what shows up in quality suggestions; the pattern is
// the case-insensitive matcher; the replacement feeds AutoRepair (empty
// string means delete the phrase).
var fillerPhrases = []struct{ display, pattern, replacement string }{
	{"in today's fast-paced world", `(?i)\bin\s+today's\s+fast-paced\s+world,?\s*`, ""},
	{"it's important to note that", `(?i)\b(it's|it\s+is)\s+important\s+to\s+note\s+that\s*`, ""},
	{"at the end of the day", `(?i)\bat\s+the\s+end\s+of\s+the\s+day,?\s*`, ""},
	{"needless to say", `(?i)\bneedless\s+to\s+say,?\s*`, ""},
	{"the fact of the matter is", `(?i)\bthe\s+fact\s+of\s+the\s+matter\s+is\s+that\s+|\bthe\s+fact\s+of\s+the\s+matter\s+is\s*`, ""},
	{"delve into", `(?i)\bdelve\s+into\b`, "look at"},
	{"embark on a journey", `(?i)\bembark\s+on\s+a\s+journey\b`, "start"},
	{"unlock the power of", `(?i)\bunlock\s+the\s+(full\s+)?power\s+of\b`, "use"},
	{"a rich tapestry of", `(?i)\ba\s+rich\s+tapestry\s+of\b`, "a mix of"},
	{"in the realm of", `(?i)\bin\s+the\s+realm\s+of\b`, "in"},
	{"navigate the landscape", `(?i)\bnavigate\s+the\s+(complex\s+)?landscape\s+of\b`, "handle"},
	{"game-changer", `(?i)\ba\s+(true\s+|real\s+)?game-?changer\b`, "a big improvement"},
	{"cutting-edge", `(?i)\bcutting-edge\b`, "modern"},
	{"revolutionize", `(?i)\brevolutioniz(e|es|ed|ing)\b`, "transform"},
	{"seamlessly", `(?i)\bseamlessly\s*`, ""},
	{"leverage", `(?i)\bleverag(e|es|ed|ing)\b`, "use"},
	{"in conclusion", `(?i)\bin\s+conclusion,?\s*`, ""},
	{"when it comes to", `(?i)\bwhen\s+it\s+comes\s+to\b`, "for"},
	{"a testament to", `(?i)\ba\s+testament\s+to\b`, "proof of"},
	{"elevate your", `(?i)\belevate\s+your\b`, "improve your"},
}

// DefaultLibrary compiles the built-in rule tables. Patterns are
// hard-coded, so compilation failure is a programming error and panics.
func DefaultLibrary() *Library {
	lib := &Library{}
	for _, p := range injectionPatterns {
		lib.Injection = append(lib.Injection, Rule{
			ID:       p.id,
			Category: CategoryInjection,
			Pattern:  regexp.MustCompile(p.pattern),
		})
	}
	for _, p := range warningPatterns {
		lib.Warning = append(lib.Warning, Rule{
			ID:       p.id,
			Category: CategoryWarning,
			Pattern:  regexp.MustCompile(p.pattern),
		})
	}
	for _, p := range fillerPhrases {
		lib.Filler = append(lib.Filler, Rule{
			ID:          p.display,
			Category:    CategoryFiller,
			Pattern:     regexp.MustCompile(p.pattern),
			Replacement: p.replacement,
		})
	}
	return lib
}

// WithExtraPatterns returns a copy of the library extended with
// operator-supplied injection and warning patterns from configuration.
// Unlike the built-in tables, these come from config files, so compile
// errors are returned for the caller to fail startup with.
func (l *Library) WithExtraPatterns(injection, warning []string) (*Library, error) {
	out := &Library{
		Injection: append([]Rule(nil), l.Injection...),
		Warning:   append([]Rule(nil), l.Warning...),
		Filler:    append([]Rule(nil), l.Filler...),
	}
	for i, p := range injection {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid extra injection pattern %q: %w", p, err)
		}
		out.Injection = append(out.Injection, Rule{
			ID:       fmt.Sprintf("custom_injection_%d", i+1),
			Category: CategoryInjection,
			Pattern:  re,
		})
	}
	for i, p := range warning {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid extra warning pattern %q: %w", p, err)
		}
		out.Warning = append(out.Warning, Rule{
			ID:       fmt.Sprintf("custom_warning_%d", i+1),
			Category: CategoryWarning,
			Pattern:  re,
		})
	}
	return out, nil
}
