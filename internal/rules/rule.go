// Package rules holds the per-language detection rule packs used by the
// rule-based issue detector.
//
// A rule pack maps issue categories to an ordered list of [Rule] values.
// Each rule either carries a compiled text pattern ([RegexRule]) or names
// one of the statistical checks the detector knows how to run
// ([SpecialRule]). Packs are authored as YAML and served by a [Repository],
// which compiles them once and memoises the result per language.
package rules

import (
	"fmt"
	"regexp"

	"github.com/MrWong99/oratio/pkg/speech"
)

// Special enumerates the statistical rules that are not pattern based.
type Special int

const (
	// SlowPace flags recordings whose overall WPM is below 120.
	SlowPace Special = iota + 1
	// FastPace flags recordings whose overall WPM is above 180.
	FastPace
	// LongPause flags every inter-word gap longer than 3 seconds.
	LongPause
)

// Pattern names used in rule packs to select a special rule.
const (
	PatternSlowPace  = "speaking_rate_below_120"
	PatternFastPace  = "speaking_rate_above_180"
	PatternLongPause = "long_pause_over_3s"
)

// String returns the pack pattern name of s.
func (s Special) String() string {
	switch s {
	case SlowPace:
		return PatternSlowPace
	case FastPace:
		return PatternFastPace
	case LongPause:
		return PatternLongPause
	}
	return fmt.Sprintf("special(%d)", int(s))
}

// Kind returns the issue kind emitted for s.
func (s Special) Kind() string {
	switch s {
	case SlowPace:
		return speech.KindSlowPace
	case FastPace:
		return speech.KindFastPace
	case LongPause:
		return speech.KindLongPause
	}
	return speech.KindOther
}

// Matcher is the closed set of rule bodies: [RegexRule] or [SpecialRule].
type Matcher interface {
	isMatcher()
}

// RegexRule matches a compiled, case-insensitive pattern against the
// transcript text and the individual word tokens.
type RegexRule struct {
	Pattern *regexp.Regexp
}

// SpecialRule selects a statistical check.
type SpecialRule struct {
	Kind Special
}

func (RegexRule) isMatcher()   {}
func (SpecialRule) isMatcher() {}

// Rule is a single compiled detection rule.
type Rule struct {
	// Name identifies the rule within its category; used as the issue kind
	// for pattern rules.
	Name     string
	Category string
	Matcher  Matcher

	Severity    speech.Severity
	Description string
	Tip         string

	// MinMatches is the number of matches required before any issue is
	// emitted for this rule. Zero and one are equivalent.
	MinMatches int

	// MaxMatchesPerMinute caps the number of issues per rule at
	// ceil(MaxMatchesPerMinute × duration_minutes). Zero disables the cap.
	MaxMatchesPerMinute float64

	// ContextWindow is both the grouping gap in seconds for adjacent word
	// matches and the number of surrounding words included in issue text.
	ContextWindow int
}

// Pack is the compiled rule set of one language.
type Pack struct {
	Language string

	// Categories lists category names in pack order.
	Categories []string

	rules map[string][]Rule
}

// Rules returns the ordered rules of category.
func (p *Pack) Rules(category string) []Rule {
	return p.rules[category]
}

// All returns every rule across all categories in pack order.
func (p *Pack) All() []Rule {
	var out []Rule
	for _, c := range p.Categories {
		out = append(out, p.rules[c]...)
	}
	return out
}

// Len returns the total number of compiled rules.
func (p *Pack) Len() int {
	n := 0
	for _, rs := range p.rules {
		n += len(rs)
	}
	return n
}
