// Package detect applies a language's rule pack to a timed transcript and
// produces timestamped delivery issues.
//
// Pattern rules are matched twice: once over the full transcript text to
// count occurrences, and once over the word tokens to recover timing.
// Adjacent word matches are grouped into a single issue. Statistical rules
// (slow pace, fast pace, long pause) are evaluated from the word timings.
//
// The detector is pure: it holds no per-call state and is safe for
// concurrent use once constructed.
package detect

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/oratio/internal/rules"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Thresholds used by the statistical rules.
const (
	SlowPaceWPM = 120.0
	FastPaceWPM = 180.0
	LongPauseMS = 3000
	msPerMinute = 60000.0
	msPerSecond = 1000
)

// Error is returned when detection cannot run, typically because no rule
// pack exists for the requested language.
type Error struct {
	Language string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("detect: language %q: %v", e.Language, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Option configures a [Detector].
type Option func(*Detector)

// WithFallbackLanguage makes the detector retry with lang when the requested
// language has no rule pack.
func WithFallbackLanguage(lang string) Option {
	return func(d *Detector) {
		d.fallback = lang
	}
}

// Detector applies rule packs to transcripts.
type Detector struct {
	repo     *rules.Repository
	fallback string
}

// New returns a [Detector] reading rule packs from repo.
func New(repo *rules.Repository, opts ...Option) *Detector {
	d := &Detector{repo: repo}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect returns every issue the language's rules find in t, sorted
// ascending by StartMS. An unknown language without a usable fallback
// returns a *[Error].
func (d *Detector) Detect(t speech.Transcript, language string) ([]speech.Issue, error) {
	pack, err := d.pack(language)
	if err != nil {
		return nil, err
	}

	in := newInput(t)
	var issues []speech.Issue
	for _, r := range pack.All() {
		switch m := r.Matcher.(type) {
		case rules.RegexRule:
			issues = append(issues, in.matchPattern(r, m.Pattern)...)
		case rules.SpecialRule:
			issues = append(issues, in.matchSpecial(r, m.Kind)...)
		}
	}

	slices.SortStableFunc(issues, func(a, b speech.Issue) int {
		switch {
		case a.StartMS < b.StartMS:
			return -1
		case a.StartMS > b.StartMS:
			return 1
		}
		return 0
	})

	slog.Debug("rule detection complete",
		"language", pack.Language,
		"rules", pack.Len(),
		"words", len(t.Words),
		"issues", len(issues),
	)
	return issues, nil
}

func (d *Detector) pack(language string) (*rules.Pack, error) {
	p, err := d.repo.Load(language)
	if err == nil {
		return p, nil
	}
	if d.fallback != "" && errors.Is(err, rules.ErrUnknownLanguage) && !strings.EqualFold(language, d.fallback) {
		slog.Warn("no rule pack for language, using fallback",
			"language", language,
			"fallback", d.fallback,
		)
		p, ferr := d.repo.Load(d.fallback)
		if ferr == nil {
			return p, nil
		}
		err = errors.Join(err, ferr)
	}
	return nil, &Error{Language: language, Err: err}
}

// input is the per-call view of a transcript prepared for matching.
type input struct {
	t speech.Transcript

	// joined is the word texts separated by single spaces;
	// offsets[i] is the byte offset of word i within joined.
	joined  string
	offsets []int

	durationMS int64
}

func newInput(t speech.Transcript) *input {
	in := &input{t: t, durationMS: t.DurationMS()}
	var b strings.Builder
	in.offsets = make([]int, len(t.Words))
	for i, w := range t.Words {
		if i > 0 {
			b.WriteByte(' ')
		}
		in.offsets[i] = b.Len()
		b.WriteString(w.Text)
	}
	in.joined = b.String()
	return in
}

// wordAt returns the index of the word containing byte offset off.
func (in *input) wordAt(off int) int {
	i, found := slices.BinarySearch(in.offsets, off)
	if found {
		return i
	}
	return max(i-1, 0)
}

type span struct{ first, last int }

func (in *input) matchPattern(r rules.Rule, re *regexp.Regexp) []speech.Issue {
	textMatches := len(re.FindAllStringIndex(in.t.Text, -1))

	var spans []span
	if len(in.t.Words) > 0 {
		for _, loc := range re.FindAllStringIndex(in.joined, -1) {
			if loc[1] <= loc[0] {
				continue
			}
			spans = append(spans, span{first: in.wordAt(loc[0]), last: in.wordAt(loc[1] - 1)})
		}
	}

	if max(textMatches, len(spans)) < max(r.MinMatches, 1) || len(spans) == 0 {
		return nil
	}

	gapMS := int64(r.ContextWindow) * msPerSecond
	var groups []span
	cur := spans[0]
	for _, s := range spans[1:] {
		if in.t.Words[s.first].StartMS-in.t.Words[cur.last].EndMS <= gapMS {
			cur.last = max(cur.last, s.last)
			continue
		}
		groups = append(groups, cur)
		cur = s
	}
	groups = append(groups, cur)

	if r.MaxMatchesPerMinute > 0 {
		limit := int(math.Ceil(r.MaxMatchesPerMinute * float64(in.durationMS) / msPerMinute))
		if len(groups) > limit {
			groups = groups[:limit]
		}
	}

	issues := make([]speech.Issue, 0, len(groups))
	for _, g := range groups {
		lo := max(g.first-r.ContextWindow, 0)
		hi := min(g.last+r.ContextWindow, len(in.t.Words)-1)
		issues = append(issues, in.issue(r, r.Name,
			in.t.Words[g.first].StartMS,
			in.t.Words[g.last].EndMS,
			speech.JoinWords(in.t.Words[lo:hi+1]),
		))
	}
	return issues
}

func (in *input) matchSpecial(r rules.Rule, kind rules.Special) []speech.Issue {
	words := in.t.Words
	if len(words) == 0 {
		return nil
	}

	switch kind {
	case rules.SlowPace, rules.FastPace:
		if in.durationMS <= 0 {
			return nil
		}
		wpm := float64(len(words)) / (float64(in.durationMS) / msPerMinute)
		if (kind == rules.SlowPace && wpm >= SlowPaceWPM) || (kind == rules.FastPace && wpm <= FastPaceWPM) {
			return nil
		}
		return []speech.Issue{in.issue(r, kind.Kind(),
			words[0].StartMS,
			words[len(words)-1].EndMS,
			fmt.Sprintf("Speaking rate %.0f words per minute", wpm),
		)}

	case rules.LongPause:
		var issues []speech.Issue
		for i := 1; i < len(words); i++ {
			gap := words[i].StartMS - words[i-1].EndMS
			if gap <= LongPauseMS {
				continue
			}
			issues = append(issues, in.issue(r, kind.Kind(),
				words[i-1].EndMS,
				words[i].StartMS,
				fmt.Sprintf("%s ... %s (%.1fs pause)", words[i-1].Text, words[i].Text, float64(gap)/msPerSecond),
			))
		}
		return issues
	}
	return nil
}

func (in *input) issue(r rules.Rule, kind string, startMS, endMS int64, text string) speech.Issue {
	return speech.Issue{
		Kind:      kind,
		Category:  r.Category,
		StartMS:   startMS,
		EndMS:     endMS,
		Text:      text,
		Source:    speech.SourceRule,
		Severity:  r.Severity,
		Rationale: r.Description,
		Tip:       r.Tip,
	}
}
