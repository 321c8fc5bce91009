// Package candidate selects a bounded set of transcript segments worth
// deeper AI analysis.
//
// Three strategies run in order, each filling part of the budget:
// issue-anchored windows around detected issues, high-quality segments cut
// at natural pauses, and randomly anchored segments for coverage. The
// combined list is deduplicated by time overlap and ordered by priority.
package candidate

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/oratio/pkg/speech"
)

// Budget shares of the three strategies.
const (
	highIssueShare = 0.6
	issueShare     = 0.8
	qualityShare   = 0.3

	// MaxOverlapRatio is the largest overlap, relative to the shorter
	// segment, that two kept candidates may share.
	MaxOverlapRatio = 0.3

	// NaturalBreakMS is the pause length treated as a segment boundary.
	NaturalBreakMS = 1500

	// MinQuality is the score a quality segment must exceed to be kept.
	MinQuality = 0.6
)

// Config holds the builder's tunables.
type Config struct {
	MaxCandidates int
	ContextBuffer time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
}

// DefaultConfig returns the defaults: 10 candidates, 1s context buffer,
// segments between 2s and 15s.
func DefaultConfig() Config {
	return Config{
		MaxCandidates: 10,
		ContextBuffer: time.Second,
		MinDuration:   2 * time.Second,
		MaxDuration:   15 * time.Second,
	}
}

// Option configures a [Builder].
type Option func(*Builder)

// WithConfig overrides the builder configuration. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(b *Builder) {
		def := DefaultConfig()
		if cfg.MaxCandidates <= 0 {
			cfg.MaxCandidates = def.MaxCandidates
		}
		if cfg.ContextBuffer <= 0 {
			cfg.ContextBuffer = def.ContextBuffer
		}
		if cfg.MinDuration <= 0 {
			cfg.MinDuration = def.MinDuration
		}
		if cfg.MaxDuration <= 0 {
			cfg.MaxDuration = def.MaxDuration
		}
		if cfg.MaxDuration < cfg.MinDuration {
			cfg.MaxDuration = cfg.MinDuration
		}
		b.cfg = cfg
	}
}

// WithRand sets the random source used by the random-sampling strategy.
// Tests pass a seeded source for reproducible output.
func WithRand(r *rand.Rand) Option {
	return func(b *Builder) {
		b.rng = r
	}
}

// Builder builds candidate segments. It is safe for concurrent use.
type Builder struct {
	cfg Config

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New returns a [Builder] with [DefaultConfig] unless overridden.
func New(opts ...Option) *Builder {
	b := &Builder{
		cfg: DefaultConfig(),
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Config returns the effective configuration.
func (b *Builder) Config() Config { return b.cfg }

// Build returns at most MaxCandidates segments of t.
func (b *Builder) Build(t speech.Transcript, issues []speech.Issue) []speech.Candidate {
	return b.BuildN(t, issues, b.cfg.MaxCandidates)
}

// BuildN is [Builder.Build] with an explicit candidate budget.
func (b *Builder) BuildN(t speech.Transcript, issues []speech.Issue, limit int) []speech.Candidate {
	if len(t.Words) == 0 || limit <= 0 {
		return nil
	}
	s := &session{
		words:  t.Words,
		minMS:  b.cfg.MinDuration.Milliseconds(),
		maxMS:  b.cfg.MaxDuration.Milliseconds(),
		bufMS:  b.cfg.ContextBuffer.Milliseconds(),
		limit:  limit,
		random: b.intN,
	}

	var out []speech.Candidate
	out = append(out, s.issueBased(issues)...)
	out = append(out, s.qualitySegments(limit-len(out))...)
	out = dedup(out)
	out = append(out, s.randomSegments(limit-len(out), out)...)
	out = dedup(out)

	slices.SortStableFunc(out, func(a, c speech.Candidate) int {
		return cmp.Or(
			cmp.Compare(a.Priority.Rank(), c.Priority.Rank()),
			cmp.Compare(c.QualityOr(0), a.QualityOr(0)),
			cmp.Compare(a.StartMS, c.StartMS),
		)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (b *Builder) intN(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}

// session is the per-call state of one build.
type session struct {
	words               []speech.Word
	minMS, maxMS, bufMS int64
	limit               int
	random              func(int) int
}

func (s *session) issueBased(issues []speech.Issue) []speech.Candidate {
	highBudget := int(math.Floor(float64(s.limit) * highIssueShare))
	totalBudget := int(math.Floor(float64(s.limit) * issueShare))

	var out []speech.Candidate
	take := func(sev speech.Severity, prio speech.Priority, budget int) {
		for _, is := range issues {
			if len(out) >= budget {
				return
			}
			if is.Severity != sev {
				continue
			}
			start, end := s.fitWindow(is.StartMS-s.bufMS, is.EndMS+s.bufMS)
			c, ok := s.candidate(start, end, prio, speech.CandidateIssueBased)
			if !ok {
				continue
			}
			c.IssueKind = is.Kind
			out = append(out, c)
		}
	}
	take(speech.SeverityHigh, speech.PriorityHigh, highBudget)
	take(speech.SeverityMedium, speech.PriorityMedium, totalBudget)
	return out
}

// fitWindow clamps [start, end] to the recording and forces its length into
// [minMS, maxMS] by symmetric expansion or trimming.
func (s *session) fitWindow(start, end int64) (int64, int64) {
	lo, hi := s.words[0].StartMS, s.words[len(s.words)-1].EndMS
	start, end = max(start, lo), min(end, hi)
	if end < start {
		end = start
	}

	switch d := end - start; {
	case d < s.minMS:
		need := s.minMS - d
		start -= need / 2
		end += need - need/2
		// Shift back inside the recording while keeping the length.
		if start < lo {
			end += lo - start
			start = lo
		}
		if end > hi {
			start -= end - hi
			end = hi
		}
		start = max(start, lo)
	case d > s.maxMS:
		mid := start + d/2
		start = mid - s.maxMS/2
		end = start + s.maxMS
	}
	return start, end
}

func (s *session) candidate(start, end int64, prio speech.Priority, src speech.CandidateSource) (speech.Candidate, bool) {
	var inside []speech.Word
	for _, w := range s.words {
		if w.StartMS >= start && w.EndMS <= end {
			inside = append(inside, w)
		}
	}
	if len(inside) == 0 {
		return speech.Candidate{}, false
	}
	c := speech.Candidate{
		StartMS:   inside[0].StartMS,
		EndMS:     inside[len(inside)-1].EndMS,
		Text:      speech.JoinWords(inside),
		Priority:  prio,
		Source:    src,
		WordCount: len(inside),
	}
	c.DurationMS = c.EndMS - c.StartMS
	return c, true
}

// segmentEnd returns the index of the last word of the segment starting at
// word i. Segments end at a natural pause once they reach the minimum
// length, at the target length (midpoint of min and max), or just before
// exceeding the maximum.
func (s *session) segmentEnd(i int) int {
	target := (s.minMS + s.maxMS) / 2
	for j := i; j < len(s.words); j++ {
		d := s.words[j].EndMS - s.words[i].StartMS
		if d > s.maxMS {
			return max(j-1, i)
		}
		if j+1 < len(s.words) && d >= s.minMS && s.words[j+1].StartMS-s.words[j].EndMS > NaturalBreakMS {
			return j
		}
		if d >= target {
			return j
		}
	}
	return len(s.words) - 1
}

func (s *session) segment(i int) (speech.Candidate, int) {
	j := s.segmentEnd(i)
	seg := s.words[i : j+1]
	c := speech.Candidate{
		StartMS:   seg[0].StartMS,
		EndMS:     seg[len(seg)-1].EndMS,
		Text:      speech.JoinWords(seg),
		WordCount: len(seg),
	}
	c.DurationMS = c.EndMS - c.StartMS
	q := Quality(seg)
	c.QualityScore = &q
	return c, j
}

func (s *session) qualitySegments(remaining int) []speech.Candidate {
	budget := min(remaining, int(math.Floor(float64(s.limit)*qualityShare)))
	if budget <= 0 {
		return nil
	}

	var scored []speech.Candidate
	for i := 0; i < len(s.words); {
		c, j := s.segment(i)
		i = j + 1
		if c.DurationMS < s.minMS || c.QualityOr(0) <= MinQuality {
			continue
		}
		c.Source = speech.CandidateQualitySegment
		c.Priority = speech.PriorityMedium
		if c.QualityOr(0) < 0.8 {
			c.Priority = speech.PriorityLow
		}
		scored = append(scored, c)
	}

	slices.SortStableFunc(scored, func(a, b speech.Candidate) int {
		return cmp.Compare(b.QualityOr(0), a.QualityOr(0))
	})
	if len(scored) > budget {
		scored = scored[:budget]
	}
	return scored
}

func (s *session) randomSegments(remaining int, existing []speech.Candidate) []speech.Candidate {
	if remaining <= 0 {
		return nil
	}
	shortRecording := s.words[len(s.words)-1].EndMS-s.words[0].StartMS < s.minMS

	var out []speech.Candidate
	kept := slices.Clone(existing)
	for attempt := 0; attempt < remaining*5 && len(out) < remaining; attempt++ {
		c, _ := s.segment(s.random(len(s.words)))
		if c.DurationMS < s.minMS && !shortRecording {
			continue
		}
		if overlapsAny(c, kept) {
			continue
		}
		c.Source = speech.CandidateRandomSampling
		c.Priority = speech.PriorityLow
		out = append(out, c)
		kept = append(kept, c)
	}
	return out
}

// Overlap returns how much of the shorter of a and b is covered by their
// intersection, in [0,1].
func Overlap(a, b speech.Candidate) float64 {
	inter := min(a.EndMS, b.EndMS) - max(a.StartMS, b.StartMS)
	if inter <= 0 {
		if a.StartMS == b.StartMS && a.EndMS == b.EndMS {
			return 1
		}
		return 0
	}
	shorter := min(a.EndMS-a.StartMS, b.EndMS-b.StartMS)
	if shorter <= 0 {
		return 1
	}
	return float64(inter) / float64(shorter)
}

func overlapsAny(c speech.Candidate, kept []speech.Candidate) bool {
	for _, k := range kept {
		if Overlap(c, k) > MaxOverlapRatio {
			return true
		}
	}
	return false
}

// dedup keeps candidates greedily in priority order, dropping any that
// overlaps an already kept candidate by more than MaxOverlapRatio.
func dedup(cs []speech.Candidate) []speech.Candidate {
	sorted := slices.Clone(cs)
	slices.SortStableFunc(sorted, func(a, b speech.Candidate) int {
		return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
	})
	kept := make([]speech.Candidate, 0, len(sorted))
	for _, c := range sorted {
		if !overlapsAny(c, kept) {
			kept = append(kept, c)
		}
	}
	return kept
}
