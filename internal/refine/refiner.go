// Package refine runs the AI refinement pass over rule-detected delivery
// issues.
//
// The pass has five stages: candidate selection, candidate evaluation,
// per-segment analysis, rule-issue classification, and merge with coaching.
// Every stage tolerates AI failures on its own; [Refiner.RefineAnalysis]
// never returns an error and falls back to the unmodified rule issues when
// no AI call succeeds.
package refine

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/oratio/internal/aiclient"
	"github.com/MrWong99/oratio/internal/cache"
	"github.com/MrWong99/oratio/internal/candidate"
	"github.com/MrWong99/oratio/internal/observe"
	"github.com/MrWong99/oratio/pkg/provider/llm"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Stage names used for spans, metrics and [Metadata.StageDurations].
const (
	StageCandidates = "refine.candidates"
	StageEvaluate   = "refine.evaluate"
	StageSegments   = "refine.segments"
	StageClassify   = "refine.classify"
	StageMerge      = "refine.merge"
)

// Config holds the refiner's tunables.
type Config struct {
	MaxAISegments       int
	MaxConcurrency      int
	ConfidenceThreshold float64
	SimilarityThreshold float64
	KindMatchThreshold  float64
	BatchSize           int
	Temperature         float64
	PromptVersion       string
	CacheTTL            time.Duration

	// SimilarKindGroups lists sets of issue kinds treated as the same
	// problem when deduplicating AI-discovered issues.
	SimilarKindGroups [][]string
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		MaxAISegments:       5,
		MaxConcurrency:      3,
		ConfidenceThreshold: 0.7,
		SimilarityThreshold: 0.3,
		KindMatchThreshold:  0.9,
		BatchSize:           10,
		Temperature:         0.3,
		PromptVersion:       "v1",
		CacheTTL:            cache.DefaultTTL,
		SimilarKindGroups: [][]string{
			{"filler_word", "filler_words", "verbal_crutch", "hesitation"},
			{"slow_pace", "fast_pace", "pace_issue"},
			{"long_pause", "pause_issue"},
			{"clarity_issue", "vague_language", "hedging", "mumbling"},
			{"professionalism", "informal_language", "profanity"},
			{"confidence_issue", "hedging"},
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAISegments <= 0 {
		c.MaxAISegments = def.MaxAISegments
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
	if c.KindMatchThreshold <= 0 {
		c.KindMatchThreshold = def.KindMatchThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.PromptVersion == "" {
		c.PromptVersion = def.PromptVersion
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.SimilarKindGroups == nil {
		c.SimilarKindGroups = def.SimilarKindGroups
	}
	return c
}

// Options carries the per-call speaker context.
type Options struct {
	UserID        string
	UserLevel     string
	SpeechContext string
	Language      string
	Goals         []string
}

func (o Options) level() string {
	if o.UserLevel == "" {
		return "intermediate"
	}
	return o.UserLevel
}

// Insights aggregates what the AI stages learned about the whole session.
type Insights struct {
	AverageScores   map[string]float64 `json:"average_scores,omitempty"`
	Strengths       []string           `json:"strengths,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Validated       int                `json:"validated"`
	FalsePositives  int                `json:"false_positives"`
	NotReviewed     int                `json:"not_reviewed"`
	Discovered      int                `json:"discovered"`
}

// Metadata describes how a refinement run went.
type Metadata struct {
	AnalysisID          string                   `json:"analysis_id"`
	FallbackMode        bool                     `json:"fallback_mode"`
	Error               string                   `json:"error,omitempty"`
	PromptVersion       string                   `json:"prompt_version"`
	CandidatesEvaluated int                      `json:"candidates_evaluated"`
	SegmentsAnalyzed    int                      `json:"segments_analyzed"`
	AICalls             int                      `json:"ai_calls"`
	AIFailures          int                      `json:"ai_failures"`
	CacheHits           int                      `json:"cache_hits"`
	RuleIssues          int                      `json:"rule_issues"`
	RefinedIssues       int                      `json:"refined_issues"`
	Duration            time.Duration            `json:"duration"`
	StageDurations      map[string]time.Duration `json:"stage_durations,omitempty"`
}

// Result is the output of [Refiner.RefineAnalysis].
type Result struct {
	RefinedIssues           []speech.Issue                  `json:"refined_issues"`
	AIInsights              Insights                        `json:"ai_insights"`
	SegmentAnalyses         []SegmentAnalysis               `json:"segment_analyses,omitempty"`
	CoachingRecommendations []speech.CoachingRecommendation `json:"coaching_recommendations"`
	Metadata                Metadata                        `json:"metadata"`
}

// Option configures a [Refiner].
type Option func(*Refiner)

// WithConfig overrides the tunables. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(r *Refiner) {
		r.cfg = cfg.withDefaults()
	}
}

// WithCache sets the result cache. Without one every stage calls the AI.
func WithCache(s cache.Store) Option {
	return func(r *Refiner) {
		r.cache = s
	}
}

// WithCandidateBuilder replaces the default candidate builder.
func WithCandidateBuilder(b *candidate.Builder) Option {
	return func(r *Refiner) {
		r.builder = b
	}
}

// WithMetrics records stage durations and cache lookups.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Refiner) {
		r.metrics = m
	}
}

// Refiner runs the AI refinement pass. It is safe for concurrent use.
type Refiner struct {
	client  *aiclient.Client
	cache   cache.Store
	builder *candidate.Builder
	metrics *observe.Metrics
	cfg     Config
}

// New returns a [Refiner] calling client. A nil client makes every run fall
// back to the rule issues.
func New(client *aiclient.Client, opts ...Option) *Refiner {
	r := &Refiner{
		client: client,
		cfg:    DefaultConfig(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.builder == nil {
		r.builder = candidate.New()
	}
	return r
}

// Config returns the effective configuration.
func (r *Refiner) Config() Config { return r.cfg }

// run is the per-call state of one refinement.
type run struct {
	r    *Refiner
	opts Options

	calls, failures, successes, hits atomic.Int64

	mu       sync.Mutex
	firstErr error
	stages   map[string]time.Duration
}

func (r *Refiner) newRun(opts Options) *run {
	return &run{r: r, opts: opts, stages: make(map[string]time.Duration)}
}

func (rn *run) fail(err error) {
	rn.failures.Add(1)
	rn.mu.Lock()
	if rn.firstErr == nil {
		rn.firstErr = err
	}
	rn.mu.Unlock()
}

func (rn *run) err() error {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.firstErr
}

// stage runs fn inside a span and records its duration.
func (rn *run) stage(ctx context.Context, name string, fn func(ctx context.Context)) {
	start := time.Now()
	ctx, end := observe.StartStage(ctx, rn.r.metrics, name)
	fn(ctx)
	end(nil)
	rn.mu.Lock()
	rn.stages[name] = time.Since(start)
	rn.mu.Unlock()
}

// aiUnusable reports whether every AI call of the run failed.
func (rn *run) aiUnusable() bool {
	return rn.failures.Load() > 0 && rn.successes.Load() == 0 && rn.hits.Load() == 0
}

// RefineAnalysis refines ruleIssues for transcript t. It never returns an
// error: when the AI is unavailable the result carries the rule issues
// unchanged with Metadata.FallbackMode set.
func (r *Refiner) RefineAnalysis(ctx context.Context, t speech.Transcript, ruleIssues []speech.Issue, opts Options) (res Result) {
	start := time.Now()
	rn := r.newRun(opts)
	meta := Metadata{
		AnalysisID:    uuid.NewString(),
		PromptVersion: r.cfg.PromptVersion,
		RuleIssues:    len(ruleIssues),
	}

	defer func() {
		if p := recover(); p != nil {
			res = r.fallback(ruleIssues, meta, fmt.Errorf("refine: panic: %v", p))
			observe.Logger(ctx).Error("refine: recovered from panic", "analysis_id", meta.AnalysisID, "panic", p)
		}
		res.Metadata.Duration = time.Since(start)
	}()

	if r.client == nil {
		return r.fallback(ruleIssues, meta, fmt.Errorf("refine: AI client not configured"))
	}

	var candidates []speech.Candidate
	rn.stage(ctx, StageCandidates, func(context.Context) {
		candidates = r.builder.BuildN(t, ruleIssues, 2*r.cfg.MaxAISegments)
	})

	var selected []speech.Candidate
	rn.stage(ctx, StageEvaluate, func(ctx context.Context) {
		selected = rn.selectCandidates(ctx, candidates)
	})

	var analyses []SegmentAnalysis
	rn.stage(ctx, StageSegments, func(ctx context.Context) {
		analyses = rn.analyzeSegments(ctx, selected, ruleIssues)
	})

	var classified []speech.Issue
	var tally classifyTally
	rn.stage(ctx, StageClassify, func(ctx context.Context) {
		classified, tally = rn.classify(ctx, ruleIssues)
	})

	meta.CandidatesEvaluated = len(candidates)
	meta.SegmentsAnalyzed = len(analyses)
	rn.fill(&meta)

	if err := ctx.Err(); err != nil {
		return r.fallback(ruleIssues, meta, fmt.Errorf("refine: %w", err))
	}
	if rn.aiUnusable() {
		return r.fallback(ruleIssues, meta, fmt.Errorf("refine: all AI calls failed: %w", rn.err()))
	}

	var refined []speech.Issue
	var discovered int
	var coaching []speech.CoachingRecommendation
	rn.stage(ctx, StageMerge, func(ctx context.Context) {
		refined, discovered = rn.merge(t, classified, analyses)
		coaching = rn.coaching(ctx, refined, analyses)
	})

	rn.fill(&meta)
	meta.RefinedIssues = len(refined)
	res = Result{
		RefinedIssues:           refined,
		AIInsights:              insights(analyses, tally, discovered),
		SegmentAnalyses:         analyses,
		CoachingRecommendations: coaching,
		Metadata:                meta,
	}
	observe.Logger(ctx).Debug("refine: completed",
		"analysis_id", meta.AnalysisID,
		"segments", meta.SegmentsAnalyzed,
		"ai_calls", meta.AICalls,
		"cache_hits", meta.CacheHits,
		"refined_issues", meta.RefinedIssues,
	)
	return res
}

func (rn *run) fill(m *Metadata) {
	m.AICalls = int(rn.calls.Load())
	m.AIFailures = int(rn.failures.Load())
	m.CacheHits = int(rn.hits.Load())
	rn.mu.Lock()
	m.StageDurations = make(map[string]time.Duration, len(rn.stages))
	for k, v := range rn.stages {
		m.StageDurations[k] = v
	}
	rn.mu.Unlock()
}

// fallback returns the rule issues unchanged with a deterministic coaching
// stub.
func (r *Refiner) fallback(ruleIssues []speech.Issue, meta Metadata, err error) Result {
	meta.FallbackMode = true
	meta.Error = err.Error()
	meta.RefinedIssues = len(ruleIssues)
	slog.Error("refine: falling back to rule issues", "analysis_id", meta.AnalysisID, "err", err)
	return Result{
		RefinedIssues:           slices.Clone(ruleIssues),
		CoachingRecommendations: fallbackCoaching(ruleIssues),
		Metadata:                meta,
	}
}

// cached looks key up in the cache, calling the AI on a miss. Only valid
// replies are stored. valid may be nil.
func cached[T any](ctx context.Context, rn *run, purpose, key string, msgs []llm.Message, valid func(T) error) (T, error) {
	if v, ok := lookup[T](ctx, rn, purpose, key); ok {
		rn.hits.Add(1)
		return v, nil
	}

	rn.calls.Add(1)
	v, err := aiclient.Decode[T](ctx, rn.r.client, purpose, msgs, rn.r.cfg.Temperature).Get()
	if err == nil && valid != nil {
		if verr := valid(v); verr != nil {
			err = &aiclient.Error{Kind: aiclient.KindMalformed, Err: fmt.Errorf("%s: %w", purpose, verr)}
		}
	}
	if err != nil {
		rn.fail(err)
		var zero T
		return zero, err
	}
	rn.successes.Add(1)
	store(ctx, rn, purpose, key, v)
	return v, nil
}

func lookup[T any](ctx context.Context, rn *run, purpose, key string) (T, bool) {
	var zero T
	if rn.r.cache == nil {
		return zero, false
	}
	data, ok, err := rn.r.cache.Get(ctx, key, rn.r.cfg.CacheTTL)
	switch {
	case err != nil:
		observe.Logger(ctx).Warn("refine: cache read failed", "purpose", purpose, "err", err)
		rn.r.recordCache(ctx, purpose, "error")
		return zero, false
	case !ok:
		rn.r.recordCache(ctx, purpose, "miss")
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		rn.r.recordCache(ctx, purpose, "miss")
		return zero, false
	}
	rn.r.recordCache(ctx, purpose, "hit")
	return v, true
}

func store[T any](ctx context.Context, rn *run, purpose, key string, v T) {
	if rn.r.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := rn.r.cache.Set(ctx, key, data, rn.r.cfg.CacheTTL); err != nil {
		observe.Logger(ctx).Warn("refine: cache write failed", "purpose", purpose, "err", err)
	}
}

func (r *Refiner) recordCache(ctx context.Context, purpose, result string) {
	if r.metrics != nil {
		r.metrics.RecordCacheLookup(ctx, purpose, result)
	}
}

// fanOut calls fn for every index with at most limit calls in flight and
// returns the results in index order. A panicking call yields the zero
// value and is counted as a failure.
func fanOut[T any](ctx context.Context, rn *run, limit, n int, fn func(ctx context.Context, i int) T) []T {
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range n {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					rn.fail(fmt.Errorf("refine: panic: %v", p))
				}
			}()
			out[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func byStart(a, b speech.Issue) int {
	return cmp.Or(
		cmp.Compare(a.StartMS, b.StartMS),
		cmp.Compare(a.Severity.Rank(), b.Severity.Rank()),
	)
}
