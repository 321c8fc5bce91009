// Package analysis runs the full speech analysis pipeline for one recording:
// rule detection, metrics, AI refinement, recommendations and achievements.
//
// Stages run sequentially. Detection and metrics failures abort the run;
// refinement and history lookups degrade instead.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/oratio/internal/achievement"
	"github.com/MrWong99/oratio/internal/detect"
	"github.com/MrWong99/oratio/internal/history"
	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/internal/observe"
	"github.com/MrWong99/oratio/internal/recommend"
	"github.com/MrWong99/oratio/internal/refine"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Stage names recorded as spans and in the stage-duration histogram.
const (
	StageDetect       = "detect"
	StageMetrics      = "metrics"
	StageRefine       = "refine"
	StageHistory      = "history"
	StageRecommend    = "recommend"
	StageAchievements = "achievements"
)

// ErrNoTranscript is returned when the request has no timed words.
var ErrNoTranscript = errors.New("analysis: transcript has no words")

// Request is one recording to analyse.
type Request struct {
	UserID        string
	Language      string
	SpeechContext string
	UserLevel     string
	Goals         []string
	Transcript    speech.Transcript
}

// Report is the result of one pipeline run.
type Report struct {
	ID            string                          `json:"id"`
	UserID        string                          `json:"user_id,omitempty"`
	Language      string                          `json:"language"`
	CreatedAt     time.Time                       `json:"created_at"`
	Metrics       speech.MetricsResult            `json:"metrics"`
	Summary       detect.Summary                  `json:"summary"`
	RuleIssues    []speech.Issue                  `json:"rule_issues"`
	Issues        []speech.Issue                  `json:"issues"`
	AIInsights    refine.Insights                 `json:"ai_insights"`
	Segments      []refine.SegmentAnalysis        `json:"segment_analyses,omitempty"`
	Coaching      []speech.CoachingRecommendation `json:"coaching"`
	Refinement    refine.Metadata                 `json:"refinement"`
	Plan          recommend.Plan                  `json:"plan"`
	Achievements  []speech.Achievement            `json:"achievements"`
	Tips          []achievement.Tip               `json:"tips"`
	HistoryFailed bool                            `json:"history_failed,omitempty"`
	Duration      time.Duration                   `json:"duration"`
}

// Session returns the history record of the analysed recording.
func (r *Report) Session() history.Session {
	return history.Session{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    history.StatusCompleted,
		CreatedAt: r.CreatedAt,
		Metrics:   r.Metrics,
		Issues:    r.Issues,
	}
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithRefiner enables AI refinement. Without it the rule issues are used
// as they are.
func WithRefiner(r *refine.Refiner) Option {
	return func(a *Analyzer) {
		a.refiner = r
	}
}

// WithHistory sets the provider of earlier sessions.
func WithHistory(p history.Provider) Option {
	return func(a *Analyzer) {
		a.history = p
	}
}

// WithAchievements replaces the default achievement detector.
func WithAchievements(d *achievement.Detector) Option {
	return func(a *Analyzer) {
		a.achievements = d
	}
}

// WithMetrics records stage durations, issue counts and run outcomes.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithClock sets the source of the report timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// Analyzer runs the pipeline. It is safe for concurrent use.
type Analyzer struct {
	detector     *detect.Detector
	refiner      *refine.Refiner
	history      history.Provider
	achievements *achievement.Detector
	metrics      *observe.Metrics
	now          func() time.Time
}

// New returns an [Analyzer] using detector for rule detection.
func New(detector *detect.Detector, opts ...Option) *Analyzer {
	a := &Analyzer{detector: detector, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if a.achievements == nil {
		a.achievements = achievement.New(achievement.WithClock(a.now))
	}
	return a
}

// Analyze runs every stage for req.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (rep *Report, err error) {
	start := time.Now()
	if a.metrics != nil {
		a.metrics.ActiveAnalyses.Add(ctx, 1)
		defer a.metrics.ActiveAnalyses.Add(ctx, -1)
	}
	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case rep.Refinement.FallbackMode:
			status = "fallback"
		}
		if a.metrics != nil {
			a.metrics.RecordAnalysis(ctx, status)
		}
	}()

	if len(req.Transcript.Words) == 0 {
		return nil, ErrNoTranscript
	}
	if req.SpeechContext == "" {
		req.SpeechContext = recommend.ContextGeneral
	}
	log := observe.Logger(ctx).With("user_id", req.UserID, "language", req.Language)

	rep = &Report{UserID: req.UserID, Language: req.Language, CreatedAt: a.now()}

	if err := a.stage(ctx, StageDetect, func(context.Context) error {
		var derr error
		rep.RuleIssues, derr = a.detector.Detect(req.Transcript, req.Language)
		return derr
	}); err != nil {
		return nil, fmt.Errorf("analysis: detect: %w", err)
	}
	rep.Summary = detect.Summarize(req.Transcript, rep.RuleIssues)

	if err := a.stage(ctx, StageMetrics, func(context.Context) error {
		var merr error
		rep.Metrics, merr = metrics.Compute(req.Transcript, rep.RuleIssues)
		return merr
	}); err != nil {
		return nil, fmt.Errorf("analysis: metrics: %w", err)
	}

	_ = a.stage(ctx, StageRefine, func(ctx context.Context) error {
		a.refine(ctx, req, rep)
		return nil
	})
	if rep.Refinement.FallbackMode && a.metrics != nil {
		a.metrics.RecordFallback(ctx, StageRefine)
	}

	var past []history.Session
	_ = a.stage(ctx, StageHistory, func(ctx context.Context) error {
		if a.history == nil || req.UserID == "" {
			return nil
		}
		var herr error
		past, herr = a.history.CompletedSessions(ctx, req.UserID)
		if herr != nil {
			log.Warn("analysis: history unavailable, treating as empty", "err", herr)
			rep.HistoryFailed = true
			past = nil
		}
		return herr
	})

	_ = a.stage(ctx, StageRecommend, func(context.Context) error {
		rep.Plan = recommend.Recommend(recommend.Input{
			Metrics:       rep.Metrics,
			Issues:        rep.Issues,
			History:       past,
			SpeechContext: req.SpeechContext,
		})
		return nil
	})

	_ = a.stage(ctx, StageAchievements, func(context.Context) error {
		sessions := append(past[:len(past):len(past)], rep.Session())
		rep.Achievements = a.achievements.Detect(sessions)
		rep.Tips = achievement.MicroTips(rep.Metrics, rep.Issues)
		return nil
	})

	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	a.recordIssues(ctx, rep.Issues)
	rep.Duration = time.Since(start)
	log.Info("analysis complete",
		"analysis_id", rep.ID,
		"score", rep.Metrics.OverallScore,
		"grade", rep.Metrics.Grade,
		"rule_issues", len(rep.RuleIssues),
		"issues", len(rep.Issues),
		"fallback", rep.Refinement.FallbackMode,
		"duration", rep.Duration,
	)
	return rep, nil
}

func (a *Analyzer) refine(ctx context.Context, req Request, rep *Report) {
	if a.refiner == nil {
		rep.Issues = rep.RuleIssues
		rep.Coaching = []speech.CoachingRecommendation{}
		return
	}
	res := a.refiner.RefineAnalysis(ctx, req.Transcript, rep.RuleIssues, refine.Options{
		UserID:        req.UserID,
		UserLevel:     req.UserLevel,
		SpeechContext: req.SpeechContext,
		Language:      req.Language,
		Goals:         req.Goals,
	})
	rep.ID = res.Metadata.AnalysisID
	rep.Issues = res.RefinedIssues
	rep.AIInsights = res.AIInsights
	rep.Segments = res.SegmentAnalyses
	rep.Coaching = res.CoachingRecommendations
	rep.Refinement = res.Metadata
}

func (a *Analyzer) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, end := observe.StartStage(ctx, a.metrics, name)
	err := fn(ctx)
	end(err)
	return err
}

func (a *Analyzer) recordIssues(ctx context.Context, issues []speech.Issue) {
	if a.metrics == nil {
		return
	}
	type key struct {
		source   speech.Source
		category string
	}
	counts := make(map[key]int)
	for _, is := range issues {
		counts[key{is.Source, is.Category}]++
	}
	for k, n := range counts {
		a.metrics.RecordIssues(ctx, string(k.source), k.category, n)
	}
}
