package refine

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/MrWong99/oratio/internal/cache"
	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Segment confidence: a base value raised when the reply carries specific
// recommendations and when its sub-scores agree with each other.
const (
	baseConfidence          = 0.7
	recommendationBonus     = 0.1
	consistencyBonus        = 0.1
	consistentScoreVariance = 20.0
)

var errNoAssessment = errors.New("reply has no overall_assessment")

// Evaluation is the AI's triage verdict for one candidate.
type Evaluation struct {
	Recommended  bool     `json:"recommended_for_ai_analysis"`
	OverallScore float64  `json:"overall_score"`
	Reasons      []string `json:"reasons,omitempty"`
	FocusAreas   []string `json:"focus_areas,omitempty"`
}

// Assessment holds the AI's sub-scores of a segment, each in [0,100].
type Assessment struct {
	Summary         string  `json:"summary"`
	Clarity         float64 `json:"clarity"`
	Confidence      float64 `json:"confidence"`
	Engagement      float64 `json:"engagement"`
	Professionalism float64 `json:"professionalism"`
	Pace            float64 `json:"pace"`
}

func (a Assessment) scores() []float64 {
	return []float64{a.Clarity, a.Confidence, a.Engagement, a.Professionalism, a.Pace}
}

// ImprovementArea is one problem the AI found in a segment.
type ImprovementArea struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Text        string `json:"text,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
}

type segmentReply struct {
	OverallAssessment       *Assessment       `json:"overall_assessment"`
	ImprovementAreas        []ImprovementArea `json:"improvement_areas"`
	Strengths               []string          `json:"strengths"`
	SpecificRecommendations []string          `json:"specific_recommendations"`
}

// SegmentAnalysis is the AI's detailed review of one selected candidate.
type SegmentAnalysis struct {
	Segment          speech.Candidate  `json:"segment"`
	Assessment       Assessment        `json:"assessment"`
	ImprovementAreas []ImprovementArea `json:"improvement_areas,omitempty"`
	Strengths        []string          `json:"strengths,omitempty"`
	Recommendations  []string          `json:"recommendations,omitempty"`
	Confidence       float64           `json:"confidence"`
}

// EvaluateCandidate asks the AI whether c deserves a detailed review.
func (r *Refiner) EvaluateCandidate(ctx context.Context, c speech.Candidate) (Evaluation, error) {
	return r.newRun(Options{}).evaluate(ctx, c)
}

// AnalyzeSegment runs the detailed review of c. issues are the rule issues
// of the whole session; those inside c are passed to the AI as context.
func (r *Refiner) AnalyzeSegment(ctx context.Context, c speech.Candidate, issues []speech.Issue, opts Options) (SegmentAnalysis, error) {
	return r.newRun(opts).analyze(ctx, c, issues)
}

func (rn *run) evaluate(ctx context.Context, c speech.Candidate) (Evaluation, error) {
	key := cache.Key(purposeEvaluate, c.Text, rn.r.cfg.PromptVersion)
	return cached[Evaluation](ctx, rn, purposeEvaluate, key, messages(purposeEvaluate, evaluateMessage(c)), nil)
}

// selectCandidates keeps the candidates the AI recommends, best first, up to
// MaxAISegments. A failed evaluation counts as not recommended.
// Evaluations run sequentially; only segment analysis fans out.
func (rn *run) selectCandidates(ctx context.Context, cs []speech.Candidate) []speech.Candidate {
	type scored struct {
		c     speech.Candidate
		score float64
	}
	var kept []scored
	for _, c := range cs {
		if ctx.Err() != nil {
			break
		}
		ev, err := rn.evaluate(ctx, c)
		if err != nil || !ev.Recommended {
			continue
		}
		kept = append(kept, scored{c: c, score: ev.OverallScore})
	}
	slices.SortStableFunc(kept, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(kept) > rn.r.cfg.MaxAISegments {
		kept = kept[:rn.r.cfg.MaxAISegments]
	}
	out := make([]speech.Candidate, len(kept))
	for i, k := range kept {
		out[i] = k.c
	}
	return out
}

func (rn *run) analyze(ctx context.Context, c speech.Candidate, issues []speech.Issue) (SegmentAnalysis, error) {
	var inside []speech.Issue
	for _, is := range issues {
		if is.Overlaps(c.StartMS, c.EndMS) {
			inside = append(inside, is)
		}
	}
	level := rn.opts.level()
	key := cache.Key(purposeSegment, c.Text, level, rn.r.cfg.PromptVersion)
	reply, err := cached(ctx, rn, purposeSegment, key, messages(purposeSegment, segmentMessage(c, level, inside)),
		func(r segmentReply) error {
			if r.OverallAssessment == nil {
				return errNoAssessment
			}
			return nil
		})
	if err != nil {
		return SegmentAnalysis{}, err
	}
	return SegmentAnalysis{
		Segment:          c,
		Assessment:       *reply.OverallAssessment,
		ImprovementAreas: reply.ImprovementAreas,
		Strengths:        reply.Strengths,
		Recommendations:  reply.SpecificRecommendations,
		Confidence:       segmentConfidence(reply),
	}, nil
}

func segmentConfidence(r segmentReply) float64 {
	conf := baseConfidence
	if len(r.SpecificRecommendations) > 0 {
		conf += recommendationBonus
	}
	if r.OverallAssessment != nil && metrics.Variance(r.OverallAssessment.scores()) < consistentScoreVariance {
		conf += consistencyBonus
	}
	return metrics.Round1(metrics.Clamp(conf, 0, 1))
}

// analyzeSegments reviews the selected candidates concurrently. Failed
// reviews are dropped; the rest are ordered by segment start.
func (rn *run) analyzeSegments(ctx context.Context, cs []speech.Candidate, issues []speech.Issue) []SegmentAnalysis {
	type outcome struct {
		a  SegmentAnalysis
		ok bool
	}
	res := fanOut(ctx, rn, rn.r.cfg.MaxConcurrency, len(cs), func(ctx context.Context, i int) outcome {
		a, err := rn.analyze(ctx, cs[i], issues)
		return outcome{a: a, ok: err == nil}
	})

	var out []SegmentAnalysis
	for _, o := range res {
		if o.ok {
			out = append(out, o.a)
		}
	}
	slices.SortStableFunc(out, func(a, b SegmentAnalysis) int {
		return cmp.Compare(a.Segment.StartMS, b.Segment.StartMS)
	})
	return out
}
