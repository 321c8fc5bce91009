// Package metrics computes the quantitative speaking metrics of a session:
// basic counts, pace, clarity, fluency and engagement, and the weighted
// overall score with its letter grade.
//
// All functions are pure. [Compute] is all-or-nothing: any failure while
// computing the battery is reported as a single *[Error] and no partial
// result is returned.
package metrics

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/oratio/pkg/speech"
)

// ErrEmptyTranscript is wrapped by [Compute] when the transcript has no
// timed words.
var ErrEmptyTranscript = errors.New("empty transcript")

// Error is the single error type returned by [Compute].
type Error struct {
	Err error
}

func (e *Error) Error() string { return "metrics: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Weights of the clarity sub-scores.
const (
	ClarityWeightFiller       = 0.30
	ClarityWeightPace         = 0.25
	ClarityWeightPause        = 0.20
	ClarityWeightArticulation = 0.15
	ClarityWeightFluency      = 0.10
)

// Weights of the overall score.
const (
	WeightPace       = 0.25
	WeightClarity    = 0.35
	WeightFluency    = 0.25
	WeightEngagement = 0.15
)

// Component score names used in [speech.MetricsResult.ComponentScores].
const (
	ComponentPace         = "pace"
	ComponentClarity      = "clarity"
	ComponentFluency      = "fluency"
	ComponentEngagement   = "engagement"
	ComponentFillers      = "filler_words"
	ComponentPauses       = "pauses"
	ComponentArticulation = "articulation"
	ComponentConsistency  = "pace_consistency"
)

// componentLabels is the fixed reporting order of strengths and areas.
var componentLabels = []struct {
	name     string
	strength string
	area     string
}{
	{ComponentPace, "Well-judged speaking pace", "Bring your speaking pace closer to 140-160 words per minute"},
	{ComponentClarity, "Clear, easy-to-follow delivery", "Improve overall clarity"},
	{ComponentFluency, "Smooth, fluent flow", "Reduce hesitations and restarts"},
	{ComponentEngagement, "Energetic and engaging delivery", "Add vocal energy and emphasis"},
	{ComponentFillers, "Very few filler words", "Cut down on filler words"},
	{ComponentPauses, "Purposeful use of pauses", "Shorten long pauses"},
	{ComponentArticulation, "Crisp articulation", "Articulate words more clearly"},
	{ComponentConsistency, "Steady, consistent pace", "Keep your pace more consistent"},
}

// Thresholds for strengths and areas for improvement.
const (
	StrengthThreshold    = 80.0
	ImprovementThreshold = 60.0
)

var sentenceEndRe = regexp.MustCompile(`[.!?]+`)

// ScoreToGrade maps an overall score in [0,100] to a letter grade.
func ScoreToGrade(score float64) string {
	switch {
	case score >= 97:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	}
	return "F"
}

// Compute returns the full metrics battery for t. issues are the delivery
// issues detected for the session; they feed the articulation fallback when
// the recogniser reports no word confidence.
func Compute(t speech.Transcript, issues []speech.Issue) (res speech.MetricsResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = speech.MetricsResult{}
			err = &Error{Err: fmt.Errorf("panic during computation: %v", r)}
		}
	}()

	if len(t.Words) == 0 {
		return speech.MetricsResult{}, &Error{Err: ErrEmptyTranscript}
	}
	if verr := t.Validate(); verr != nil {
		return speech.MetricsResult{}, &Error{Err: verr}
	}
	if strings.TrimSpace(t.Text) == "" {
		t.Text = speech.JoinWords(t.Words)
	}

	res.Basic = basicMetrics(t)
	res.Speaking = speakingMetrics(t)
	res.Fluency = FluencyMetrics(t)
	res.Engagement = EngagementMetrics(t)

	fillers := fillerMetrics(t.Text, res.Basic.WordCount)
	pauses := PauseMetrics(t.Words)
	articulation := ArticulationScore(t.Words, issues)
	fillerPenalty := Clamp(100-fillers.Rate, 0, 100)

	clarity := fillerPenalty*ClarityWeightFiller +
		res.Speaking.PaceScore*ClarityWeightPace +
		pauses.QualityScore*ClarityWeightPause +
		articulation*ClarityWeightArticulation +
		res.Fluency.Score*ClarityWeightFluency
	res.Clarity = speech.ClarityMetrics{
		Score:             Round1(Clamp(clarity, 0, 100)),
		FillerPenalty:     Round1(fillerPenalty),
		ArticulationScore: Round1(articulation),
		Fillers:           fillers,
		Pauses:            pauses,
	}

	overall := res.Speaking.PaceScore*WeightPace +
		res.Clarity.Score*WeightClarity +
		res.Fluency.Score*WeightFluency +
		res.Engagement.Score*WeightEngagement
	res.OverallScore = Round1(Clamp(overall, 0, 100))
	res.Grade = ScoreToGrade(res.OverallScore)

	res.ComponentScores = map[string]float64{
		ComponentPace:         res.Speaking.PaceScore,
		ComponentClarity:      res.Clarity.Score,
		ComponentFluency:      res.Fluency.Score,
		ComponentEngagement:   res.Engagement.Score,
		ComponentFillers:      res.Clarity.FillerPenalty,
		ComponentPauses:       pauses.QualityScore,
		ComponentArticulation: res.Clarity.ArticulationScore,
		ComponentConsistency:  res.Speaking.PaceConsistency,
	}
	res.Strengths, res.AreasForImprovement = assess(res.ComponentScores)
	return res, nil
}

func basicMetrics(t speech.Transcript) speech.BasicMetrics {
	toks := tokens(t.Text)
	unique := make(map[string]struct{}, len(toks))
	letters := 0
	for _, tok := range toks {
		unique[tok] = struct{}{}
		letters += len([]rune(tok))
	}

	dur := t.DurationMS()
	m := speech.BasicMetrics{
		WordCount:       t.WordCount(),
		DurationMS:      dur,
		DurationMinutes: float64(dur) / msPerMinute,
		UniqueWords:     len(unique),
		SentenceCount:   len(sentenceEndRe.FindAllStringIndex(t.Text, -1)),
	}
	if len(toks) > 0 {
		m.VocabularyDiversity = float64(len(unique)) / float64(len(toks))
		m.AvgWordLength = Round1(float64(letters) / float64(len(toks)))
	}
	if m.SentenceCount == 0 && len(toks) > 0 {
		m.SentenceCount = 1
	}
	return m
}

// ArticulationScore estimates articulation from the recogniser's mean word
// confidence (×100). Without confidence data it starts at 100 and loses 10
// points per clarity issue, floored at 0.
func ArticulationScore(words []speech.Word, issues []speech.Issue) float64 {
	var confs []float64
	for _, w := range words {
		if w.Confidence != nil {
			confs = append(confs, Clamp(*w.Confidence, 0, 1))
		}
	}
	if len(confs) > 0 {
		return Mean(confs) * 100
	}
	n := 0
	for _, is := range issues {
		if is.Category == speech.CategoryClarity {
			n++
		}
	}
	return max(0, 100-10*float64(n))
}

func assess(scores map[string]float64) (strengths, areas []string) {
	strengths, areas = []string{}, []string{}
	for _, c := range componentLabels {
		s, ok := scores[c.name]
		if !ok {
			continue
		}
		switch {
		case s >= StrengthThreshold:
			strengths = append(strengths, c.strength)
		case s < ImprovementThreshold:
			areas = append(areas, c.area)
		}
	}
	return strengths, areas
}
