// Package recommend ranks a session's weaknesses into a weekly coaching
// plan.
//
// Every metric that misses its threshold becomes an improvement area with a
// priority score:
//
//	100 × (impact×0.4 + transferability×0.3 + effort_ratio×0.2 + context×0.1)
//
// The two best areas are this week's focus, the next three are secondary,
// and the rest are long-term goals.
package recommend

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/MrWong99/oratio/internal/history"
	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Plan limits.
const (
	focusCount       = 2
	secondaryCount   = 3
	quickWinCount    = 2
	quickWinScore    = 60
	quickWinEffort   = 2
	practicePlanSize = 3
)

// Trend labels.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Input is everything the recommender looks at.
type Input struct {
	Metrics speech.MetricsResult
	Issues  []speech.Issue

	// History holds the user's earlier completed sessions, oldest first,
	// excluding the current one.
	History []history.Session

	// SpeechContext is interview, presentation or general (the default).
	SpeechContext string
}

// PracticeItem is the practice routine for one focus area.
type PracticeItem struct {
	Area     string `json:"area"`
	Daily    string `json:"daily"`
	Weekly   string `json:"weekly"`
	Tracking string `json:"tracking"`
}

// Plan is the recommender's output.
type Plan struct {
	FirstSession   bool                     `json:"first_session"`
	FocusThisWeek  []speech.ImprovementArea `json:"focus_this_week"`
	SecondaryFocus []speech.ImprovementArea `json:"secondary_focus"`
	LongTermGoals  []speech.ImprovementArea `json:"long_term_goals"`
	QuickWins      []speech.ImprovementArea `json:"quick_wins"`
	PracticePlan   []PracticeItem           `json:"practice_plan"`
	Trends         map[string]string        `json:"trends,omitempty"`
}

// All returns every recommended area in priority order.
func (p Plan) All() []speech.ImprovementArea {
	out := slices.Clone(p.FocusThisWeek)
	out = append(out, p.SecondaryFocus...)
	return append(out, p.LongTermGoals...)
}

// Recommend builds the plan for in. A user without history gets a single
// baseline recommendation.
func Recommend(in Input) Plan {
	if len(in.History) == 0 {
		return Plan{
			FirstSession:  true,
			FocusThisWeek: []speech.ImprovementArea{baseline()},
		}
	}

	trends := Trends(in)
	areas := Areas(in.Metrics, in.Issues, in.SpeechContext)
	for i := range areas {
		areas[i].Trend = trends[areas[i].Type]
	}

	p := Plan{Trends: trends}
	for i, a := range areas {
		switch {
		case i < focusCount:
			p.FocusThisWeek = append(p.FocusThisWeek, a)
		case i < focusCount+secondaryCount:
			p.SecondaryFocus = append(p.SecondaryFocus, a)
		default:
			p.LongTermGoals = append(p.LongTermGoals, a)
		}
		if len(p.QuickWins) < quickWinCount && a.PriorityScore > quickWinScore && a.EffortLevel <= quickWinEffort {
			p.QuickWins = append(p.QuickWins, a)
		}
	}
	for _, a := range areas[:min(practicePlanSize, len(areas))] {
		p.PracticePlan = append(p.PracticePlan, practiceItem(a))
	}
	return p
}

func baseline() speech.ImprovementArea {
	return speech.ImprovementArea{
		Type:           AreaBaseline,
		Severity:       speech.SeverityLow,
		PriorityScore:  100,
		EffortLevel:    1,
		EstimatedWeeks: 1,
		ActionableSteps: []string{
			"Record a second session of two to five minutes",
			"Speak on a similar topic so the sessions are comparable",
		},
	}
}

func practiceItem(a speech.ImprovementArea) PracticeItem {
	pr := practice[a.Type]
	track := fmt.Sprintf("Track %s after every session, aiming for %s", tracking[a.Type], formatValue(a.Type, a.TargetValue))
	if a.Trend != "" {
		track += fmt.Sprintf(" (currently %s)", a.Trend)
	}
	return PracticeItem{Area: a.Type, Daily: pr.daily, Weekly: pr.weekly, Tracking: track}
}

func formatValue(area string, v float64) string {
	switch area {
	case AreaFillerWords:
		return fmt.Sprintf("%.0f per 100 words", v*100)
	case AreaPace:
		return fmt.Sprintf("%.0f", v)
	case AreaPauses, AreaProfessionalism:
		return fmt.Sprintf("at most %.0f", v)
	}
	return fmt.Sprintf("%.0f/100", v*100)
}

// Value extracts the metric an area is judged on. Fractions are in [0,1];
// pace is in words per minute; pauses and professionalism are counts.
func Value(area string, m speech.MetricsResult, issues []speech.Issue) float64 {
	switch area {
	case AreaFillerWords:
		return m.Clarity.Fillers.Rate / 100
	case AreaPace:
		return m.Speaking.WPM
	case AreaClarity:
		return m.Clarity.Score / 100
	case AreaEngagement:
		return m.Engagement.Score / 100
	case AreaFluency:
		return m.Fluency.Score / 100
	case AreaPauses:
		return float64(m.Clarity.Pauses.LongPauseCount)
	case AreaProfessionalism:
		n := 0
		for _, is := range issues {
			if is.Category == speech.CategoryProfessionalism {
				n++
			}
		}
		return float64(n)
	}
	return 0
}

// areaOrder fixes the evaluation order so ties sort deterministically.
var areaOrder = []string{
	AreaFillerWords, AreaPace, AreaClarity, AreaEngagement,
	AreaFluency, AreaPauses, AreaProfessionalism,
}

// Areas returns the improvement areas of a session, highest priority first.
func Areas(m speech.MetricsResult, issues []speech.Issue, speechContext string) []speech.ImprovementArea {
	var out []speech.ImprovementArea
	for _, area := range areaOrder {
		if a, ok := evaluate(area, Value(area, m, issues), speechContext); ok {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b speech.ImprovementArea) int {
		return cmp.Compare(b.PriorityScore, a.PriorityScore)
	})
	return out
}

func evaluate(area string, current float64, speechContext string) (speech.ImprovementArea, bool) {
	var (
		target, gap, contrib float64
		sev                  speech.Severity
	)
	if area == AreaPace {
		var dev float64
		switch {
		case current < paceMin:
			target, dev = paceSlowTarget, paceMin-current
		case current > paceMax:
			target, dev = paceFastTarget, current-paceMax
		default:
			return speech.ImprovementArea{}, false
		}
		gap = math.Abs(current-target) / target
		contrib = paceMaxContrib
		sev = severity(dev > paceHighBand, dev > paceMediumBand)
	} else {
		th := thresholds[area]
		target, contrib = th.target, th.maxContribution
		if th.lowerIsBetter {
			if current <= th.trigger {
				return speech.ImprovementArea{}, false
			}
			gap = (current - target) / current
			sev = severity(current > th.high, current > th.medium)
		} else {
			if current >= th.trigger {
				return speech.ImprovementArea{}, false
			}
			gap = (target - current) / target
			sev = severity(current < th.high, current < th.medium)
		}
	}

	capped := metrics.Clamp(gap, 0, contrib)
	score := PriorityScore(area, capped/maxImpact, speechContext)
	weeks := 2 * difficulty[area]
	if sev == speech.SeverityHigh {
		weeks += 2
	}
	return speech.ImprovementArea{
		Type:                 area,
		CurrentValue:         current,
		TargetValue:          target,
		Severity:             sev,
		PotentialImprovement: metrics.Round1(capped * 100),
		PriorityScore:        score,
		EffortLevel:          difficulty[area],
		EstimatedWeeks:       weeks,
		ActionableSteps:      slices.Clone(actionableSteps[area]),
	}, true
}

func severity(high, medium bool) speech.Severity {
	switch {
	case high:
		return speech.SeverityHigh
	case medium:
		return speech.SeverityMedium
	}
	return speech.SeverityLow
}

// PriorityScore combines a normalised impact in [0,1] with the area's fixed
// transferability, effort and context relevance into a score in [0,100].
func PriorityScore(area string, impact float64, speechContext string) float64 {
	rel, ok := contextRelevance[speechContext]
	if !ok {
		rel = contextRelevance[ContextGeneral]
	}
	effortRatio := float64(5-difficulty[area]) / 4
	s := impact*weightImpact +
		transferability[area]*weightTransferability +
		effortRatio*weightEffort +
		rel[area]*weightContext
	return metrics.Round1(metrics.Clamp(100*s, 0, 100))
}
