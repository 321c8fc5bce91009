package recommend_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/oratio/internal/history"
	"github.com/MrWong99/oratio/internal/recommend"
	"github.com/MrWong99/oratio/pkg/speech"
)

func sessionMetrics(fillerPct, wpm, clarity, engagement, fluency float64, longPauses int) speech.MetricsResult {
	var m speech.MetricsResult
	m.Clarity.Fillers.Rate = fillerPct
	m.Speaking.WPM = wpm
	m.Clarity.Score = clarity
	m.Engagement.Score = engagement
	m.Fluency.Score = fluency
	m.Clarity.Pauses.LongPauseCount = longPauses
	return m
}

func pastSessions(n int, m speech.MetricsResult) []history.Session {
	out := make([]history.Session, n)
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = history.Session{ID: string(rune('a' + i)), UserID: "u1", CreatedAt: start.AddDate(0, 0, i), Metrics: m}
	}
	return out
}

// approx reports whether got is within rounding distance of want.
func approx(got, want float64) bool { return math.Abs(got-want) < 0.05 }

func TestRecommend_FirstSession(t *testing.T) {
	t.Parallel()

	p := recommend.Recommend(recommend.Input{Metrics: sessionMetrics(10, 100, 40, 40, 40, 8)})

	if !p.FirstSession {
		t.Fatal("FirstSession = false with no history")
	}
	all := p.All()
	if len(all) != 1 {
		t.Fatalf("areas = %+v, want the baseline only", all)
	}
	if all[0].Type != recommend.AreaBaseline || all[0].PriorityScore != 100 {
		t.Errorf("area = %+v, want %s at priority 100", all[0], recommend.AreaBaseline)
	}
	if len(p.QuickWins) != 0 || len(p.PracticePlan) != 0 {
		t.Errorf("quick wins %+v, practice plan %+v; want none for a first session", p.QuickWins, p.PracticePlan)
	}
}

func TestRecommend_Plan(t *testing.T) {
	t.Parallel()

	in := recommend.Input{
		Metrics: sessionMetrics(6, 120, 70, 80, 90, 1),
		History: pastSessions(3, sessionMetrics(8, 150, 70, 80, 90, 1)),
	}
	p := recommend.Recommend(in)

	if p.FirstSession {
		t.Fatal("FirstSession = true with history")
	}
	if len(p.FocusThisWeek) != 2 || len(p.SecondaryFocus) != 1 || len(p.LongTermGoals) != 0 {
		t.Fatalf("focus %d, secondary %d, long term %d; want 2/1/0",
			len(p.FocusThisWeek), len(p.SecondaryFocus), len(p.LongTermGoals))
	}

	filler, pace, clarity := p.FocusThisWeek[0], p.FocusThisWeek[1], p.SecondaryFocus[0]
	if filler.Type != recommend.AreaFillerWords || filler.Severity != speech.SeverityMedium {
		t.Errorf("first focus = %+v, want medium %s", filler, recommend.AreaFillerWords)
	}
	if !approx(filler.PriorityScore, 81.3) || math.Abs(filler.TargetValue-0.02) > 1e-9 || !approx(filler.PotentialImprovement, 30) {
		t.Errorf("filler score %v target %v improvement %v, want 81.3/0.02/30",
			filler.PriorityScore, filler.TargetValue, filler.PotentialImprovement)
	}

	if pace.Type != recommend.AreaPace || pace.Severity != speech.SeverityMedium {
		t.Errorf("second focus = %+v, want medium %s", pace, recommend.AreaPace)
	}
	if !approx(pace.PriorityScore, 69.9) || pace.TargetValue != 150 {
		t.Errorf("pace score %v target %v, want 69.9/150", pace.PriorityScore, pace.TargetValue)
	}

	if clarity.Type != recommend.AreaClarity || clarity.Severity != speech.SeverityLow || clarity.EffortLevel != 3 {
		t.Errorf("secondary = %+v, want low %s with effort 3", clarity, recommend.AreaClarity)
	}
	if !approx(clarity.PriorityScore, 65.2) {
		t.Errorf("clarity score = %v, want 65.2", clarity.PriorityScore)
	}

	if len(p.QuickWins) != 2 || p.QuickWins[0].Type != recommend.AreaFillerWords || p.QuickWins[1].Type != recommend.AreaPace {
		t.Errorf("QuickWins = %+v, want filler words then pace", p.QuickWins)
	}

	if len(p.PracticePlan) != 3 {
		t.Fatalf("PracticePlan = %+v, want 3 items", p.PracticePlan)
	}
	first := p.PracticePlan[0]
	if first.Area != recommend.AreaFillerWords || first.Daily == "" {
		t.Errorf("first practice item = %+v", first)
	}
	if !strings.Contains(first.Tracking, "improving") || !strings.Contains(p.PracticePlan[1].Tracking, "declining") {
		t.Errorf("tracking %q / %q should carry the trends", first.Tracking, p.PracticePlan[1].Tracking)
	}

	wantTrends := map[string]string{
		recommend.AreaFillerWords: recommend.TrendImproving,
		recommend.AreaPace:        recommend.TrendDeclining,
		recommend.AreaClarity:     recommend.TrendStable,
	}
	for area, want := range wantTrends {
		if got := p.Trends[area]; got != want {
			t.Errorf("trend %s = %q, want %q", area, got, want)
		}
	}
}

func TestAreas_Thresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metrics  speech.MetricsResult
		issues   []speech.Issue
		wantType string
		wantSev  speech.Severity
	}{
		{"healthy session", sessionMetrics(2, 160, 90, 85, 90, 0), nil, "", ""},
		{"heavy fillers", sessionMetrics(9, 160, 90, 85, 90, 0), nil, recommend.AreaFillerWords, speech.SeverityHigh},
		{"too fast", sessionMetrics(2, 215, 90, 85, 90, 0), nil, recommend.AreaPace, speech.SeverityHigh},
		{"slightly fast", sessionMetrics(2, 185, 90, 85, 90, 0), nil, recommend.AreaPace, speech.SeverityLow},
		{"flat delivery", sessionMetrics(2, 160, 90, 45, 90, 0), nil, recommend.AreaEngagement, speech.SeverityHigh},
		{"halting", sessionMetrics(2, 160, 90, 85, 60, 0), nil, recommend.AreaFluency, speech.SeverityMedium},
		{"long pauses", sessionMetrics(2, 160, 90, 85, 90, 5), nil, recommend.AreaPauses, speech.SeverityMedium},
		{
			"unprofessional", sessionMetrics(2, 160, 90, 85, 90, 0),
			[]speech.Issue{
				{Category: speech.CategoryProfessionalism}, {Category: speech.CategoryProfessionalism},
				{Category: speech.CategoryProfessionalism}, {Category: speech.CategoryProfessionalism},
			},
			recommend.AreaProfessionalism, speech.SeverityLow,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			areas := recommend.Areas(tc.metrics, tc.issues, recommend.ContextGeneral)
			if tc.wantType == "" {
				if len(areas) != 0 {
					t.Errorf("areas = %+v, want none", areas)
				}
				return
			}
			if len(areas) != 1 {
				t.Fatalf("areas = %+v, want one", areas)
			}
			a := areas[0]
			if a.Type != tc.wantType || a.Severity != tc.wantSev {
				t.Errorf("area = %s/%s, want %s/%s", a.Type, a.Severity, tc.wantType, tc.wantSev)
			}
			if len(a.ActionableSteps) == 0 {
				t.Error("area has no actionable steps")
			}
			if a.PriorityScore < 0 || a.PriorityScore > 100 {
				t.Errorf("PriorityScore = %v, want within [0,100]", a.PriorityScore)
			}
		})
	}
}

func TestPriorityScore_Context(t *testing.T) {
	t.Parallel()

	if got := recommend.PriorityScore(recommend.AreaClarity, 1, recommend.ContextPresentation); !approx(got, 86) {
		t.Errorf("presentation clarity = %v, want 86", got)
	}
	if got := recommend.PriorityScore(recommend.AreaClarity, 1, "podcast"); !approx(got, 85) {
		t.Errorf("unknown context clarity = %v, want 85", got)
	}

	interview := recommend.PriorityScore(recommend.AreaProfessionalism, 0.5, recommend.ContextInterview)
	general := recommend.PriorityScore(recommend.AreaProfessionalism, 0.5, recommend.ContextGeneral)
	if interview <= general {
		t.Errorf("interview professionalism %v should outrank general %v", interview, general)
	}
}

func TestTrends_NeedHistory(t *testing.T) {
	t.Parallel()

	in := recommend.Input{
		Metrics: sessionMetrics(6, 120, 70, 80, 90, 1),
		History: pastSessions(1, sessionMetrics(8, 150, 70, 80, 90, 1)),
	}
	if got := recommend.Trends(in); got != nil {
		t.Errorf("Trends = %v, want nil with one past session", got)
	}

	p := recommend.Recommend(in)
	if len(p.FocusThisWeek) == 0 {
		t.Fatal("no focus areas")
	}
	if tr := p.FocusThisWeek[0].Trend; tr != "" {
		t.Errorf("Trend = %q, want empty", tr)
	}
}
