package refine

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

// areaKinds maps keywords of AI improvement-area types to the kind and
// category of the resulting issue, in match order.
var areaKinds = []struct {
	keyword string
	kind    string
}{
	{"pace", speech.KindPaceIssue},
	{"clarity", speech.KindClarityIssue},
	{"filler", speech.KindFillerWord},
	{"professional", speech.KindProfessionalism},
	{"confidence", speech.KindConfidenceIssue},
	{"engagement", speech.KindEngagementIssue},
}

// AreaKind maps a free-form AI improvement-area type to an issue kind and
// category. Both come from the same lookup; unknown types map to "other".
func AreaKind(areaType string, threshold float64) (kind, category string) {
	t := NormalizeKind(areaType)
	for _, m := range areaKinds {
		if strings.Contains(t, m.keyword) {
			return m.kind, m.kind
		}
	}
	for _, m := range areaKinds {
		if matchr.JaroWinkler(t, m.keyword, false) >= threshold {
			return m.kind, m.kind
		}
	}
	return speech.KindOther, speech.KindOther
}

// merge adds the AI-discovered issues of every analysis to the classified
// rule issues, skipping near-duplicates, and orders the result by start
// time then severity.
func (rn *run) merge(t speech.Transcript, classified []speech.Issue, analyses []SegmentAnalysis) ([]speech.Issue, int) {
	out := slices.Clone(classified)
	added := 0
	for _, a := range analyses {
		for _, area := range a.ImprovementAreas {
			is := rn.areaIssue(t, a, area)
			if rn.duplicate(is, out) {
				continue
			}
			out = append(out, is)
			added++
		}
	}
	slices.SortStableFunc(out, byStart)
	return out, added
}

func (rn *run) areaIssue(t speech.Transcript, a SegmentAnalysis, area ImprovementArea) speech.Issue {
	kind, category := AreaKind(area.Type, rn.r.cfg.KindMatchThreshold)
	start, end := locate(t, a.Segment, area.Text)
	text := area.Text
	if text == "" {
		text = a.Segment.Text
	}
	return speech.Issue{
		Kind:       kind,
		Category:   category,
		StartMS:    start,
		EndMS:      end,
		Text:       text,
		Source:     speech.SourceAI,
		Severity:   speech.ParseSeverity(strings.ToLower(area.Severity)),
		Rationale:  area.Description,
		Tip:        area.Suggestion,
		Confidence: speech.Ptr(metrics.Clamp(a.Confidence, 0, 1)),
	}
}

func (rn *run) duplicate(is speech.Issue, existing []speech.Issue) bool {
	for _, e := range existing {
		if e.Overlaps(is.StartMS, is.EndMS) && rn.relatedKind(e.Kind, is.Kind) {
			return true
		}
	}
	return false
}

// locate finds quote inside the words of seg and returns its time range.
// When the quote cannot be found the whole segment is returned.
func locate(t speech.Transcript, seg speech.Candidate, quote string) (int64, int64) {
	want := words(quote)
	if len(want) == 0 {
		return seg.StartMS, seg.EndMS
	}
	ws := t.WordsBetween(seg.StartMS, seg.EndMS)
	have := make([]string, len(ws))
	for i, w := range ws {
		if f := words(w.Text); len(f) > 0 {
			have[i] = strings.Join(f, "")
		}
	}
	for i := 0; i+len(want) <= len(have); i++ {
		if slices.Equal(have[i:i+len(want)], want) {
			return ws[i].StartMS, ws[i+len(want)-1].EndMS
		}
	}
	return seg.StartMS, seg.EndMS
}

func insights(analyses []SegmentAnalysis, tally classifyTally, discovered int) Insights {
	in := Insights{
		Validated:      tally.validated,
		FalsePositives: tally.rejected,
		NotReviewed:    tally.notReviewed,
		Discovered:     discovered,
	}
	if len(analyses) == 0 {
		return in
	}
	var clarity, confidence, engagement, professionalism, pace []float64
	seen := make(map[string]bool)
	for _, a := range analyses {
		clarity = append(clarity, a.Assessment.Clarity)
		confidence = append(confidence, a.Assessment.Confidence)
		engagement = append(engagement, a.Assessment.Engagement)
		professionalism = append(professionalism, a.Assessment.Professionalism)
		pace = append(pace, a.Assessment.Pace)
		for _, s := range a.Strengths {
			if !seen["s:"+s] {
				seen["s:"+s] = true
				in.Strengths = append(in.Strengths, s)
			}
		}
		for _, r := range a.Recommendations {
			if !seen["r:"+r] {
				seen["r:"+r] = true
				in.Recommendations = append(in.Recommendations, r)
			}
		}
	}
	in.AverageScores = map[string]float64{
		"clarity":         metrics.Round1(metrics.Mean(clarity)),
		"confidence":      metrics.Round1(metrics.Mean(confidence)),
		"engagement":      metrics.Round1(metrics.Mean(engagement)),
		"professionalism": metrics.Round1(metrics.Mean(professionalism)),
		"pace":            metrics.Round1(metrics.Mean(pace)),
	}
	return in
}
