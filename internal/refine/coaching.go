package refine

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/MrWong99/oratio/internal/cache"
	"github.com/MrWong99/oratio/pkg/speech"
)

const maxCoaching = 5

var errNoRecommendations = errors.New("reply has no recommendations")

type coachingReply struct {
	Recommendations []struct {
		Title    string   `json:"title"`
		Focus    string   `json:"focus"`
		Detail   string   `json:"detail"`
		Drills   []string `json:"drills"`
		Priority string   `json:"priority"`
	} `json:"recommendations"`
}

// Coaching returns personalised coaching for issues. On AI failure it
// returns the deterministic fallback advice together with the error.
func (r *Refiner) Coaching(ctx context.Context, issues []speech.Issue, analyses []SegmentAnalysis, opts Options) ([]speech.CoachingRecommendation, error) {
	rn := r.newRun(opts)
	recs, err := rn.aiCoaching(ctx, issues, analyses)
	if err != nil {
		return fallbackCoaching(issues), err
	}
	return recs, nil
}

func (rn *run) coaching(ctx context.Context, issues []speech.Issue, analyses []SegmentAnalysis) []speech.CoachingRecommendation {
	recs, err := rn.aiCoaching(ctx, issues, analyses)
	if err != nil {
		return fallbackCoaching(issues)
	}
	return recs
}

// coachingKey identifies coaching by speaker, profile and the set of issue
// kinds, so repeated sessions with the same problems reuse the advice.
func coachingKey(opts Options, issues []speech.Issue, version string) string {
	profile, _ := json.Marshal(struct {
		Level   string   `json:"level"`
		Context string   `json:"context"`
		Goals   []string `json:"goals"`
	}{opts.level(), opts.SpeechContext, opts.Goals})

	kinds := make([]string, 0, len(issues))
	for _, kc := range kindCounts(issues) {
		kinds = append(kinds, kc.kind)
	}
	slices.Sort(kinds)

	content := strings.Join([]string{opts.UserID, cache.Hash(string(profile)), cache.Hash(strings.Join(kinds, ","))}, "|")
	return cache.Key(purposeCoaching, content, version)
}

func (rn *run) aiCoaching(ctx context.Context, issues []speech.Issue, analyses []SegmentAnalysis) ([]speech.CoachingRecommendation, error) {
	key := coachingKey(rn.opts, issues, rn.r.cfg.PromptVersion)
	reply, err := cached(ctx, rn, purposeCoaching, key, messages(purposeCoaching, coachingMessage(rn.opts, issues, analyses)),
		func(r coachingReply) error {
			if len(r.Recommendations) == 0 {
				return errNoRecommendations
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	out := make([]speech.CoachingRecommendation, 0, min(len(reply.Recommendations), maxCoaching))
	for _, rec := range reply.Recommendations {
		if len(out) == maxCoaching {
			break
		}
		out = append(out, speech.CoachingRecommendation{
			Title:    rec.Title,
			Focus:    rec.Focus,
			Detail:   rec.Detail,
			Drills:   rec.Drills,
			Priority: parsePriority(rec.Priority),
			Source:   speech.SourceAI,
		})
	}
	return out, nil
}

func parsePriority(s string) speech.Priority {
	switch p := speech.Priority(strings.ToLower(s)); p {
	case speech.PriorityHigh, speech.PriorityMedium, speech.PriorityLow:
		return p
	}
	return speech.PriorityMedium
}

type kindCount struct {
	kind string
	n    int
}

// kindCounts counts issues per kind, most frequent first, ties by name.
func kindCounts(issues []speech.Issue) []kindCount {
	counts := make(map[string]int)
	for _, is := range issues {
		counts[is.Kind]++
	}
	out := make([]kindCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, kindCount{k, n})
	}
	slices.SortFunc(out, func(a, b kindCount) int {
		return cmp.Or(cmp.Compare(b.n, a.n), cmp.Compare(a.kind, b.kind))
	})
	return out
}

var stubCoaching = map[string]speech.CoachingRecommendation{
	speech.KindFillerWord: {
		Title:  "Replace filler words with pauses",
		Focus:  speech.KindFillerWord,
		Detail: "When you feel a filler coming, close your mouth and pause instead. A silent beat sounds deliberate; an \"um\" sounds unsure.",
		Drills: []string{"Record a one-minute answer and tally every filler", "Repeat the answer aiming for half the count"},
	},
	speech.KindSlowPace: {
		Title:  "Lift your speaking pace",
		Focus:  speech.KindSlowPace,
		Detail: "Aim for 140 to 160 words per minute. Trim long run-ups to each point and keep sentences moving.",
		Drills: []string{"Read a 150-word passage aloud against a one-minute timer"},
	},
	speech.KindFastPace: {
		Title:  "Slow down and let points land",
		Focus:  speech.KindFastPace,
		Detail: "Rushed delivery hides your best ideas. Pause after each key sentence and breathe before the next.",
		Drills: []string{"Mark pauses in your script with a slash and honour each one"},
	},
	speech.KindLongPause: {
		Title:  "Keep pauses purposeful",
		Focus:  speech.KindLongPause,
		Detail: "Short pauses add emphasis, long ones lose the audience. Outline your talk so the next point is always ready.",
		Drills: []string{"Practise transitions between sections until each takes under two seconds"},
	},
	"hedging": {
		Title:  "Speak with conviction",
		Focus:  "hedging",
		Detail: "Drop qualifiers such as \"I think\" and \"maybe\" when you are sure. State the claim, then support it.",
		Drills: []string{"Rewrite three hedged sentences from your last talk as direct statements"},
	},
	speech.KindProfessionalism: {
		Title:  "Match your register to the room",
		Focus:  speech.KindProfessionalism,
		Detail: "Swap slang and casual phrases for plain professional language. Keep the warmth, lose the informality.",
		Drills: []string{"List your three most common casual phrases and a professional alternative for each"},
	},
}

var stubGeneral = speech.CoachingRecommendation{
	Title:  "Review one recording a day",
	Focus:  "general",
	Detail: "Listen back to a short recording and note one thing to keep and one thing to change before the next session.",
	Drills: []string{"Record a two-minute talk on a familiar topic and review it the same day"},
}

// fallbackCoaching returns fixed advice for the most frequent issue kind.
func fallbackCoaching(issues []speech.Issue) []speech.CoachingRecommendation {
	rec := stubGeneral
	if kcs := kindCounts(issues); len(kcs) > 0 {
		if r, ok := stubCoaching[kcs[0].kind]; ok {
			rec = r
		}
	}
	rec.Drills = slices.Clone(rec.Drills)
	rec.Priority = speech.PriorityHigh
	rec.Source = speech.SourceRule
	return []speech.CoachingRecommendation{rec}
}
