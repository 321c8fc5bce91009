package achievement

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/MrWong99/oratio/pkg/speech"
)

// MaxTips is the number of tips [MicroTips] returns at most.
const MaxTips = 3

// Tip is a short, immediately actionable piece of advice.
type Tip struct {
	Area   string  `json:"area"`
	Text   string  `json:"text"`
	Impact float64 `json:"impact"`
}

// MicroTips returns up to three tips for a session, highest impact first.
func MicroTips(m speech.MetricsResult, issues []speech.Issue) []Tip {
	var tips []Tip
	add := func(area string, impact float64, format string, args ...any) {
		tips = append(tips, Tip{Area: area, Text: fmt.Sprintf(format, args...), Impact: impact})
	}

	if rate := m.Clarity.Fillers.Rate; rate > 3 {
		word := topFiller(m.Clarity.Fillers.Breakdown)
		if word == "" {
			add("filler_words", rate*3, "Pause silently instead of using filler words (%.0f per 100 words).", rate)
		} else {
			add("filler_words", rate*3, "Replace %q with a short pause; it was your most frequent filler.", word)
		}
	}
	switch wpm := m.Speaking.WPM; {
	case wpm > 0 && wpm < 140:
		add("pace", 140-wpm, "Pick up the pace a little: aim for about 150 words per minute (you spoke at %.0f).", wpm)
	case wpm > 180:
		add("pace", wpm-180, "Slow down and breathe between sentences (you spoke at %.0f words per minute).", wpm)
	}
	if n := m.Clarity.Pauses.LongPauseCount; n > 2 {
		add("pauses", float64(n)*5, "Prepare your transitions; %d pauses ran longer than three seconds.", n)
	}
	if s := m.Engagement.Score; s > 0 && s < 70 {
		add("engagement", 70-s, "Stress one key word in every sentence to sound more engaged.")
	}
	if s := m.Fluency.Score; s > 0 && s < 75 {
		add("fluency", 75-s, "Finish each sentence before starting the next thought.")
	}

	var unprofessional, hedges int
	for _, is := range issues {
		switch {
		case is.Category == speech.CategoryProfessionalism:
			unprofessional++
		case is.Kind == "hedging":
			hedges++
		}
	}
	if unprofessional > 0 {
		add("professionalism", float64(unprofessional)*8, "Swap casual phrases for plain professional wording (%d found).", unprofessional)
	}
	if hedges > 1 {
		add("confidence", float64(hedges)*4, "Drop qualifiers like \"I think\" when you are sure of a point.")
	}

	slices.SortStableFunc(tips, func(a, b Tip) int { return cmp.Compare(b.Impact, a.Impact) })
	if len(tips) > MaxTips {
		tips = tips[:MaxTips]
	}
	return tips
}

func topFiller(breakdown map[string]int) string {
	best, n := "", 0
	for w, c := range breakdown {
		if c > n || c == n && w < best {
			best, n = w, c
		}
	}
	return best
}
