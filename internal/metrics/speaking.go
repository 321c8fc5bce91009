package metrics

import (
	"github.com/MrWong99/oratio/pkg/speech"
)

const msPerMinute = 60000.0

// WPM returns words per minute over durationMS. Returns 0 for a
// non-positive duration.
func WPM(wordCount int, durationMS int64) float64 {
	if durationMS <= 0 {
		return 0
	}
	return float64(wordCount) / (float64(durationMS) / msPerMinute)
}

// RateBucket classifies a speaking rate.
func RateBucket(wpm float64) string {
	switch {
	case wpm < 120:
		return speech.RateTooSlow
	case wpm < 140:
		return speech.RateSlow
	case wpm <= 160:
		return speech.RateOptimal
	case wpm <= 180:
		return speech.RateFast
	}
	return speech.RateTooFast
}

// PaceScore maps a speaking rate onto the piecewise pace table used by the
// overall score.
func PaceScore(wpm float64) float64 {
	switch {
	case wpm >= 140 && wpm <= 160:
		return 100
	case wpm >= 120 && wpm <= 180:
		return 85
	case (wpm >= 100 && wpm < 120) || (wpm > 180 && wpm <= 200):
		return 70
	case (wpm >= 80 && wpm < 100) || (wpm > 200 && wpm <= 250):
		return 50
	}
	return 30
}

// windowWPMs slides a window of max(n/5, 10) words with a 50% stride and
// returns each window's WPM.
func windowWPMs(words []speech.Word) []float64 {
	n := len(words)
	size := max(n/5, 10)
	stride := max(size/2, 1)

	var out []float64
	for i := 0; i+size <= n; i += stride {
		w := words[i : i+size]
		out = append(out, WPM(size, w[len(w)-1].EndMS-w[0].StartMS))
	}
	return out
}

// PaceConsistency scores how steady the speaking rate is across sliding
// windows: 100 − 100×CV, floored at 0. Fewer than two windows scores 100.
func PaceConsistency(words []speech.Word) float64 {
	wpms := windowWPMs(words)
	if len(wpms) < 2 {
		return 100
	}
	return max(0, 100-100*CV(wpms))
}

func speakingMetrics(t speech.Transcript) speech.SpeakingMetrics {
	dur := t.DurationMS()
	var spoken int64
	for _, w := range t.Words {
		spoken += w.DurationMS()
	}

	wpm := WPM(len(t.Words), dur)
	m := speech.SpeakingMetrics{
		WPM:             Round1(wpm),
		EffectiveWPM:    Round1(WPM(len(t.Words), spoken)),
		RateBucket:      RateBucket(wpm),
		PaceConsistency: Round1(PaceConsistency(t.Words)),
		PaceScore:       PaceScore(wpm),
		SpeakingTimeMS:  spoken,
	}
	if dur > 0 {
		m.SpeakingRatio = float64(spoken) / float64(dur)
	}
	return m
}
