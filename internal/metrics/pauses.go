package metrics

import (
	"github.com/MrWong99/oratio/pkg/speech"
)

// Pause thresholds in milliseconds.
const (
	MinPauseMS  = 100
	LongPauseMS = 3000
)

// pauseGaps returns the inter-word gaps longer than MinPauseMS.
func pauseGaps(words []speech.Word) []float64 {
	var gaps []float64
	for i := 1; i < len(words); i++ {
		if gap := words[i].StartMS - words[i-1].EndMS; gap > MinPauseMS {
			gaps = append(gaps, float64(gap))
		}
	}
	return gaps
}

// PauseMetrics summarises inter-word pauses and scores their quality.
//
// The quality score starts at 100 and loses 20 (or 10) points for a mean
// pause above 1500ms (or 1000ms), 30 (or 15) for a longest pause above
// 5000ms (or 3000ms), and 25 (or 10) when more than 20% (or 10%) of pauses
// are long. The result is floored at 0.
func PauseMetrics(words []speech.Word) speech.PauseMetrics {
	gaps := pauseGaps(words)
	m := speech.PauseMetrics{Count: len(gaps), QualityScore: 100}
	if len(gaps) == 0 {
		return m
	}

	for _, g := range gaps {
		m.LongestMS = max(m.LongestMS, g)
		if g > LongPauseMS {
			m.LongPauseCount++
		}
	}
	m.AvgMS = Round1(Mean(gaps))

	score := 100.0
	switch avg := Mean(gaps); {
	case avg > 1500:
		score -= 20
	case avg > 1000:
		score -= 10
	}
	switch {
	case m.LongestMS > 5000:
		score -= 30
	case m.LongestMS > 3000:
		score -= 15
	}
	switch ratio := float64(m.LongPauseCount) / float64(len(gaps)); {
	case ratio > 0.2:
		score -= 25
	case ratio > 0.1:
		score -= 10
	}
	m.QualityScore = max(0, score)
	return m
}
