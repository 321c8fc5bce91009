package detect

import (
	"strings"

	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

// minPauseMS is the smallest inter-word gap counted as a pause.
const minPauseMS = 100

// Summary is a cheap statistical overview of a transcript and its rule
// issues. It is used as fallback input when the full metrics battery is not
// available.
type Summary struct {
	WordCount      int     `json:"word_count"`
	WPM            float64 `json:"wpm"`
	FillerRate     float64 `json:"filler_rate"` // filler words per 100 words
	AvgPauseMS     float64 `json:"avg_pause_ms"`
	LongestPauseMS float64 `json:"longest_pause_ms"`
	ClarityScore   float64 `json:"clarity_score"`
}

// Summarize computes a [Summary] for t and the issues detected on it.
// Fillers are counted per matched word, not per grouped issue. The clarity
// score is 100 minus 5 per issue, floored at 0.
func Summarize(t speech.Transcript, issues []speech.Issue) Summary {
	s := Summary{
		WordCount:    t.WordCount(),
		ClarityScore: max(0, 100-5*float64(len(issues))),
	}

	if d := t.DurationMS(); d > 0 {
		s.WPM = float64(len(t.Words)) / (float64(d) / msPerMinute)
	}

	if s.WordCount > 0 {
		text := t.Text
		if strings.TrimSpace(text) == "" {
			text = speech.JoinWords(t.Words)
		}
		fillers, _ := metrics.CountFillers(text)
		s.FillerRate = float64(fillers) / float64(s.WordCount) * 100
	}

	var total, n int64
	for i := 1; i < len(t.Words); i++ {
		gap := t.Words[i].StartMS - t.Words[i-1].EndMS
		if gap <= minPauseMS {
			continue
		}
		total += gap
		n++
		s.LongestPauseMS = max(s.LongestPauseMS, float64(gap))
	}
	if n > 0 {
		s.AvgPauseMS = float64(total) / float64(n)
	}
	return s
}
