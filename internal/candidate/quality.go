package candidate

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Peak ranges of the quality sub-factors.
const (
	idealWPMLow, idealWPMHigh         = 140.0, 160.0
	idealWordLenLow, idealWordLenHigh = 4.5, 6.5
	idealPauseSDLow, idealPauseSDHigh = 200.0, 800.0
)

// fit scores v as 1 inside [lo, hi], falling linearly to 0 at a distance
// of span outside the range.
func fit(v, lo, hi, span float64) float64 {
	switch {
	case v < lo:
		return max(0, 1-(lo-v)/span)
	case v > hi:
		return max(0, 1-(v-hi)/span)
	}
	return 1
}

// QualityFactors are the four sub-scores of a segment, each in [0,1].
type QualityFactors struct {
	RateFit       float64
	WordLengthFit float64
	PauseFit      float64
	Diversity     float64
}

// Score is the mean of the four factors.
func (q QualityFactors) Score() float64 {
	return (q.RateFit + q.WordLengthFit + q.PauseFit + q.Diversity) / 4
}

// Factors scores a word segment on speaking-rate fit, average word length,
// pause variation and lexical diversity.
func Factors(words []speech.Word) QualityFactors {
	if len(words) == 0 {
		return QualityFactors{}
	}
	var q QualityFactors

	wpm := metrics.WPM(len(words), words[len(words)-1].EndMS-words[0].StartMS)
	q.RateFit = fit(wpm, idealWPMLow, idealWPMHigh, 60)

	letters := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		norm := strings.ToLower(strings.Trim(w.Text, ".,!?;:\"'()"))
		letters += utf8.RuneCountInString(norm)
		unique[norm] = struct{}{}
	}
	q.WordLengthFit = fit(float64(letters)/float64(len(words)), idealWordLenLow, idealWordLenHigh, 3)
	q.Diversity = float64(len(unique)) / float64(len(words))

	var gaps []float64
	for i := 1; i < len(words); i++ {
		gaps = append(gaps, float64(max(0, words[i].StartMS-words[i-1].EndMS)))
	}
	if len(gaps) > 0 {
		sd := metrics.StdDev(gaps)
		switch {
		case sd < idealPauseSDLow:
			q.PauseFit = sd / idealPauseSDLow
		case sd > idealPauseSDHigh:
			q.PauseFit = max(0, 1-(sd-idealPauseSDHigh)/1200)
		default:
			q.PauseFit = 1
		}
	}
	return q
}

// Quality returns the overall quality of a word segment in [0,1].
func Quality(words []speech.Word) float64 {
	return Factors(words).Score()
}
