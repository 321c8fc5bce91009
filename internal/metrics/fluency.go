package metrics

import (
	"regexp"
	"strings"

	"github.com/MrWong99/oratio/pkg/speech"
)

var (
	trailingMarkerRe     = regexp.MustCompile(`\.\.\.|…|--`)
	danglingConjunctRe   = regexp.MustCompile(`(?i)\b(and|but|or|because|so)\s*[.!?]`)
	restartPhraseRe      = regexp.MustCompile(`(?i)\bi mean\b`)
	hesitationAnywhereRe = regexp.MustCompile(`(?i)\b(u+m+|u+h+|e+r+|a+h+)\b`)
)

// Smoothness blends the variation of word durations and of inter-word
// pauses. Each half loses up to 100 points: at CV 2.0 for word durations
// and at CV ≈3.3 for pauses. Without pauses the pause half scores 100.
func Smoothness(words []speech.Word) float64 {
	if len(words) == 0 {
		return 100
	}
	durs := make([]float64, len(words))
	for i, w := range words {
		durs[i] = float64(w.DurationMS())
	}
	wordPart := max(0, 100-CV(durs)*50)

	pausePart := 100.0
	var gaps []float64
	for i := 1; i < len(words); i++ {
		if g := words[i].StartMS - words[i-1].EndMS; g > 0 {
			gaps = append(gaps, float64(g))
		}
	}
	if len(gaps) > 0 {
		pausePart = max(0, 100-CV(gaps)*30)
	}
	return (wordPart + pausePart) / 2
}

// countRestarts counts immediate word repetitions ("the the") and explicit
// self-corrections ("I mean").
func countRestarts(text string) int {
	toks := tokens(text)
	n := 0
	for i := 1; i < len(toks); i++ {
		if toks[i] == toks[i-1] && !hesitationRe.MatchString(toks[i]) {
			n++
		}
	}
	return n + len(restartPhraseRe.FindAllStringIndex(text, -1))
}

// countIncomplete counts trailing-off markers and sentences ending on a
// conjunction.
func countIncomplete(text string) int {
	return len(trailingMarkerRe.FindAllStringIndex(text, -1)) +
		len(danglingConjunctRe.FindAllStringIndex(text, -1))
}

// FluencyMetrics scores flow: 100 minus 5 per hesitation, 8 per restart and
// 10 per incomplete thought, scaled by smoothness and floored at 0.
func FluencyMetrics(t speech.Transcript) speech.FluencyMetrics {
	m := speech.FluencyMetrics{
		Smoothness:         Round1(Smoothness(t.Words)),
		Hesitations:        len(hesitationAnywhereRe.FindAllStringIndex(t.Text, -1)),
		Restarts:           countRestarts(t.Text),
		IncompleteThoughts: countIncomplete(strings.TrimSpace(t.Text)),
	}
	base := 100 - float64(5*m.Hesitations+8*m.Restarts+10*m.IncompleteThoughts)
	m.Score = Round1(Clamp(base*Smoothness(t.Words)/100, 0, 100))
	return m
}
