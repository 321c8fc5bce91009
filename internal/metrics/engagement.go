package metrics

import (
	"strings"
	"unicode"

	"github.com/MrWong99/oratio/pkg/speech"
)

var emphasisWords = map[string]bool{
	"really": true, "very": true, "absolutely": true, "definitely": true,
	"incredible": true, "amazing": true, "important": true, "critical": true,
	"essential": true, "key": true, "must": true, "never": true, "always": true,
	"extremely": true, "remarkable": true,
}

// isShouted reports whether a raw word is written in capitals (two or more
// letters, no lower-case).
func isShouted(word string) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters++
		}
	}
	return letters >= 2
}

// EnergyScore rewards exclamations, capitalised words, emphasis vocabulary
// and questions relative to the word count. It never drops below 50.
func EnergyScore(text string, wordCount int) float64 {
	if wordCount == 0 {
		return 50
	}
	exclam := strings.Count(text, "!")
	questions := strings.Count(text, "?")
	caps := 0
	for _, f := range strings.Fields(text) {
		if isShouted(f) {
			caps++
		}
	}
	emph := 0
	for _, tok := range tokens(text) {
		if emphasisWords[tok] {
			emph++
		}
	}

	score := 50.0
	score += min(15, float64(exclam)*3)
	score += min(10, float64(caps)*2)
	score += min(15, float64(emph)*150/float64(wordCount))
	score += min(10, float64(questions)*100/float64(wordCount)*2)
	return Clamp(score, 50, 100)
}

// PaceVariationScore rewards moderate variation of the speaking rate across
// windows. A CV between 0.1 and 0.3 scores 100; monotone delivery and
// erratic delivery score lower. Recordings too short to window score 70.
func PaceVariationScore(words []speech.Word) float64 {
	wpms := windowWPMs(words)
	if len(wpms) < 2 {
		return 70
	}
	cv := CV(wpms)
	switch {
	case cv < 0.1:
		return 60 + cv*400
	case cv <= 0.3:
		return 100
	}
	return max(40, 100-(cv-0.3)*200)
}

// EngagementMetrics combines energy, pace variation and emphasis signals:
// min(100, (energy+pace_variation)/2 + min(20, 2×emphasis_signals)).
func EngagementMetrics(t speech.Transcript) speech.EngagementMetrics {
	wc := t.WordCount()
	m := speech.EngagementMetrics{
		Energy:        Round1(EnergyScore(t.Text, wc)),
		PaceVariation: Round1(PaceVariationScore(t.Words)),
		Questions:     strings.Count(t.Text, "?"),
		Exclamations:  strings.Count(t.Text, "!"),
	}
	m.EmphasisSignals = m.Exclamations
	for _, f := range strings.Fields(t.Text) {
		if isShouted(f) {
			m.EmphasisSignals++
		}
	}
	for _, tok := range tokens(t.Text) {
		if emphasisWords[tok] {
			m.EmphasisSignals++
		}
	}
	m.Score = Round1(min(100, (m.Energy+m.PaceVariation)/2+min(20, 2*float64(m.EmphasisSignals))))
	return m
}
