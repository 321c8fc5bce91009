package metrics

import (
	"regexp"
	"strings"

	"github.com/MrWong99/oratio/pkg/speech"
)

// Filler density buckets.
const (
	DensityExcellent = "excellent"
	DensityGood      = "good"
	DensityModerate  = "moderate"
	DensityHigh      = "high"
	DensityVeryHigh  = "very_high"
)

var (
	tokenRe      = regexp.MustCompile(`[\p{L}\p{N}']+`)
	hesitationRe = regexp.MustCompile(`^(u+m+|u+h+|e+r+|a+h+)$`)
)

// soGuard lists the words after which "so" is a conjunction or adverb, not a
// filler ("so that", "so what").
var soGuard = map[string]bool{
	"that": true, "what": true, "how": true, "when": true, "where": true, "why": true,
}

// tokens returns the lower-cased word tokens of text.
func tokens(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// fillerAt reports the canonical filler name starting at toks[i] and how
// many tokens it spans. It returns "" when toks[i] does not start a filler.
func fillerAt(toks []string, i int) (string, int) {
	tok := toks[i]
	switch {
	case hesitationRe.MatchString(tok):
		return hesitationName(tok), 1
	case tok == "like", tok == "basically", tok == "actually":
		return tok, 1
	case tok == "you" && i+1 < len(toks) && toks[i+1] == "know":
		return "you know", 2
	case tok == "so":
		if i+1 < len(toks) {
			next := toks[i+1]
			if soGuard[next] {
				return "", 0
			}
			// "so" leading into another filler is one run, counted once.
			if name, _ := fillerAt(toks, i+1); name != "" {
				return "", 0
			}
		}
		return "so", 1
	}
	return "", 0
}

func hesitationName(tok string) string {
	switch tok[0] {
	case 'u':
		if strings.ContainsRune(tok, 'm') {
			return "um"
		}
		return "uh"
	case 'e':
		return "er"
	}
	return "ah"
}

// CountFillers returns the number of filler occurrences in text and a
// breakdown by canonical filler.
func CountFillers(text string) (int, map[string]int) {
	toks := tokens(text)
	breakdown := map[string]int{}
	count := 0
	for i := 0; i < len(toks); {
		name, n := fillerAt(toks, i)
		if name == "" {
			i++
			continue
		}
		breakdown[name]++
		count++
		i += n
	}
	return count, breakdown
}

// FillerDensity buckets a filler rate given in percent of words.
func FillerDensity(ratePct float64) string {
	switch {
	case ratePct <= 2:
		return DensityExcellent
	case ratePct <= 5:
		return DensityGood
	case ratePct <= 10:
		return DensityModerate
	case ratePct <= 15:
		return DensityHigh
	}
	return DensityVeryHigh
}

func fillerMetrics(text string, wordCount int) speech.FillerMetrics {
	count, breakdown := CountFillers(text)
	var rate float64
	if wordCount > 0 {
		rate = float64(count) / float64(wordCount) * 100
	}
	m := speech.FillerMetrics{
		Count:   count,
		Rate:    Round1(rate),
		Density: FillerDensity(rate),
	}
	if len(breakdown) > 0 {
		m.Breakdown = breakdown
	}
	return m
}
