// Package speech defines the value types shared by every Oratio analysis
// stage: transcripts with per-word timing, delivery issues, candidate
// segments, the metrics snapshot, improvement areas, and achievements.
//
// These types are the lingua franca between the detector, the metrics
// engine, the AI refiner, and the recommendation layers. They are plain
// values: none of them owns a connection or mutable shared state, and every
// stage treats its inputs as read-only.
package speech

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTranscript is wrapped by [Transcript.Validate] when the word list
// violates the ordering invariants.
var ErrInvalidTranscript = errors.New("invalid transcript")

// Word is a single recognised token with its timing in milliseconds relative
// to the start of the recording.
type Word struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`

	// Confidence is the recogniser's confidence in [0,1]. Nil when the
	// transcription backend does not report it.
	Confidence *float64 `json:"confidence,omitempty"`
}

// DurationMS returns the spoken length of the word.
func (w Word) DurationMS() int64 { return w.EndMS - w.StartMS }

// Transcript pairs the full recognised text with its ordered word list.
type Transcript struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Validate reports whether the words are time-ordered, non-overlapping and
// each have StartMS < EndMS.
func (t Transcript) Validate() error {
	var errs []error
	for i, w := range t.Words {
		if w.StartMS >= w.EndMS {
			errs = append(errs, fmt.Errorf("words[%d] %q: start_ms %d >= end_ms %d", i, w.Text, w.StartMS, w.EndMS))
		}
		if i > 0 && w.StartMS < t.Words[i-1].EndMS {
			errs = append(errs, fmt.Errorf("words[%d] %q overlaps previous word", i, w.Text))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTranscript, errors.Join(errs...))
	}
	return nil
}

// DurationMS is the span from the first word's start to the last word's end.
// Returns 0 for an empty word list.
func (t Transcript) DurationMS() int64 {
	if len(t.Words) == 0 {
		return 0
	}
	return t.Words[len(t.Words)-1].EndMS - t.Words[0].StartMS
}

// WordCount returns the number of timed words, falling back to a whitespace
// split of Text when no word timing is available.
func (t Transcript) WordCount() int {
	if len(t.Words) > 0 {
		return len(t.Words)
	}
	return len(strings.Fields(t.Text))
}

// WordsBetween returns the words fully contained in [startMS, endMS].
func (t Transcript) WordsBetween(startMS, endMS int64) []Word {
	var out []Word
	for _, w := range t.Words {
		if w.StartMS >= startMS && w.EndMS <= endMS {
			out = append(out, w)
		}
	}
	return out
}

// JoinWords joins the text of words with single spaces.
func JoinWords(words []Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// Ptr returns a pointer to v. Handy for optional fields such as
// [Word.Confidence] and [Issue.Confidence].
func Ptr[T any](v T) *T { return &v }
