// Package history provides read access to a user's completed speaking
// sessions, used by the recommendation and achievement layers.
package history

import (
	"context"
	"time"

	"github.com/MrWong99/oratio/pkg/speech"
)

// StatusCompleted marks a session whose analysis finished.
const StatusCompleted = "completed"

// Session is one analysed recording of a user.
type Session struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	Metrics   speech.MetricsResult `json:"metrics"`
	Issues    []speech.Issue       `json:"issues,omitempty"`
}

// FillerRate returns the session's filler words per word, in [0,1].
func (s Session) FillerRate() float64 { return s.Metrics.Clarity.Fillers.Rate / 100 }

// WPM returns the session's speaking rate.
func (s Session) WPM() float64 { return s.Metrics.Speaking.WPM }

// Provider gives read-only access to completed sessions.
type Provider interface {
	// CompletedSessions returns the user's completed sessions ordered by
	// CreatedAt, oldest first.
	CompletedSessions(ctx context.Context, userID string) ([]Session, error)
}

// Recorder persists analysed sessions. The analysis pipeline never calls
// it; front ends do after a run.
type Recorder interface {
	Save(ctx context.Context, s Session) error
}

// Store is a [Provider] that can also record sessions.
type Store interface {
	Provider
	Recorder
}
