package history

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrMissingUser is returned by Save when the session has no user.
var ErrMissingUser = errors.New("history: session has no user id")

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. It is suitable for the CLI
// and for tests. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Session
}

// NewMemStore returns an initialised [MemStore] holding sessions.
func NewMemStore(sessions ...Session) *MemStore {
	s := &MemStore{sessions: make(map[string][]Session)}
	for _, sess := range sessions {
		_ = s.Save(context.Background(), sess)
	}
	return s
}

// Save implements [Recorder.Save]. A session with an existing ID replaces
// the stored one.
func (s *MemStore) Save(_ context.Context, sess Session) error {
	if sess.UserID == "" {
		return ErrMissingUser
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = StatusCompleted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		s.sessions = make(map[string][]Session)
	}
	list := s.sessions[sess.UserID]
	if i := slices.IndexFunc(list, func(o Session) bool { return o.ID == sess.ID }); i >= 0 {
		list[i] = sess
	} else {
		list = append(list, sess)
	}
	slices.SortStableFunc(list, func(a, b Session) int { return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano()) })
	s.sessions[sess.UserID] = list
	return nil
}

// CompletedSessions implements [Provider.CompletedSessions].
func (s *MemStore) CompletedSessions(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, sess := range s.sessions[userID] {
		if sess.Status == StatusCompleted {
			out = append(out, sess)
		}
	}
	return out, nil
}
