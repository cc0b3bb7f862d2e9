// Package mock provides a test double for the persist interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/pitchlab-ai/pitchlab/internal/persist"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// Store is an in-memory persist.Store. Saved records are retrievable for
// assertions; history reads return the scripted History slice.
type Store struct {
	mu sync.Mutex

	// SaveErr, if non-nil, is returned by every SaveSession call.
	SaveErr error

	// History is returned by RecentFeedback, truncated to n.
	History []types.FeedbackScores

	// HistoryErr, if non-nil, is returned by every RecentFeedback call.
	HistoryErr error

	saved []persist.Record
}

// Compile-time interface check.
var _ persist.Store = (*Store)(nil)

// SaveSession records the call.
func (s *Store) SaveSession(_ context.Context, rec persist.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.saved = append(s.saved, rec)
	return nil
}

// RecentFeedback returns the scripted history.
func (s *Store) RecentFeedback(_ context.Context, _ string, n int) ([]types.FeedbackScores, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HistoryErr != nil {
		return nil, s.HistoryErr
	}
	if len(s.History) > n {
		return s.History[:n], nil
	}
	return s.History, nil
}

// Saved returns a copy of all records stored so far. Thread-safe.
func (s *Store) Saved() []persist.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persist.Record, len(s.saved))
	copy(out, s.saved)
	return out
}
