// Package file provides a JSONL-file session store for deployments without
// PostgreSQL. One record per line, appended on call end; history reads scan
// the file back to front.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pitchlab-ai/pitchlab/internal/persist"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

const fileName = "sessions.jsonl"

// maxLineBytes bounds one serialised record when scanning. A full hour-long
// transcript fits comfortably.
const maxLineBytes = 4 << 20

// Store appends session records to a JSONL file under dir.
type Store struct {
	mu   sync.Mutex
	path string
}

// Compile-time interface check.
var _ persist.Store = (*Store)(nil)

// New creates the directory if needed and returns a store writing to
// dir/sessions.jsonl.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create session dir %q: %w", dir, err)
	}
	return &Store{path: filepath.Join(dir, fileName)}, nil
}

// SaveSession appends one record as a single JSON line.
func (s *Store) SaveSession(_ context.Context, rec persist.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("file: marshal session %s: %w", rec.SessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file: open %q: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("file: append session %s: %w", rec.SessionID, err)
	}
	return nil
}

// RecentFeedback scans the file and returns the user's last n rubric scores,
// newest first. Corrupt lines and error:true feedback are skipped.
func (s *Store) RecentFeedback(_ context.Context, userID string, n int) ([]types.FeedbackScores, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file: open %q: %w", s.path, err)
	}
	defer f.Close()

	// Records are appended chronologically, so keep the tail while scanning.
	type lineRecord struct {
		UserID   string `json:"user_id"`
		Feedback struct {
			types.FeedbackScores
			Error bool `json:"error"`
		} `json:"feedback"`
	}

	var matched []types.FeedbackScores
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var rec lineRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.UserID != userID || rec.Feedback.Error {
			continue
		}
		matched = append(matched, rec.Feedback.FeedbackScores)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("file: scan %q: %w", s.path, err)
	}

	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	// Newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, nil
}
