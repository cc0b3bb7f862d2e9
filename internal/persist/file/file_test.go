package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pitchlab-ai/pitchlab/internal/feedback"
	"github.com/pitchlab-ai/pitchlab/internal/persist"
)

func record(sessionID, userID string, overall float64) persist.Record {
	return persist.Record{
		SessionID:  sessionID,
		UserID:     userID,
		ScenarioID: "price_sensitive_small_business",
		Difficulty: "Intermediate",
		StartedAt:  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		Feedback: feedback.Payload{
			OverallScore:         overall,
			ObjectionHandling:    overall,
			CommunicationClarity: overall,
			Confidence:           overall,
		},
	}
}

func TestSaveAndReadBack(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for i, overall := range []float64{4, 6, 8} {
		if err := store.SaveSession(ctx, record(string(rune('a'+i)), "user-1", overall)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.SaveSession(ctx, record("x", "someone-else", 9)); err != nil {
		t.Fatalf("save: %v", err)
	}

	scores, err := store.RecentFeedback(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("got %d scores, want 3", len(scores))
	}
	// Newest first.
	if scores[0].Overall != 8 || scores[2].Overall != 4 {
		t.Errorf("order = %v, want newest first", scores)
	}
}

func TestRecentFeedbackTruncatesToN(t *testing.T) {
	t.Parallel()

	store, _ := New(t.TempDir())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.SaveSession(ctx, record(string(rune('a'+i)), "u", float64(i))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	scores, err := store.RecentFeedback(ctx, "u", 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if scores[0].Overall != 4 || scores[1].Overall != 3 {
		t.Errorf("scores = %v, want the two newest", scores)
	}
}

func TestRecentFeedbackSkipsFailedRubrics(t *testing.T) {
	t.Parallel()

	store, _ := New(t.TempDir())
	ctx := context.Background()

	rec := record("a", "u", 7)
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	failed := record("b", "u", 0)
	failed.Feedback = feedback.Sentinel()
	if err := store.SaveSession(ctx, failed); err != nil {
		t.Fatalf("save: %v", err)
	}

	scores, err := store.RecentFeedback(ctx, "u", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(scores) != 1 || scores[0].Overall != 7 {
		t.Fatalf("scores = %v, want only the scored session", scores)
	}
}

func TestRecentFeedbackMissingFile(t *testing.T) {
	t.Parallel()

	store, _ := New(t.TempDir())
	scores, err := store.RecentFeedback(context.Background(), "u", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores != nil {
		t.Fatalf("scores = %v, want nil", scores)
	}
}

func TestRecentFeedbackSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, _ := New(dir)
	ctx := context.Background()
	if err := store.SaveSession(ctx, record("a", "u", 6)); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{truncated\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	if err := store.SaveSession(ctx, record("b", "u", 8)); err != nil {
		t.Fatalf("save: %v", err)
	}

	scores, err := store.RecentFeedback(ctx, "u", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
}

func TestSaveWritesOneLinePerRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, _ := New(dir)
	ctx := context.Background()
	if err := store.SaveSession(ctx, record("a", "u", 6)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveSession(ctx, record("b", "u", 7)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("file has %d lines, want 2", len(lines))
	}
}
