// Package persist defines the session persistence contracts: a fire-and-
// forget Sink written once per completed call, and a HistoryReader consumed
// by the difficulty selector. Implementations live in the postgres, file and
// mock subpackages.
package persist

import (
	"context"
	"time"

	"github.com/pitchlab-ai/pitchlab/internal/feedback"
	"github.com/pitchlab-ai/pitchlab/internal/metrics"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// Record is the durable snapshot of one completed call. Raw audio is never
// persisted; only transcripts, timing and derived metrics.
type Record struct {
	SessionID         string                      `json:"session_id"`
	UserID            string                      `json:"user_id,omitempty"`
	ScenarioID        string                      `json:"scenario_id"`
	Difficulty        types.Difficulty            `json:"difficulty"`
	StartedAt         time.Time                   `json:"started_at"`
	DurationMs        int64                       `json:"duration_ms"`
	TurnCount         int                         `json:"turn_count"`
	InterruptionCount int                         `json:"interruption_count"`
	Conversation      []types.Message             `json:"conversation"`
	Feedback          feedback.Payload            `json:"feedback"`
	ConvMetrics       metrics.ConversationMetrics `json:"conversation_metrics"`
	VoiceMetrics      metrics.VoiceMetrics        `json:"voice_metrics"`
}

// Sink stores completed session records. Writes are best-effort: the caller
// logs failures and never surfaces them to the client.
type Sink interface {
	SaveSession(ctx context.Context, rec Record) error
}

// HistoryReader returns the rubric scores of a user's most recent completed
// sessions, newest first, at most n entries.
type HistoryReader interface {
	RecentFeedback(ctx context.Context, userID string, n int) ([]types.FeedbackScores, error)
}

// Store combines both sides; the concrete implementations satisfy it.
type Store interface {
	Sink
	HistoryReader
}
