// Package postgres provides a PostgreSQL-backed session store. Structured
// sub-fields (conversation, feedback, metrics) are serialised as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pitchlab-ai/pitchlab/internal/persist"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// Schema is the SQL DDL for the training_sessions table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS training_sessions (
    session_id           TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL DEFAULT '',
    scenario_id          TEXT NOT NULL,
    difficulty           TEXT NOT NULL DEFAULT 'Intermediate',
    started_at           TIMESTAMPTZ NOT NULL,
    duration_ms          BIGINT NOT NULL DEFAULT 0,
    turn_count           INTEGER NOT NULL DEFAULT 0,
    interruption_count   INTEGER NOT NULL DEFAULT 0,
    conversation         JSONB NOT NULL DEFAULT '[]',
    feedback             JSONB NOT NULL DEFAULT '{}',
    conversation_metrics JSONB NOT NULL DEFAULT '{}',
    voice_metrics        JSONB NOT NULL DEFAULT '{}',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_training_sessions_user ON training_sessions(user_id, started_at DESC);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists session records in PostgreSQL.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ persist.Store = (*Store)(nil)

// New creates a store on the given connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL, creating the training_sessions table
// and index if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// SaveSession inserts one completed session. A record with a duplicate
// session id overwrites the previous row; call.reset produces a fresh id so
// this only happens on retried writes.
func (s *Store) SaveSession(ctx context.Context, rec persist.Record) error {
	conversation, err := json.Marshal(rec.Conversation)
	if err != nil {
		return fmt.Errorf("postgres: marshal conversation: %w", err)
	}
	fb, err := json.Marshal(rec.Feedback)
	if err != nil {
		return fmt.Errorf("postgres: marshal feedback: %w", err)
	}
	convMetrics, err := json.Marshal(rec.ConvMetrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal conversation metrics: %w", err)
	}
	voiceMetrics, err := json.Marshal(rec.VoiceMetrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal voice metrics: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO training_sessions (
			session_id, user_id, scenario_id, difficulty, started_at,
			duration_ms, turn_count, interruption_count,
			conversation, feedback, conversation_metrics, voice_metrics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO UPDATE SET
			duration_ms = EXCLUDED.duration_ms,
			turn_count = EXCLUDED.turn_count,
			interruption_count = EXCLUDED.interruption_count,
			conversation = EXCLUDED.conversation,
			feedback = EXCLUDED.feedback,
			conversation_metrics = EXCLUDED.conversation_metrics,
			voice_metrics = EXCLUDED.voice_metrics`,
		rec.SessionID, rec.UserID, rec.ScenarioID, string(rec.Difficulty), rec.StartedAt,
		rec.DurationMs, rec.TurnCount, rec.InterruptionCount,
		conversation, fb, convMetrics, voiceMetrics,
	)
	if err != nil {
		return fmt.Errorf("postgres: save session %s: %w", rec.SessionID, err)
	}
	return nil
}

// RecentFeedback returns the rubric scores of the user's most recent
// completed sessions, newest first. Sessions whose feedback carries
// error:true are excluded; a failed rubric says nothing about performance.
func (s *Store) RecentFeedback(ctx context.Context, userID string, n int) ([]types.FeedbackScores, error) {
	rows, err := s.db.Query(ctx, `
		SELECT feedback
		FROM training_sessions
		WHERE user_id = $1 AND NOT COALESCE((feedback->>'error')::boolean, false)
		ORDER BY started_at DESC
		LIMIT $2`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent feedback for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []types.FeedbackScores
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan feedback: %w", err)
		}
		var scores types.FeedbackScores
		if err := json.Unmarshal(raw, &scores); err != nil {
			return nil, fmt.Errorf("postgres: decode feedback: %w", err)
		}
		out = append(out, scores)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent feedback for %s: %w", userID, err)
	}
	return out, nil
}
