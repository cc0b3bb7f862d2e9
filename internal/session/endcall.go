package session

import (
	"context"
	"time"

	"github.com/pitchlab-ai/pitchlab/internal/feedback"
	"github.com/pitchlab-ai/pitchlab/internal/metrics"
	"github.com/pitchlab-ai/pitchlab/internal/persist"
	"github.com/pitchlab-ai/pitchlab/internal/wire"
)

// handleCallEnd runs the end-of-call pipeline: cancel everything in flight,
// score the call and hand the trainee their feedback.
func (s *Session) handleCallEnd(ctx context.Context) {
	if s.callEnded || !s.callStarted {
		return
	}

	// Ending the call mid-reply is an implicit barge-in.
	s.handleInterrupt(ctx, "call_end")

	s.callEnded = true
	s.ttsEpoch++
	s.closeSTT()
	s.stopSilenceTimer()
	s.pendingTranscript = ""
	s.aggregate = ""
	s.micCapturing = false

	callDurationMs := s.sinceCallMs()
	turnCount := 0
	if n := len(s.conversation); n > 1 {
		turnCount = (n - 1) / 2
	}

	convMetrics := metrics.ComputeConversation(metrics.ConversationInput{
		Conversation:      s.conversation,
		TurnTimestamps:    s.turnStamps,
		InterruptionCount: s.interruptionCount,
		CallDurationMs:    callDurationMs,
	})
	voiceMetrics := metrics.ComputeVoice(metrics.VoiceInput{
		Segments:          s.segments,
		STTEvents:         s.sttEvents,
		TotalUserWords:    convMetrics.UserWords,
		InterruptionCount: s.interruptionCount,
		CallDurationMs:    callDurationMs,
	}, s.cfg.Weights)

	payload := s.scoreCall(ctx)

	_ = s.send(ctx, wire.NewCallFeedback(payload, convMetrics, voiceMetrics, callDurationMs, turnCount))

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.CallDuration.Record(ctx, float64(callDurationMs)/1000)
	}
	s.log.Info("call ended",
		"duration_ms", callDurationMs,
		"turns", turnCount,
		"interruptions", s.interruptionCount,
	)

	s.persistAsync(persist.Record{
		SessionID:         s.id,
		UserID:            s.userID,
		ScenarioID:        s.scenario.ID,
		Difficulty:        s.assignment.Level,
		StartedAt:         s.startedAt,
		DurationMs:        callDurationMs,
		TurnCount:         turnCount,
		InterruptionCount: s.interruptionCount,
		Conversation:      s.conversation,
		Feedback:          payload,
		ConvMetrics:       convMetrics,
		VoiceMetrics:      voiceMetrics,
	})
}

// scoreCall asks the rubric scorer for the feedback payload, degrading to the
// sentinel when the scorer is missing or fails.
func (s *Session) scoreCall(ctx context.Context) feedback.Payload {
	if s.cfg.Scorer == nil {
		return feedback.Sentinel()
	}
	scoreCtx := ctx
	if s.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, s.cfg.LLMTimeout)
		defer cancel()
	}
	start := time.Now()
	payload, err := s.cfg.Scorer.Score(scoreCtx, s.conversation)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordLLM(ctx, "feedback", time.Since(start), err)
	}
	if err != nil {
		// Score already returned the sentinel payload alongside the error.
		s.log.Error("feedback scoring failed", "err", err)
	}
	return payload
}

// persistAsync writes the record off the owning goroutine. Unauthenticated
// sessions are never persisted; failures are logged, never surfaced.
func (s *Session) persistAsync(rec persist.Record) {
	if s.cfg.Store == nil || s.userID == "" {
		s.log.Debug("skipping persistence", "authenticated", s.userID != "")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.cfg.Store.SaveSession(ctx, rec); err != nil {
			s.log.Error("persisting session", "err", err)
		}
	}()
}
