package session

import (
	"context"
	"strings"
	"time"

	"github.com/pitchlab-ai/pitchlab/internal/difficulty"
	"github.com/pitchlab-ai/pitchlab/internal/scenario"
	"github.com/pitchlab-ai/pitchlab/internal/wire"
	"github.com/pitchlab-ai/pitchlab/pkg/audio"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/stt"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// handleFrame routes one decoded client frame.
func (s *Session) handleFrame(ctx context.Context, msg wire.ClientMessage) {
	switch msg.Type {
	case wire.TypeAuth:
		s.handleAuth(msg.Token)
	case wire.TypeScenarioSelect:
		s.handleScenarioSelect(msg.ScenarioID)
	case wire.TypeDifficultyMode:
		s.handleDifficultyMode(ctx, *msg.Enabled)
	case wire.TypeUserAudioStart:
		s.handleAudioStart(ctx, msg.SampleRate)
	case wire.TypeUserAudioChunk:
		s.handleAudioChunk(msg)
	case wire.TypeUserAudioEnd:
		s.handleAudioEnd(ctx)
	case wire.TypeUserInterrupt:
		s.handleInterrupt(ctx, "client")
	case wire.TypeCallEnd:
		s.handleCallEnd(ctx)
	case wire.TypeCallReset:
		s.handleCallReset()
	case wire.TypePong:
		if msg.Timestamp != nil {
			s.log.Debug("heartbeat", "rtt_ms", s.nowMs()-*msg.Timestamp)
		}
	}
}

func (s *Session) handleAuth(token string) {
	if s.cfg.Auth == nil {
		s.log.Warn("auth frame received but no verifier configured")
		return
	}
	userID, err := s.cfg.Auth.VerifyToken(token)
	if err != nil {
		// The session continues unauthenticated; it just won't be persisted.
		s.log.Warn("auth rejected", "err", err)
		return
	}
	s.userID = userID
	s.log.Info("authenticated", "user_id", userID)
}

func (s *Session) handleScenarioSelect(id string) {
	if s.locked {
		s.log.Debug("scenario already locked, ignoring select", "scenario", id)
		return
	}
	sc, ok := s.cfg.Catalog.Get(id)
	if !ok {
		s.log.Warn("unknown scenario", "scenario", id)
		return
	}
	s.scenario = sc
	s.log.Info("scenario selected", "scenario", id)
}

func (s *Session) handleDifficultyMode(ctx context.Context, enabled bool) {
	s.autoDifficulty = enabled
	assignment := s.resolveDifficulty(ctx)
	if !s.locked {
		s.assignment = assignment
	}
	_ = s.send(ctx, wire.NewDifficultyAssigned(
		string(assignment.Level), assignment.Averages, assignment.AutoEnabled))
}

// resolveDifficulty classifies the trainee from recent session history.
func (s *Session) resolveDifficulty(ctx context.Context) difficulty.Assignment {
	var history []types.FeedbackScores
	if s.cfg.Store != nil && s.userID != "" {
		var err error
		history, err = s.cfg.Store.RecentFeedback(ctx, s.userID, difficulty.HistoryWindow)
		if err != nil {
			s.log.Warn("reading feedback history", "err", err)
			history = nil
		}
	}
	return difficulty.Select(history, s.autoDifficulty)
}

// handleAudioStart locks the scenario on first capture, finalises the
// persona prompt and opens an STT stream.
func (s *Session) handleAudioStart(ctx context.Context, sampleRate int) {
	if s.callEnded {
		return
	}
	s.audioStarts++

	if !s.locked {
		s.assignment = s.resolveDifficulty(ctx)
		_ = s.send(ctx, wire.NewDifficultyAssigned(
			string(s.assignment.Level), s.assignment.Averages, s.assignment.AutoEnabled))

		prompt := scenario.ComposePrompt(s.scenario, s.assignment.Modifier())
		s.conversation = []types.Message{{Role: "system", Content: prompt}}
		s.locked = true
		s.callStarted = true
		s.callStartMs = s.nowMs()
		s.startedAt = time.Now()
		s.log.Info("call started",
			"scenario", s.scenario.ID,
			"difficulty", s.assignment.Level,
		)
	}

	if s.sttHandle == nil {
		handle, err := s.cfg.STT.StartStream(ctx, stt.StreamConfig{
			SampleRate: sampleRate,
			Channels:   1,
		})
		if err != nil {
			s.log.Error("stt connect failed", "err", err)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordProviderError(ctx, "stt", "connect")
			}
			_ = s.send(ctx, wire.NewError("Speech recognition is unavailable."))
			return
		}
		s.sttHandle = handle
		s.sttOpenedAt = time.Now()
		go s.forwardSTT(ctx, handle)
	}

	s.micCapturing = true
	s.stopSilenceTimer()
	s.segments = append(s.segments, types.SpeakingSegment{
		StartMs:    s.sinceCallMs(),
		SampleRate: sampleRate,
	})
}

// forwardSTT pumps provider events into the session's event channel. It
// exits when the provider closes the stream or the session context ends.
func (s *Session) forwardSTT(ctx context.Context, handle stt.SessionHandle) {
	for ev := range handle.Events() {
		select {
		case s.events <- event{kind: evSTT, stt: ev}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handleAudioChunk(msg wire.ClientMessage) {
	if !s.micCapturing || s.sttHandle == nil {
		return
	}
	pcm, err := msg.AudioPayload()
	if err != nil {
		s.log.Warn("dropping audio chunk", "err", err)
		return
	}
	if err := s.sttHandle.SendAudio(pcm); err != nil {
		s.log.Warn("forwarding audio to stt", "err", err)
	}
	if n := len(s.segments); n > 0 {
		s.segments[n-1].Samples += int64(audio.SampleCount(pcm))
	}
}

// handleAudioEnd closes the mic side: the STT stream is closed, the
// speaking segment sealed and any buffered transcript flushed.
func (s *Session) handleAudioEnd(ctx context.Context) {
	if !s.micCapturing {
		return
	}
	s.micCapturing = false
	if n := len(s.segments); n > 0 {
		s.segments[n-1].EndMs = s.sinceCallMs()
	}
	s.closeSTT()
	s.stopSilenceTimer()
	s.flushTranscript(ctx)
}

// handleSTT routes one recognition event from the provider.
func (s *Session) handleSTT(ctx context.Context, ev stt.Event) {
	if s.callEnded {
		return
	}
	switch ev.Kind {
	case stt.EventPartial:
		if ev.Text != "" {
			_ = s.send(ctx, wire.NewSTTPartial(ev.Text))
		}
	case stt.EventFinal:
		s.handleFinal(ctx, ev)
	case stt.EventUtteranceEnd:
		s.flushTranscript(ctx)
	}
}

func (s *Session) handleFinal(ctx context.Context, ev stt.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	_ = s.send(ctx, wire.NewSTTFinal(text))

	if s.aggregate == "" {
		s.aggregate = text
	} else {
		s.aggregate += " " + text
	}
	s.sttEvents = append(s.sttEvents, types.STTEvent{
		Text:       text,
		AtMs:       s.sinceCallMs(),
		Confidence: ev.Confidence,
	})

	// The provider's utterance end is the primary flush trigger; the timer
	// covers finals that arrive without one, such as after the mic closes.
	// The fire-time guard keeps it inert while the mic is still capturing.
	s.armSilenceTimer()

	s.maybeCoach(ctx)
}

// maybeCoach fires the hint side-loop: at most once per trainee turn, never
// inside the cooldown window, and only once there is dialogue to coach on.
func (s *Session) maybeCoach(ctx context.Context) {
	if s.cfg.Coach == nil || s.coachHintSentForTurn || len(s.conversation) < 3 {
		return
	}
	if s.nowMs()-s.lastCoachHintMs < s.cfg.CoachCooldown.Milliseconds() {
		return
	}

	hintCtx := ctx
	if s.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		hintCtx, cancel = context.WithTimeout(ctx, s.cfg.LLMTimeout)
		defer cancel()
	}
	start := time.Now()
	hint, err := s.cfg.Coach.Hint(hintCtx, s.conversation)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordLLM(ctx, "coach", time.Since(start), err)
	}
	if err != nil {
		// Hints are best-effort; a miss is not worth the client's attention.
		s.log.Debug("coach hint skipped", "err", err)
		return
	}
	s.coachHintSentForTurn = true
	s.lastCoachHintMs = s.nowMs()
	_ = s.send(ctx, wire.NewCoachHint(hint))
}

// flushTranscript hands the aggregated utterance to the turn queue.
func (s *Session) flushTranscript(ctx context.Context) {
	text := strings.TrimSpace(s.aggregate)
	s.aggregate = ""
	s.stopSilenceTimer()
	if text == "" || s.callEnded {
		return
	}
	s.coachHintSentForTurn = false
	s.enqueueTurn(ctx, text)
}

// handleInterrupt is the barge-in path shared by the explicit client signal
// and call.end. Advancing the epoch halts the streamer before its next send.
func (s *Session) handleInterrupt(ctx context.Context, source string) {
	if !s.agentSpeaking {
		return
	}
	s.interruptionCount++
	s.ttsEpoch++
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordInterruption(ctx, source)
	}
	if !s.interruptNotified {
		s.interruptNotified = true
		_ = s.send(ctx, wire.NewAgentInterrupt())
	}
	s.log.Debug("barge-in", "source", source)
}

// handleCallReset clears all per-call state except the transport and the
// authenticated user, returning the session to the default scenario.
func (s *Session) handleCallReset() {
	s.ttsEpoch++
	s.closeSTT()
	s.stopSilenceTimer()

	s.id = s.newSessionID()
	s.log = s.cfg.Logger.With("session_id", s.id)
	s.scenario = s.cfg.Catalog.Default()
	s.locked = false
	s.assignment = difficulty.Assignment{}
	s.autoDifficulty = true
	s.conversation = nil
	s.turnStamps = nil
	s.segments = nil
	s.sttEvents = nil
	s.interruptionCount = 0
	s.callStarted = false
	s.callStartMs = 0
	s.callEnded = false
	s.interruptNotified = false
	s.agentSpeaking = false
	s.pendingTranscript = ""
	s.llmInFlight = false
	s.aggregate = ""
	s.micCapturing = false
	s.audioStarts = 0
	s.coachHintSentForTurn = false
	s.lastCoachHintMs = -1 << 62

	s.log.Info("session reset")
}
