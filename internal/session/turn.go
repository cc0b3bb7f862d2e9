package session

import (
	"context"
	"strings"
	"time"

	"github.com/pitchlab-ai/pitchlab/internal/wire"
	"github.com/pitchlab-ai/pitchlab/pkg/audio"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// enqueueTurn runs one dialogue turn for the flushed transcript. If a turn is
// already in flight (possible because the streamer drains events mid-turn),
// the transcript is parked and coalesced with anything that arrives after it.
func (s *Session) enqueueTurn(ctx context.Context, transcript string) {
	if s.llmInFlight {
		if s.pendingTranscript == "" {
			s.pendingTranscript = transcript
		} else {
			s.pendingTranscript += " " + transcript
		}
		return
	}

	s.llmInFlight = true
	s.runTurn(ctx, transcript)
	s.llmInFlight = false

	// Dispatch anything that queued up while we were talking. One iteration
	// is enough: runTurn drains events, so further flushes land in
	// pendingTranscript and are picked up by the loop.
	for s.pendingTranscript != "" && !s.callEnded {
		next := s.pendingTranscript
		s.pendingTranscript = ""
		s.llmInFlight = true
		s.runTurn(ctx, next)
		s.llmInFlight = false
	}
}

// runTurn appends the trainee utterance, asks the LLM for the customer reply
// and streams the synthesised audio. LLM failure degrades to a spoken-text
// fallback; TTS failure degrades to text only.
func (s *Session) runTurn(ctx context.Context, transcript string) {
	s.conversation = append(s.conversation, types.Message{Role: "user", Content: transcript})
	s.turnStamps = append(s.turnStamps, types.TurnStamp{Role: "user", AtMs: s.sinceCallMs()})

	llmCtx := ctx
	if s.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, s.cfg.LLMTimeout)
		defer cancel()
	}
	start := time.Now()
	reply, err := s.cfg.LLM.Generate(llmCtx, s.conversation)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordLLM(ctx, "turn", time.Since(start), err)
	}
	if err != nil {
		// The trainee still hears something, but a failed completion never
		// enters the conversation log.
		s.log.Error("llm turn failed", "err", err)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordTurn(ctx, "fallback")
		}
		_ = s.send(ctx, wire.NewAgentText(llmFallbackText))
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordTurn(ctx, "ok")
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = "..."
	}

	// A call.end may have been handled while Generate blocked.
	if s.callEnded {
		return
	}

	s.conversation = append(s.conversation, types.Message{Role: "assistant", Content: reply})
	s.turnStamps = append(s.turnStamps, types.TurnStamp{Role: "assistant", AtMs: s.sinceCallMs()})
	_ = s.send(ctx, wire.NewAgentText(reply))

	start = time.Now()
	pcm, err := s.cfg.TTS.Synthesize(ctx, reply)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		s.log.Error("tts synthesis failed", "err", err)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordProviderError(ctx, "tts", "synthesize")
		}
		_ = s.send(ctx, wire.NewError("Customer audio is unavailable for this reply."))
		return
	}
	if s.callEnded || len(pcm) == 0 {
		return
	}

	s.streamTTS(ctx, pcm)
}

// streamTTS chunks one synthesised reply into client frames. Between frames it
// drains the event channel, so a barge-in or call end arriving mid-reply is
// observed within one frame. Each reply closes with exactly one of
// agent.audio.end or agent.interrupt.
func (s *Session) streamTTS(ctx context.Context, pcm []byte) {
	s.ttsEpoch++
	myEpoch := s.ttsEpoch
	s.interruptNotified = false
	s.agentSpeaking = true
	defer func() { s.agentSpeaking = false }()

	_ = s.send(ctx, wire.NewAgentAudioStart())

	for off := 0; off < len(pcm); off += s.cfg.FrameSize {
		s.drainEvents(ctx)
		if s.interrupted(myEpoch) {
			s.notifyInterrupt(ctx)
			return
		}

		end := off + s.cfg.FrameSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := s.send(ctx, wire.NewAgentAudioChunk(pcm[off:end], audio.DefaultSampleRate)); err != nil {
			return
		}

		s.drainFor(ctx, s.cfg.TTSFrameDelay)
		if s.interrupted(myEpoch) {
			s.notifyInterrupt(ctx)
			return
		}
	}

	s.drainEvents(ctx)
	if s.interrupted(myEpoch) {
		s.notifyInterrupt(ctx)
		return
	}
	_ = s.send(ctx, wire.NewAgentAudioEnd())
}

// interrupted reports whether this reply's stream has been cancelled, either
// by an epoch advance (barge-in, reset) or by the call ending.
func (s *Session) interrupted(myEpoch uint64) bool {
	return s.ttsEpoch != myEpoch || s.callEnded
}

// notifyInterrupt emits agent.interrupt at most once per reply. The barge-in
// handler usually sends it first; this covers cancellations that advance the
// epoch without notifying, such as call teardown.
func (s *Session) notifyInterrupt(ctx context.Context) {
	if s.interruptNotified {
		return
	}
	s.interruptNotified = true
	_ = s.send(ctx, wire.NewAgentInterrupt())
}
