// Package session implements the per-connection heart of the gateway: a
// state machine driving one training call across the STT, LLM and TTS
// providers.
//
// Concurrency model: every Session is owned by exactly one goroutine, the
// one running [Session.Run]. All external inputs (client frames, STT events,
// the fallback silence timer) funnel into a single channel consumed by that
// goroutine, so session state needs no locking and events are handled in
// arrival order. Blocking provider calls (LLM, TTS) suspend the owning
// goroutine; the TTS streamer drains the event channel between frames so a
// barge-in is observed within one frame.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pitchlab-ai/pitchlab/internal/auth"
	"github.com/pitchlab-ai/pitchlab/internal/coach"
	"github.com/pitchlab-ai/pitchlab/internal/difficulty"
	"github.com/pitchlab-ai/pitchlab/internal/feedback"
	"github.com/pitchlab-ai/pitchlab/internal/metrics"
	"github.com/pitchlab-ai/pitchlab/internal/observe"
	"github.com/pitchlab-ai/pitchlab/internal/persist"
	"github.com/pitchlab-ai/pitchlab/internal/scenario"
	"github.com/pitchlab-ai/pitchlab/internal/wire"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/stt"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/tts"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// Defaults for the session timers and the outbound audio framing.
const (
	DefaultSilenceTimeout    = 5000 * time.Millisecond
	DefaultHeartbeatInterval = 5000 * time.Millisecond
	DefaultFrameSize         = 4096

	// eventBuffer sizes the session's single inbound event channel.
	eventBuffer = 256
)

// llmFallbackText is spoken in place of a reply when the LLM is unavailable.
const llmFallbackText = "The customer is temporarily unavailable. Please try again."

// Sender delivers one server frame to the client. The server package
// implements it over the WebSocket; tests use an in-memory recorder.
type Sender interface {
	Send(ctx context.Context, msg any) error
}

// Config wires a Session to its collaborators. STT, LLM, TTS and Catalog are
// required; everything else degrades gracefully when nil or zero.
type Config struct {
	STT     stt.Provider
	LLM     llm.Provider
	TTS     tts.Provider
	Coach   *coach.Generator
	Scorer  *feedback.Scorer
	Auth    auth.Verifier
	Store   persist.Store
	Catalog *scenario.Catalog

	Weights metrics.ScoreWeights
	Metrics *observe.Metrics
	Logger  *slog.Logger

	// LLMTimeout bounds each chat completion call. Zero means no deadline.
	LLMTimeout time.Duration

	// SilenceTimeout is the fallback transcript flush delay after the mic
	// stops without an utterance-end from the STT provider.
	SilenceTimeout time.Duration

	// HeartbeatInterval is the ping cadence.
	HeartbeatInterval time.Duration

	// CoachCooldown is the minimum gap between two coach hints.
	CoachCooldown time.Duration

	// TTSFrameDelay paces outbound audio frames. Zero sends as fast as the
	// client socket accepts; tests raise it to land events between frames.
	TTSFrameDelay time.Duration

	// FrameSize is the outbound audio frame size in bytes.
	FrameSize int
}

func (c *Config) applyDefaults() {
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.CoachCooldown <= 0 {
		c.CoachCooldown = coach.Cooldown
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// eventKind discriminates the session's inbound events.
type eventKind int

const (
	evFrame eventKind = iota
	evSTT
	evSilence
)

type event struct {
	kind  eventKind
	frame wire.ClientMessage
	stt   stt.Event

	// gen guards silence-timer events against stale fires after a re-arm.
	gen uint64
}

// Session is one live training call. All state is owned by the goroutine
// running Run; only Deliver and the STT forwarder touch the events channel
// from outside.
type Session struct {
	id     string
	cfg    Config
	log    *slog.Logger
	sender Sender
	events chan event
	epoch0 time.Time

	userID    string
	startedAt time.Time

	scenario scenario.Scenario
	locked   bool

	assignment     difficulty.Assignment
	autoDifficulty bool

	conversation      []types.Message
	turnStamps        []types.TurnStamp
	segments          []types.SpeakingSegment
	sttEvents         []types.STTEvent
	interruptionCount int

	callStarted bool
	callStartMs int64
	callEnded   bool

	ttsEpoch          uint64
	interruptNotified bool
	agentSpeaking     bool

	pendingTranscript string
	llmInFlight       bool
	aggregate         string

	micCapturing bool
	sttHandle    stt.SessionHandle
	sttOpenedAt  time.Time
	audioStarts  int

	silenceGen uint64
	silence    *time.Timer

	coachHintSentForTurn bool
	lastCoachHintMs      int64
}

// New creates a Session speaking to the client through sender.
func New(cfg Config, sender Sender) *Session {
	cfg.applyDefaults()
	s := &Session{
		id:              uuid.NewString(),
		cfg:             cfg,
		sender:          sender,
		events:          make(chan event, eventBuffer),
		epoch0:          time.Now(),
		autoDifficulty:  true,
		lastCoachHintMs: -1 << 62,
	}
	s.log = cfg.Logger.With("session_id", s.id)
	if cfg.Catalog != nil {
		s.scenario = cfg.Catalog.Default()
	}
	return s
}

// ID returns the session's identifier, used in logs and persistence.
func (s *Session) ID() string { return s.id }

func (s *Session) newSessionID() string { return uuid.NewString() }

// Deliver decodes one raw client frame and queues it for the owning
// goroutine. Malformed frames are logged and dropped; they never fail the
// session.
func (s *Session) Deliver(ctx context.Context, raw []byte) {
	msg, err := wire.DecodeClient(raw)
	if err != nil {
		s.log.Warn("dropping client frame", "err", err)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.FramesDropped.Add(ctx, 1)
		}
		return
	}
	select {
	case s.events <- event{kind: evFrame, frame: msg}:
	case <-ctx.Done():
	}
}

// Run drives the session until ctx is cancelled (transport closed). It must
// be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("session started")
	if err := s.send(ctx, wire.NewAgentConnected()); err != nil {
		return err
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	defer s.cleanup()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session closed", "reason", ctx.Err())
			return nil
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-heartbeat.C:
			_ = s.send(ctx, wire.NewPing(s.nowMs()))
		}
	}
}

// handle is the single dispatch point for every inbound event.
func (s *Session) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evFrame:
		s.handleFrame(ctx, ev.frame)
	case evSTT:
		s.handleSTT(ctx, ev.stt)
	case evSilence:
		s.handleSilence(ctx, ev.gen)
	}
}

// drainEvents handles everything already queued without blocking. The TTS
// streamer calls it between frames; this is the yield that bounds barge-in
// latency to one frame.
func (s *Session) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-s.events:
			s.handle(ctx, ev)
		default:
			return
		}
	}
}

// drainFor handles events for the given duration, then returns. With a zero
// duration it degrades to a single non-blocking poll.
func (s *Session) drainFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		s.drainEvents(ctx)
		return
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for {
		select {
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// nowMs is the session's monotonic clock.
func (s *Session) nowMs() int64 {
	return time.Since(s.epoch0).Milliseconds()
}

// sinceCallMs is nowMs relative to call start.
func (s *Session) sinceCallMs() int64 {
	if !s.callStarted {
		return 0
	}
	return s.nowMs() - s.callStartMs
}

func (s *Session) send(ctx context.Context, msg any) error {
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.Warn("send failed", "err", err)
		return err
	}
	return nil
}

// armSilenceTimer (re)starts the fallback flush timer.
func (s *Session) armSilenceTimer() {
	s.silenceGen++
	gen := s.silenceGen
	if s.silence != nil {
		s.silence.Stop()
	}
	s.silence = time.AfterFunc(s.cfg.SilenceTimeout, func() {
		s.events <- event{kind: evSilence, gen: gen}
	})
}

func (s *Session) stopSilenceTimer() {
	s.silenceGen++
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
}

// handleSilence is the fallback flush: it fires only when the mic has
// stopped and the STT provider never sent an utterance end.
func (s *Session) handleSilence(ctx context.Context, gen uint64) {
	if gen != s.silenceGen || s.micCapturing || s.callEnded {
		return
	}
	s.log.Debug("silence timer flush")
	s.flushTranscript(ctx)
}

// cleanup releases provider resources when the transport goes away.
func (s *Session) cleanup() {
	s.ttsEpoch++
	s.stopSilenceTimer()
	s.closeSTT()
}

func (s *Session) closeSTT() {
	if s.sttHandle == nil {
		return
	}
	if err := s.sttHandle.Close(); err != nil {
		s.log.Warn("closing stt stream", "err", err)
	}
	if s.cfg.Metrics != nil && !s.sttOpenedAt.IsZero() {
		s.cfg.Metrics.STTDuration.Record(context.Background(), time.Since(s.sttOpenedAt).Seconds())
	}
	s.sttOpenedAt = time.Time{}
	s.sttHandle = nil
}
