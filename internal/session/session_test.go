package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pitchlab-ai/pitchlab/internal/auth"
	"github.com/pitchlab-ai/pitchlab/internal/coach"
	"github.com/pitchlab-ai/pitchlab/internal/feedback"
	"github.com/pitchlab-ai/pitchlab/internal/metrics"
	"github.com/pitchlab-ai/pitchlab/internal/observe"
	persistmock "github.com/pitchlab-ai/pitchlab/internal/persist/mock"
	"github.com/pitchlab-ai/pitchlab/internal/scenario"
	"github.com/pitchlab-ai/pitchlab/internal/wire"
	llmmock "github.com/pitchlab-ai/pitchlab/pkg/provider/llm/mock"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/stt"
	sttmock "github.com/pitchlab-ai/pitchlab/pkg/provider/stt/mock"
	ttsmock "github.com/pitchlab-ai/pitchlab/pkg/provider/tts/mock"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const validRubric = `{
	"overall_score": 7.5,
	"strengths": ["good opening"],
	"weaknesses": ["no close"],
	"objection_handling": 6,
	"communication_clarity": 8,
	"confidence": 7,
	"missed_opportunities": ["pricing anchor"],
	"actionable_suggestions": ["ask for the sale"]
}`

// recorder is an in-memory Sender capturing every frame for assertions.
type recorder struct {
	mu     sync.Mutex
	frames []any
}

func (r *recorder) Send(_ context.Context, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, msg)
	return nil
}

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.frames))
	copy(out, r.frames)
	return out
}

func frameType(msg any) string {
	switch f := msg.(type) {
	case wire.AgentConnected:
		return f.Type
	case wire.Ping:
		return f.Type
	case wire.DifficultyAssigned:
		return f.Type
	case wire.Text:
		return f.Type
	case wire.Signal:
		return f.Type
	case wire.AgentAudioChunk:
		return f.Type
	case wire.CallFeedback:
		return f.Type
	default:
		return fmt.Sprintf("%T", msg)
	}
}

func (r *recorder) typeSeq() []string {
	frames := r.snapshot()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = frameType(f)
	}
	return out
}

func (r *recorder) countType(typ string) int {
	n := 0
	for _, t := range r.typeSeq() {
		if t == typ {
			n++
		}
	}
	return n
}

// awaitType polls until a frame of the given type shows up. Safe to call off
// the test goroutine, unlike waitFor.
func (r *recorder) awaitType(typ string) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.countType(typ) > 0 {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

// firstIndex returns the position of the first frame of the given type, or -1.
func (r *recorder) firstIndex(typ string) int {
	for i, t := range r.typeSeq() {
		if t == typ {
			return i
		}
	}
	return -1
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

type fixture struct {
	sess     *Session
	rec      *recorder
	sttSess  *sttmock.Session
	sttProv  *sttmock.Provider
	llm      *llmmock.Provider
	tts      *ttsmock.Provider
	scoreLLM *llmmock.Provider
	store    *persistmock.Store
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	fx := &fixture{
		rec:      &recorder{},
		sttSess:  sttmock.NewSession(),
		llm:      &llmmock.Provider{Replies: []string{"Our budget is tight."}},
		tts:      &ttsmock.Provider{PCM: make([]byte, 6000)},
		scoreLLM: &llmmock.Provider{Replies: []string{validRubric}},
		store:    &persistmock.Store{},
	}
	fx.sttProv = &sttmock.Provider{Session: fx.sttSess}

	cfg := Config{
		STT:               fx.sttProv,
		LLM:               fx.llm,
		TTS:               fx.tts,
		Scorer:            feedback.New(fx.scoreLLM),
		Auth:              auth.Insecure{},
		Store:             fx.store,
		Catalog:           scenario.NewCatalog(),
		Weights:           metrics.DefaultScoreWeights(),
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		LLMTimeout:        time.Second,
		SilenceTimeout:    40 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		CoachCooldown:     time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	fx.sess = New(cfg, fx.rec)
	return fx
}

func frame(t *testing.T, raw string) wire.ClientMessage {
	t.Helper()
	msg, err := wire.DecodeClient([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeClient(%s): %v", raw, err)
	}
	return msg
}

// startCall drives user.audio.start synchronously on the test goroutine.
func (fx *fixture) startCall(t *testing.T, ctx context.Context) {
	t.Helper()
	fx.sess.handleFrame(ctx, frame(t, `{"type":"user.audio.start","sampleRate":16000}`))
}

// speak feeds one final transcript followed by the provider's utterance end,
// driving a complete turn through LLM and TTS before returning.
func (fx *fixture) speak(t *testing.T, ctx context.Context, text string) {
	t.Helper()
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: text, Confidence: 0.92})
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventUtteranceEnd})
}

func TestRunGreetsAndHeartbeats(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(c *Config) { c.HeartbeatInterval = 10 * time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.sess.Run(ctx) }()

	waitFor(t, "agent_connected", func() bool { return fx.rec.countType(wire.TypeAgentConnected) == 1 })
	waitFor(t, "ping", func() bool { return fx.rec.countType(wire.TypePing) >= 1 })

	// Malformed frames are dropped without killing the session.
	fx.sess.Deliver(ctx, []byte(`{"type":"no.such.frame"}`))
	fx.sess.Deliver(ctx, []byte(`{"type":"pong","timestamp":12}`))

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestFullTurn(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventPartial, Text: "hi"})
	fx.speak(t, ctx, "hi there")

	seq := fx.rec.typeSeq()
	want := []string{
		wire.TypeDifficultyAssigned,
		wire.TypeSTTPartial,
		wire.TypeSTTFinal,
		wire.TypeAgentText,
		wire.TypeAgentAudioStart,
		wire.TypeAgentAudioChunk,
		wire.TypeAgentAudioChunk,
		wire.TypeAgentAudioEnd,
	}
	if len(seq) != len(want) {
		t.Fatalf("frame sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("frame[%d] = %s, want %s (full: %v)", i, seq[i], want[i], seq)
		}
	}

	frames := fx.rec.snapshot()
	if text := frames[3].(wire.Text); text.Text != "Our budget is tight." {
		t.Errorf("agent.text = %q", text.Text)
	}

	// 6000 bytes of PCM split at 4096 gives frames of 4096 and 1904 bytes.
	first := frames[5].(wire.AgentAudioChunk)
	pcm, err := base64.StdEncoding.DecodeString(first.Payload)
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if len(pcm) != 4096 || first.Format != wire.AudioFormat || first.SampleRate != 16000 {
		t.Errorf("first chunk = %d bytes, format %q, rate %d", len(pcm), first.Format, first.SampleRate)
	}

	call, ok := fx.llm.LastCall()
	if !ok {
		t.Fatal("LLM was never called")
	}
	if len(call.Messages) != 2 {
		t.Fatalf("LLM saw %d messages, want system + user", len(call.Messages))
	}
	if call.Messages[0].Role != "system" || !strings.Contains(call.Messages[0].Content, "IMPORTANT") {
		t.Errorf("system prompt missing role-compliance suffix: %q", call.Messages[0].Content)
	}
	if call.Messages[1].Content != "hi there" {
		t.Errorf("user turn = %q", call.Messages[1].Content)
	}
}

func TestFinalsAggregateAcrossPartialSilence(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "our plan"})
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "costs too much"})
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventUtteranceEnd})

	call, ok := fx.llm.LastCall()
	if !ok {
		t.Fatal("LLM was never called")
	}
	if got := call.Messages[len(call.Messages)-1].Content; got != "our plan costs too much" {
		t.Errorf("aggregated transcript = %q", got)
	}
}

func TestEmptyAggregateIsDropped(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventUtteranceEnd})

	if n := fx.llm.CallCount(); n != 0 {
		t.Fatalf("LLM called %d times for an empty utterance", n)
	}
}

func TestBargeInStopsStream(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(c *Config) {
		c.TTSFrameDelay = 15 * time.Millisecond
	})
	fx.tts.PCM = make([]byte, 10*DefaultFrameSize)
	ctx := context.Background()

	fx.startCall(t, ctx)

	// Deliver the barge-in once the first audio frame is on the wire; the
	// streamer picks it up while draining between frames.
	go func() {
		if fx.rec.awaitType(wire.TypeAgentAudioChunk) {
			fx.sess.Deliver(ctx, []byte(`{"type":"user.interrupt"}`))
		}
	}()

	fx.speak(t, ctx, "let me stop you right there")

	if n := fx.rec.countType(wire.TypeAgentInterrupt); n != 1 {
		t.Fatalf("agent.interrupt sent %d times, want exactly 1", n)
	}
	if n := fx.rec.countType(wire.TypeAgentAudioEnd); n != 0 {
		t.Fatalf("agent.audio.end sent %d times after a barge-in", n)
	}
	if n := fx.rec.countType(wire.TypeAgentAudioChunk); n >= 10 {
		t.Fatalf("all %d frames streamed despite the barge-in", n)
	}
	// No frame may follow the interrupt notification.
	seq := fx.rec.typeSeq()
	last := seq[len(seq)-1]
	if last != wire.TypeAgentInterrupt {
		t.Fatalf("last frame = %s, want agent.interrupt (full: %v)", last, seq)
	}
}

func TestInterruptIgnoredWhenAgentSilent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleFrame(ctx, frame(t, `{"type":"user.interrupt"}`))

	if n := fx.rec.countType(wire.TypeAgentInterrupt); n != 0 {
		t.Fatalf("agent.interrupt sent %d times while agent was silent", n)
	}
}

func TestCallEndMidStream(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(c *Config) {
		c.TTSFrameDelay = 15 * time.Millisecond
	})
	fx.tts.PCM = make([]byte, 10*DefaultFrameSize)
	ctx := context.Background()

	fx.sess.handleFrame(ctx, frame(t, `{"type":"auth","token":"trainee-7.sig"}`))
	fx.startCall(t, ctx)

	go func() {
		if fx.rec.awaitType(wire.TypeAgentAudioChunk) {
			fx.sess.Deliver(ctx, []byte(`{"type":"call.end"}`))
		}
	}()

	fx.speak(t, ctx, "actually I have to go")

	if n := fx.rec.countType(wire.TypeAgentInterrupt); n != 1 {
		t.Fatalf("agent.interrupt sent %d times, want exactly 1", n)
	}
	if n := fx.rec.countType(wire.TypeAgentAudioEnd); n != 0 {
		t.Fatal("agent.audio.end sent despite call.end cancellation")
	}
	intIdx := fx.rec.firstIndex(wire.TypeAgentInterrupt)
	fbIdx := fx.rec.firstIndex(wire.TypeCallFeedback)
	if fbIdx < 0 {
		t.Fatal("call.feedback never sent")
	}
	if intIdx < 0 || intIdx > fbIdx {
		t.Fatalf("agent.interrupt at %d must precede call.feedback at %d", intIdx, fbIdx)
	}

	waitFor(t, "persisted record", func() bool { return len(fx.store.Saved()) == 1 })
	rec := fx.store.Saved()[0]
	if rec.UserID != "trainee-7" {
		t.Errorf("record user = %q", rec.UserID)
	}
	if rec.InterruptionCount != 1 {
		t.Errorf("record interruptions = %d, want 1", rec.InterruptionCount)
	}
}

func TestCallEndFeedback(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.sess.handleFrame(ctx, frame(t, `{"type":"auth","token":"trainee-1.sig"}`))
	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello can I tell you about our product")
	fx.sess.handleFrame(ctx, frame(t, `{"type":"user.audio.end"}`))
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.end"}`))

	fbIdx := fx.rec.firstIndex(wire.TypeCallFeedback)
	if fbIdx < 0 {
		t.Fatal("call.feedback never sent")
	}
	fb := fx.rec.snapshot()[fbIdx].(wire.CallFeedback)
	payload := fb.Payload.(feedback.Payload)
	if payload.Error {
		t.Fatal("payload marked error for a valid rubric")
	}
	if payload.OverallScore != 7.5 {
		t.Errorf("overall = %v, want 7.5", payload.OverallScore)
	}
	if fb.TurnCount != 1 {
		t.Errorf("turnCount = %d, want 1", fb.TurnCount)
	}
	conv := fb.ConversationMetrics.(metrics.ConversationMetrics)
	if conv.UserWords == 0 {
		t.Error("conversation metrics missing user words")
	}

	// The scorer sees the relabelled transcript, not raw roles.
	call, ok := fx.scoreLLM.LastCall()
	if !ok {
		t.Fatal("scorer LLM never called")
	}
	if !strings.Contains(call.Messages[0].Content, "Salesperson:") {
		t.Errorf("rubric request missing transcript: %q", call.Messages[0].Content)
	}

	waitFor(t, "persisted record", func() bool { return len(fx.store.Saved()) == 1 })
	rec := fx.store.Saved()[0]
	if rec.TurnCount != 1 || len(rec.Conversation) != 3 {
		t.Errorf("record turns = %d, conversation = %d messages", rec.TurnCount, len(rec.Conversation))
	}
	if rec.Feedback.OverallScore != 7.5 {
		t.Errorf("record overall = %v", rec.Feedback.OverallScore)
	}
}

func TestCallEndIsIdempotent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.end"}`))
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.end"}`))

	if n := fx.rec.countType(wire.TypeCallFeedback); n != 1 {
		t.Fatalf("call.feedback sent %d times, want 1", n)
	}
}

func TestFeedbackSentinelOnUnparsableRubric(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	fx.scoreLLM.Replies = []string{"I had some thoughts about the call."}
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.end"}`))

	fbIdx := fx.rec.firstIndex(wire.TypeCallFeedback)
	if fbIdx < 0 {
		t.Fatal("call.feedback never sent")
	}
	payload := fx.rec.snapshot()[fbIdx].(wire.CallFeedback).Payload.(feedback.Payload)
	if !payload.Error {
		t.Fatal("expected sentinel payload for unparsable rubric")
	}
}

func TestUnauthenticatedSessionIsNotPersisted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.end"}`))

	time.Sleep(50 * time.Millisecond)
	if n := len(fx.store.Saved()); n != 0 {
		t.Fatalf("persisted %d records without auth", n)
	}
}

func TestLLMFailureFallsBackToText(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	fx.llm.Err = fmt.Errorf("upstream 500")
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")

	idx := fx.rec.firstIndex(wire.TypeAgentText)
	if idx < 0 {
		t.Fatal("no agent.text after LLM failure")
	}
	if text := fx.rec.snapshot()[idx].(wire.Text); text.Text != llmFallbackText {
		t.Errorf("fallback text = %q", text.Text)
	}
	if n := fx.tts.CallCount(); n != 0 {
		t.Fatalf("TTS called %d times for a failed turn", n)
	}
	if n := fx.rec.countType(wire.TypeAgentAudioStart); n != 0 {
		t.Fatal("audio started for a failed turn")
	}
}

func TestTTSFailureDegradesToTextOnly(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	fx.tts.Err = fmt.Errorf("synthesis quota exceeded")
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")

	if n := fx.rec.countType(wire.TypeAgentText); n != 1 {
		t.Fatalf("agent.text sent %d times, want 1", n)
	}
	if n := fx.rec.countType(wire.TypeError); n != 1 {
		t.Fatalf("error frame sent %d times, want 1", n)
	}
	if n := fx.rec.countType(wire.TypeAgentAudioStart); n != 0 {
		t.Fatal("audio started despite TTS failure")
	}
}

func TestWhitespaceReplyBecomesEllipsis(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	fx.llm.Replies = []string{"   "}
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")

	idx := fx.rec.firstIndex(wire.TypeAgentText)
	if idx < 0 {
		t.Fatal("no agent.text")
	}
	if text := fx.rec.snapshot()[idx].(wire.Text); text.Text != "..." {
		t.Errorf("reply = %q, want ...", text.Text)
	}
}

func TestSilenceTimerFlushesLateFinal(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleFrame(ctx, frame(t, `{"type":"user.audio.end"}`))

	// A final landing after the mic closed has no utterance end behind it;
	// only the fallback timer can flush it.
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "one last thing"})

	select {
	case ev := <-fx.sess.events:
		fx.sess.handle(ctx, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("silence timer never fired")
	}

	call, ok := fx.llm.LastCall()
	if !ok {
		t.Fatal("late final was never flushed to the LLM")
	}
	if got := call.Messages[len(call.Messages)-1].Content; got != "one last thing" {
		t.Errorf("flushed transcript = %q", got)
	}
}

func TestSilenceTimerInertWhileCapturing(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(c *Config) { c.SilenceTimeout = 10 * time.Millisecond })
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "still talking"})

	select {
	case ev := <-fx.sess.events:
		fx.sess.handle(ctx, ev)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("silence timer never fired")
	}

	if n := fx.llm.CallCount(); n != 0 {
		t.Fatalf("timer flushed %d turns while the mic was still open", n)
	}
}

func TestAudioChunkForwardedToSTT(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.startCall(t, ctx)
	pcm := make([]byte, 640)
	payload := base64.StdEncoding.EncodeToString(pcm)
	fx.sess.handleFrame(ctx, frame(t, `{"type":"user.audio.chunk","payload":"`+payload+`"}`))

	if n := fx.sttSess.SendAudioCallCount(); n != 1 {
		t.Fatalf("SendAudio called %d times, want 1", n)
	}
}

func TestSTTStreamDurationRecorded(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	fx := newFixture(t, func(c *Config) { c.Metrics = met })
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.sess.handleFrame(ctx, frame(t, `{"type":"user.audio.end"}`))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "pitchlab.stt.stream_duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("stream_duration data type = %T", m.Data)
			}
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
		}
	}
	if count != 1 {
		t.Fatalf("stream_duration count = %d, want 1 after closing the stream", count)
	}
}

func TestScenarioSelectionAndLocking(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.sess.handleFrame(ctx, frame(t, `{"type":"scenario.select","scenarioId":"enterprise_procurement_officer"}`))
	fx.startCall(t, ctx)

	// Selection after the first audio.start must not change the persona.
	fx.sess.handleFrame(ctx, frame(t, `{"type":"scenario.select","scenarioId":"angry_existing_customer"}`))
	fx.speak(t, ctx, "hello")

	call, ok := fx.llm.LastCall()
	if !ok {
		t.Fatal("LLM was never called")
	}
	prompt := call.Messages[0].Content
	if !strings.Contains(prompt, "procurement officer") {
		t.Errorf("prompt does not carry the selected scenario: %q", prompt)
	}
	if strings.Contains(prompt, "outage") {
		t.Error("scenario changed after lock")
	}
}

func TestDifficultyFromHistory(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	fx.store.History = []types.FeedbackScores{
		{Overall: 9, ObjectionHandling: 9, CommunicationClarity: 9, Confidence: 9},
		{Overall: 8.5, ObjectionHandling: 8, CommunicationClarity: 9, Confidence: 8},
		{Overall: 9.5, ObjectionHandling: 9, CommunicationClarity: 10, Confidence: 9},
	}
	ctx := context.Background()

	fx.sess.handleFrame(ctx, frame(t, `{"type":"auth","token":"trainee-9.sig"}`))
	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")

	idx := fx.rec.firstIndex(wire.TypeDifficultyAssigned)
	if idx < 0 {
		t.Fatal("difficulty.assigned never sent")
	}
	assigned := fx.rec.snapshot()[idx].(wire.DifficultyAssigned)
	if assigned.Level != string(types.DifficultyAdvanced) {
		t.Errorf("level = %q, want Advanced", assigned.Level)
	}
	if !assigned.AutoEnabled {
		t.Error("autoEnabled = false")
	}

	call, _ := fx.llm.LastCall()
	if !strings.Contains(call.Messages[0].Content, "DIFFICULTY") {
		t.Error("system prompt missing the difficulty modifier")
	}
}

func TestDifficultyModeDisabled(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.sess.handleFrame(ctx, frame(t, `{"type":"difficulty.mode","enabled":false}`))

	idx := fx.rec.firstIndex(wire.TypeDifficultyAssigned)
	if idx < 0 {
		t.Fatal("difficulty.mode did not echo difficulty.assigned")
	}
	assigned := fx.rec.snapshot()[idx].(wire.DifficultyAssigned)
	if assigned.Level != string(types.DifficultyIntermediate) || assigned.AutoEnabled {
		t.Errorf("assigned = %+v, want Intermediate with auto off", assigned)
	}

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")
	call, _ := fx.llm.LastCall()
	if strings.Contains(call.Messages[0].Content, "DIFFICULTY") {
		t.Error("modifier applied although auto mode is off")
	}
}

func TestCoachHintOncePerTurn(t *testing.T) {
	t.Parallel()

	coachLLM := &llmmock.Provider{Replies: []string{"Ask about their timeline."}}
	fx := newFixture(t, func(c *Config) {
		c.Coach = coach.New(coachLLM)
		c.CoachCooldown = time.Millisecond
	})
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello there")

	// The second trainee utterance has dialogue behind it, so a hint fires.
	time.Sleep(5 * time.Millisecond)
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "what do you think"})

	idx := fx.rec.firstIndex(wire.TypeCoachHint)
	if idx < 0 {
		t.Fatal("coach.hint never sent")
	}
	if hint := fx.rec.snapshot()[idx].(wire.Text); hint.Text != "Ask about their timeline." {
		t.Errorf("hint = %q", hint.Text)
	}

	// Another final in the same turn must not produce a second hint.
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "seriously"})
	if n := fx.rec.countType(wire.TypeCoachHint); n != 1 {
		t.Fatalf("coach.hint sent %d times in one turn", n)
	}
}

func TestCoachFailureIsSilent(t *testing.T) {
	t.Parallel()

	coachLLM := &llmmock.Provider{Err: fmt.Errorf("rate limited")}
	fx := newFixture(t, func(c *Config) {
		c.Coach = coach.New(coachLLM)
		c.CoachCooldown = time.Millisecond
	})
	ctx := context.Background()

	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello there")
	fx.sess.handleSTT(ctx, stt.Event{Kind: stt.EventFinal, Text: "what do you think"})

	if n := fx.rec.countType(wire.TypeCoachHint); n != 0 {
		t.Fatalf("coach.hint sent %d times despite failure", n)
	}
	if n := fx.rec.countType(wire.TypeError); n != 0 {
		t.Fatal("coach failure surfaced to the client")
	}
}

func TestCallResetStartsFresh(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.sess.handleFrame(ctx, frame(t, `{"type":"scenario.select","scenarioId":"angry_existing_customer"}`))
	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hello")
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.end"}`))

	oldID := fx.sess.ID()
	fx.sess.handleFrame(ctx, frame(t, `{"type":"call.reset"}`))
	if fx.sess.ID() == oldID {
		t.Error("reset kept the old session id")
	}

	// A fresh call starts from a clean conversation on the default scenario.
	fx.startCall(t, ctx)
	fx.speak(t, ctx, "hi again")

	call, ok := fx.llm.LastCall()
	if !ok {
		t.Fatal("LLM not called after reset")
	}
	if len(call.Messages) != 2 {
		t.Fatalf("conversation carried %d messages across reset", len(call.Messages))
	}
	if !strings.Contains(call.Messages[0].Content, "small business") {
		t.Errorf("reset did not restore the default scenario: %q", call.Messages[0].Content)
	}
	if n := fx.rec.countType(wire.TypeAgentText); n != 2 {
		t.Fatalf("agent.text count = %d, want one per call", n)
	}
}

func TestPendingTranscriptCoalesces(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(c *Config) {
		c.TTSFrameDelay = 15 * time.Millisecond
	})
	fx.tts.PCM = make([]byte, 6*DefaultFrameSize)
	fx.llm.Replies = []string{"First reply.", "Second reply."}
	ctx := context.Background()

	fx.startCall(t, ctx)

	// While the first reply is streaming, two more finals arrive with an
	// utterance end; they must coalesce into exactly one follow-up turn.
	go func() {
		if fx.rec.awaitType(wire.TypeAgentAudioChunk) {
			fx.sttSess.Emit(stt.Event{Kind: stt.EventFinal, Text: "also"})
			fx.sttSess.Emit(stt.Event{Kind: stt.EventFinal, Text: "one more thing"})
			fx.sttSess.Emit(stt.Event{Kind: stt.EventUtteranceEnd})
		}
	}()

	fx.speak(t, ctx, "hello")

	waitFor(t, "second turn", func() bool { return fx.llm.CallCount() == 2 })
	call, _ := fx.llm.LastCall()
	if got := call.Messages[len(call.Messages)-1].Content; got != "also one more thing" {
		t.Errorf("coalesced transcript = %q", got)
	}
	if n := fx.rec.countType(wire.TypeAgentAudioEnd); n != 2 {
		t.Errorf("audio.end count = %d, want one per uninterrupted reply", n)
	}
}
