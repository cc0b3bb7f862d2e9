// Package wire defines the JSON frame protocol spoken over the client
// WebSocket. Every frame is a JSON object with a string "type"; binary audio
// travels base64-encoded inside string fields.
//
// Decoding is deliberately forgiving: a malformed or unknown frame yields an
// error for the caller to log, never a panic, and never a session failure.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/pitchlab-ai/pitchlab/pkg/audio"
)

// Client → server frame types.
const (
	TypeAuth           = "auth"
	TypeScenarioSelect = "scenario.select"
	TypeDifficultyMode = "difficulty.mode"
	TypeUserAudioStart = "user.audio.start"
	TypeUserAudioChunk = "user.audio.chunk"
	TypeUserAudioEnd   = "user.audio.end"
	TypeUserInterrupt  = "user.interrupt"
	TypeCallEnd        = "call.end"
	TypeCallReset      = "call.reset"
	TypePong           = "pong"
)

// Server → client frame types.
const (
	TypeAgentConnected     = "agent_connected"
	TypePing               = "ping"
	TypeDifficultyAssigned = "difficulty.assigned"
	TypeSTTPartial         = "stt.partial"
	TypeSTTFinal           = "stt.final"
	TypeAgentText          = "agent.text"
	TypeCoachHint          = "coach.hint"
	TypeAgentAudioStart    = "agent.audio.start"
	TypeAgentAudioChunk    = "agent.audio.chunk"
	TypeAgentAudioEnd      = "agent.audio.end"
	TypeAgentInterrupt     = "agent.interrupt"
	TypeCallFeedback       = "call.feedback"
	TypeError              = "error"
)

// AudioFormat is the only audio encoding spoken on the wire.
const AudioFormat = "pcm16"

// ClientMessage is the decoded form of any inbound frame. Fields beyond Type
// are populated only for the frame types that carry them.
type ClientMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	ScenarioID string `json:"scenarioId,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Payload    string `json:"payload,omitempty"`
	Timestamp  *int64 `json:"timestamp,omitempty"`
}

// DecodeClient parses and validates one inbound frame. The returned error is
// descriptive enough to log as-is; the frame should then be dropped.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("wire: malformed frame: %w", err)
	}

	switch msg.Type {
	case TypeAuth:
		if msg.Token == "" {
			return ClientMessage{}, fmt.Errorf("wire: %s frame missing token", msg.Type)
		}
	case TypeScenarioSelect:
		if msg.ScenarioID == "" {
			return ClientMessage{}, fmt.Errorf("wire: %s frame missing scenarioId", msg.Type)
		}
	case TypeDifficultyMode:
		if msg.Enabled == nil {
			return ClientMessage{}, fmt.Errorf("wire: %s frame missing enabled", msg.Type)
		}
	case TypeUserAudioStart:
		if msg.SampleRate <= 0 {
			return ClientMessage{}, fmt.Errorf("wire: %s frame missing sampleRate", msg.Type)
		}
	case TypeUserAudioChunk:
		if msg.Payload == "" {
			return ClientMessage{}, fmt.Errorf("wire: %s frame missing payload", msg.Type)
		}
	case TypeUserAudioEnd, TypeUserInterrupt, TypeCallEnd, TypeCallReset, TypePong:
		// No required fields.
	case "":
		return ClientMessage{}, fmt.Errorf("wire: frame missing type")
	default:
		return ClientMessage{}, fmt.Errorf("wire: unknown frame type %q", msg.Type)
	}
	return msg, nil
}

// AudioPayload decodes the base64 PCM16 payload of a user.audio.chunk frame.
// A payload whose decoded length is not sample-aligned is rejected.
func (m ClientMessage) AudioPayload() ([]byte, error) {
	pcm, err := audio.DecodePCM16(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("wire: audio payload: %w", err)
	}
	return pcm, nil
}

// ── server frames ───────────────────────────────────────────────────────────

// AgentConnected greets the client once the session is ready.
type AgentConnected struct {
	Type string `json:"type"`
}

func NewAgentConnected() AgentConnected {
	return AgentConnected{Type: TypeAgentConnected}
}

// Ping is the heartbeat probe; Timestamp is echoed back by the client's pong.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewPing(timestamp int64) Ping {
	return Ping{Type: TypePing, Timestamp: timestamp}
}

// DifficultyAssigned announces the level chosen for the upcoming call.
type DifficultyAssigned struct {
	Type        string             `json:"type"`
	Level       string             `json:"level"`
	Averages    map[string]float64 `json:"averages"`
	AutoEnabled bool               `json:"autoEnabled"`
}

func NewDifficultyAssigned(level string, averages map[string]float64, autoEnabled bool) DifficultyAssigned {
	return DifficultyAssigned{Type: TypeDifficultyAssigned, Level: level, Averages: averages, AutoEnabled: autoEnabled}
}

// Text carries every text-only frame: stt.partial, stt.final, agent.text,
// coach.hint and error (where Text is the message).
type Text struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewSTTPartial(text string) Text { return Text{Type: TypeSTTPartial, Text: text} }
func NewSTTFinal(text string) Text   { return Text{Type: TypeSTTFinal, Text: text} }
func NewAgentText(text string) Text  { return Text{Type: TypeAgentText, Text: text} }
func NewCoachHint(text string) Text  { return Text{Type: TypeCoachHint, Text: text} }
func NewError(message string) Text   { return Text{Type: TypeError, Message: message} }

// Signal carries the field-less frames: agent.audio.start, agent.audio.end
// and agent.interrupt.
type Signal struct {
	Type string `json:"type"`
}

func NewAgentAudioStart() Signal { return Signal{Type: TypeAgentAudioStart} }
func NewAgentAudioEnd() Signal   { return Signal{Type: TypeAgentAudioEnd} }
func NewAgentInterrupt() Signal  { return Signal{Type: TypeAgentInterrupt} }

// AgentAudioChunk is one TTS frame.
type AgentAudioChunk struct {
	Type       string `json:"type"`
	Payload    string `json:"payload"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
}

// NewAgentAudioChunk base64-encodes one PCM16 frame for the wire.
func NewAgentAudioChunk(pcm []byte, sampleRate int) AgentAudioChunk {
	return AgentAudioChunk{
		Type:       TypeAgentAudioChunk,
		Payload:    audio.EncodePCM16(pcm),
		Format:     AudioFormat,
		SampleRate: sampleRate,
	}
}

// CallFeedback is the end-of-call report. Payload is the rubric scored by the
// LLM (or the sentinel when scoring failed); the metrics structs serialise
// with their own JSON tags.
type CallFeedback struct {
	Type                string `json:"type"`
	Payload             any    `json:"payload"`
	ConversationMetrics any    `json:"conversationMetrics"`
	AudioMetrics        any    `json:"audioMetrics"`
	CallDurationMs      int64  `json:"callDurationMs"`
	TurnCount           int    `json:"turnCount"`
}

func NewCallFeedback(payload, conversationMetrics, audioMetrics any, callDurationMs int64, turnCount int) CallFeedback {
	return CallFeedback{
		Type:                TypeCallFeedback,
		Payload:             payload,
		ConversationMetrics: conversationMetrics,
		AudioMetrics:        audioMetrics,
		CallDurationMs:      callDurationMs,
		TurnCount:           turnCount,
	}
}

// Encode marshals any server frame for the wire.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode frame: %w", err)
	}
	return data, nil
}
