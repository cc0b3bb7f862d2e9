// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and emits
// an ordered stream of Event values — low-latency partials, authoritative
// finals, and the provider's end-of-utterance marker.
//
// Implementations must be safe for concurrent use. One session is opened per
// trainee speaking turn; multiple sessions may be open across the process.
package stt

import (
	"context"
)

// EventKind discriminates the events surfaced by a streaming session.
type EventKind int

const (
	// EventPartial is a non-empty interim transcript. Suitable for live UI
	// display, never for the conversation log.
	EventPartial EventKind = iota

	// EventFinal is a committed transcript fragment. Finals are aggregated
	// into a full utterance by the caller.
	EventFinal

	// EventUtteranceEnd signals that the provider considers the current
	// utterance complete. It carries no text.
	EventUtteranceEnd
)

// Event is a single recognition event emitted by a session. Events are
// delivered in the order the provider produced them.
type Event struct {
	Kind EventKind

	// Text is set for EventPartial and EventFinal.
	Text string

	// Confidence is the mean word-level confidence of a final, in [0, 1].
	// Zero when the provider supplied no word confidences.
	Confidence float64
}

// StreamConfig describes the audio format for a new STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Pitchlab captures at 16000.
	SampleRate int

	// Channels is the number of audio channels; 1 for browser microphone input.
	Channels int
}

// SessionHandle is an open streaming transcription session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so leaks goroutines and the provider connection. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM16 bytes for transcription.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Events returns the ordered event stream. The channel is closed when the
	// session ends, either by Close or by the provider hanging up.
	Events() <-chan Event

	// Close flushes pending audio and tears the session down. Safe to call
	// more than once; subsequent calls return nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new streaming session. The returned handle accepts
	// audio immediately. Returns an error if the provider connection cannot be
	// established (bad credentials, network failure, ctx already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
