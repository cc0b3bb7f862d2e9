// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider renders one complete reply into one complete PCM16 buffer.
// The gateway deliberately does not stream from the provider: the buffer is
// chunked into client-sized frames by the session's streamer, which is where
// barge-in cancellation lives. Keeping the provider synchronous keeps the
// cancellation story in exactly one place.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into raw PCM16 little-endian mono audio at
	// 16 kHz and returns the full buffer. Returns an error if the provider
	// rejects the request or the context expires first.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
