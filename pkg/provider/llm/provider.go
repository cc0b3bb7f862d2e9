// Package llm defines the Provider interface for Large Language Model
// backends.
//
// The gateway uses plain request/reply completions: the full conversation goes
// up, one assistant reply comes back. Token streaming is deliberately not part
// of the interface — the synthesised customer voice is only rendered from a
// complete reply, so streaming would buy nothing and complicate cancellation.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation and deadlines promptly.
package llm

import (
	"context"
	"errors"

	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// ErrEmptyCompletion is returned when the backend answered successfully but
// produced no usable text. Callers treat it like any other upstream failure.
var ErrEmptyCompletion = errors.New("llm: backend returned empty completion")

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Generate sends the ordered dialogue (including the system turn) to the
	// model and returns the assistant reply, trimmed of surrounding
	// whitespace. A reply that trims to the empty string is an error
	// (ErrEmptyCompletion).
	//
	// The caller bounds the request with a context deadline; implementations
	// must return ctx.Err()-wrapped errors on expiry.
	Generate(ctx context.Context, messages []types.Message) (string, error)
}
