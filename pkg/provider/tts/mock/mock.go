// Package mock provides a test double for the tts package interface.
package mock

import (
	"context"
	"sync"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider. By default every call
// returns PCM; set PCMFor to vary output per input text.
type Provider struct {
	mu sync.Mutex

	// PCM is the buffer returned for any text not covered by PCMFor.
	PCM []byte

	// PCMFor maps exact input text to a specific buffer.
	PCMFor map[string][]byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeCalls records the text of every call in order.
	SynthesizeCalls []string
}

// Synthesize records the call and returns the scripted buffer.
func (p *Provider) Synthesize(_ context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if buf, ok := p.PCMFor[text]; ok {
		return buf, nil
	}
	return p.PCM, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
