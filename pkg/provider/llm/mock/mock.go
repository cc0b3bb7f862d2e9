// Package mock provides a test double for the llm package interface.
//
// Replies are scripted: each Generate call consumes the next entry of
// Replies, repeating the last entry when the script runs out. Set Err to make
// every call fail.
package mock

import (
	"context"
	"sync"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// GenerateCall records a single invocation of Provider.Generate.
type GenerateCall struct {
	// Messages is a copy of the dialogue passed to Generate.
	Messages []types.Message
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Replies is the scripted sequence of replies. When exhausted, the last
	// entry repeats. An empty script yields "".
	Replies []string

	// Err, if non-nil, is returned by every Generate call.
	Err error

	// Delay, if non-zero, makes Generate block until the delay elapses or ctx
	// is cancelled, whichever comes first. Used to simulate slow backends.
	Delay func(ctx context.Context) error

	// GenerateCalls records every call in order.
	GenerateCalls []GenerateCall

	next int
}

// Generate records the call and returns the next scripted reply.
func (p *Provider) Generate(ctx context.Context, messages []types.Message) (string, error) {
	p.mu.Lock()
	cp := make([]types.Message, len(messages))
	copy(cp, messages)
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Messages: cp})

	var reply string
	if len(p.Replies) > 0 {
		idx := p.next
		if idx >= len(p.Replies) {
			idx = len(p.Replies) - 1
		}
		reply = p.Replies[idx]
		p.next++
	}
	err := p.Err
	delay := p.Delay
	p.mu.Unlock()

	if delay != nil {
		if derr := delay(ctx); derr != nil {
			return "", derr
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// CallCount returns the number of Generate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.GenerateCalls)
}

// LastCall returns a copy of the most recent call, or false if none was made.
func (p *Provider) LastCall() (GenerateCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.GenerateCalls) == 0 {
		return GenerateCall{}, false
	}
	return p.GenerateCalls[len(p.GenerateCalls)-1], true
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
