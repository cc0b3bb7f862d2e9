// Package coach generates short in-call hints for the trainee. Hints are a
// best-effort side loop: a failed or slow hint call is dropped silently and
// never delays the customer's reply.
package coach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// Cooldown is the minimum gap between two hints in one call. At most one
// hint is generated per trainee turn regardless of cooldown.
const Cooldown = 15 * time.Second

// tailTurns is how much recent dialogue the hint prompt sees.
const tailTurns = 6

// maxHintRunes truncates runaway completions; a hint is one short sentence.
const maxHintRunes = 160

const hintInstruction = `You are a silent sales coach listening to a live training call. Based on the conversation so far, give the salesperson ONE short, specific, actionable tip for their next response. Maximum 15 words. Output only the tip itself, no preamble, no quotes.`

// Generator produces coaching hints via an LLM side-call.
type Generator struct {
	llm llm.Provider
}

// New creates a hint generator on top of the given LLM provider.
func New(p llm.Provider) *Generator {
	return &Generator{llm: p}
}

// Hint asks the LLM for one tip grounded in the tail of the conversation.
// The caller owns the cooldown and once-per-turn bookkeeping.
func (g *Generator) Hint(ctx context.Context, conversation []types.Message) (string, error) {
	messages := []types.Message{{Role: "system", Content: hintInstruction}}
	messages = append(messages, transcriptTail(conversation)...)

	reply, err := g.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("coach: generate hint: %w", err)
	}

	hint := strings.Trim(strings.TrimSpace(reply), `"`)
	if hint == "" {
		return "", fmt.Errorf("coach: empty hint")
	}
	if runes := []rune(hint); len(runes) > maxHintRunes {
		hint = string(runes[:maxHintRunes])
	}
	return hint, nil
}

// transcriptTail returns the last few user/assistant turns re-labelled for
// the coach prompt. The customer persona's system turn is deliberately not
// included; the coach must advise the trainee, not play the customer.
func transcriptTail(conversation []types.Message) []types.Message {
	var turns []types.Message
	for _, m := range conversation {
		switch m.Role {
		case "user":
			turns = append(turns, types.Message{Role: "user", Content: "Salesperson: " + m.Content})
		case "assistant":
			turns = append(turns, types.Message{Role: "user", Content: "Customer: " + m.Content})
		}
	}
	if len(turns) > tailTurns {
		turns = turns[len(turns)-tailTurns:]
	}
	return turns
}
