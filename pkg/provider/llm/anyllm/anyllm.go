// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. It is selected when LLM_PROVIDER names anything other than the
// default OpenAI backend.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// defaultTemperature mirrors the openai provider's sampling default.
const defaultTemperature = 0.7

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend     anyllmlib.Provider
	model       string
	temperature float64
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the specific model to use
// (e.g., "gpt-4o-mini", "claude-3-5-sonnet-latest"). opts are any-llm-go
// configuration options (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL, ...).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model, temperature: defaultTemperature}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", providerName)
	}
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, messages []types.Message) (string, error) {
	converted := make([]anyllmlib.Message, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	t := p.temperature
	resp, err := p.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    converted,
		Temperature: &t,
	})
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: %w", llm.ErrEmptyCompletion)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if content == "" {
		return "", fmt.Errorf("anyllm: %w", llm.ErrEmptyCompletion)
	}
	return content, nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
