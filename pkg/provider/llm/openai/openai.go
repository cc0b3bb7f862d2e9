// Package openai provides an LLM provider backed by the OpenAI chat
// completions API, or any OpenAI-compatible endpoint via WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// defaultTemperature matches the conversational register expected of the
// synthetic customer: varied but not erratic.
const defaultTemperature = 0.7

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client      oai.Client
	model       string
	temperature float64
}

// config holds optional configuration for the provider.
type config struct {
	baseURL        string
	providerHeader string
	temperature    float64
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point the
// provider at an OpenAI-compatible gateway.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithProviderHeader sets an X-LLM-Provider header on every request. Some
// OpenAI-compatible gateways use it to route to a downstream vendor; endpoints
// that do not understand it ignore it.
func WithProviderHeader(name string) Option {
	return func(c *config) {
		c.providerHeader = name
	}
}

// WithTemperature overrides the default sampling temperature of 0.7.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{temperature: defaultTemperature}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.providerHeader != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-LLM-Provider", cfg.providerHeader))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model, temperature: cfg.temperature}, nil
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, messages []types.Message) (string, error) {
	params, err := p.buildParams(messages)
	if err != nil {
		return "", fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("openai: chat completion: %w", errors.Join(ctxErr, err))
		}
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", llm.ErrEmptyCompletion)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai: %w", llm.ErrEmptyCompletion)
	}
	return content, nil
}

// buildParams converts the dialogue into OpenAI SDK params.
func (p *Provider) buildParams(messages []types.Message) (oai.ChatCompletionNewParams, error) {
	converted := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			converted = append(converted, oai.SystemMessage(m.Content))
		case "user":
			converted = append(converted, oai.UserMessage(m.Content))
		case "assistant":
			converted = append(converted, oai.AssistantMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("unknown message role %q", m.Role)
		}
	}

	return oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    converted,
		Temperature: param.NewOpt(p.temperature),
	}, nil
}
