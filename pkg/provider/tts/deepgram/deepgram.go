// Package deepgram provides a Deepgram Aura-backed TTS provider using the
// Deepgram speak REST API. It implements the tts.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const (
	speakEndpoint     = "https://api.deepgram.com/v1/speak"
	defaultVoice      = "aura-asteria-en"
	defaultSampleRate = 16000

	// maxErrorBody bounds how much of an error response is read for logging.
	maxErrorBody = 2048
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithVoice sets the Aura voice model (e.g., "aura-asteria-en", "aura-orion-en").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithEndpoint overrides the speak endpoint URL. Used by tests to point the
// provider at a local HTTP server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the Deepgram Aura speak API.
type Provider struct {
	apiKey     string
	voice      string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		voice:      defaultVoice,
		endpoint:   speakEndpoint,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// speakRequest is the JSON body of a speak API call.
type speakRequest struct {
	Text string `json:"text"`
}

// Synthesize implements tts.Provider. The response body is the raw PCM16
// buffer; no container is requested so no parsing is needed.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("deepgram: text must not be empty")
	}

	body, err := json.Marshal(speakRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("deepgram: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: speak request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("deepgram: speak returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read audio: %w", err)
	}
	return pcm, nil
}

// buildURL constructs the speak endpoint URL with the fixed output format:
// linear16 PCM, 16 kHz, no container.
func (p *Provider) buildURL() string {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return p.endpoint
	}
	q := u.Query()
	q.Set("model", p.voice)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(defaultSampleRate))
	q.Set("container", "none")
	u.RawQuery = q.Encode()
	return u.String()
}
