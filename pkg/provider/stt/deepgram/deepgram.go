// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultSampleRate = 16000

	// utteranceEndMs is how long Deepgram waits after the last word before
	// emitting an UtteranceEnd event. Tuned for conversational pauses.
	utteranceEndMs = "1500"

	// endpointingMs is Deepgram's silence threshold for finalising a result.
	endpointingMs = "500"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the streaming endpoint URL. Used by tests to point
// the provider at a local WebSocket server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:   conn,
		events: make(chan stt.Event, 64),
		audio:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
// The parameter set is part of the gateway's observable behaviour: interim
// results drive the live caption, filler words are kept for the hesitation
// metrics, and UtteranceEnd drives turn segmentation.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	channels := cfg.Channels
	if channels == 0 {
		channels = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("filler_words", "true")
	q.Set("utterance_end_ms", utteranceEndMs)
	q.Set("endpointing", endpointingMs)

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure of Deepgram's Results and
// UtteranceEnd messages. Unknown message types decode without error and are
// skipped by the caller.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string         `json:"transcript"`
			Confidence float64        `json:"confidence"`
			Words      []deepgramWord `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// deepgramWord is one word-level detail entry in a Results alternative.
type deepgramWord struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn   *websocket.Conn
	events chan stt.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Events returns the ordered recognition event stream.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close terminates the session cleanly. Deepgram flushes buffered audio on
// receipt of the CloseStream control message before hanging up.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain queued audio before exiting so trailing speech is not lost.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches events in
// provider order. Malformed messages are skipped.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}

		ev, ok := parseResponse(msg)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// parseResponse parses a raw Deepgram WebSocket message into an stt.Event.
// Returns (zero, false) for messages that carry no event: unknown types,
// malformed JSON, or Results with an empty interim transcript.
func parseResponse(data []byte) (stt.Event, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Event{}, false
	}

	switch resp.Type {
	case "UtteranceEnd":
		return stt.Event{Kind: stt.EventUtteranceEnd}, true

	case "Results":
		if len(resp.Channel.Alternatives) == 0 {
			return stt.Event{}, false
		}
		alt := resp.Channel.Alternatives[0]

		if resp.IsFinal {
			return stt.Event{
				Kind:       stt.EventFinal,
				Text:       alt.Transcript,
				Confidence: meanWordConfidence(alt.Words, alt.Confidence),
			}, true
		}
		if alt.Transcript == "" {
			return stt.Event{}, false
		}
		return stt.Event{Kind: stt.EventPartial, Text: alt.Transcript}, true

	default:
		return stt.Event{}, false
	}
}

// meanWordConfidence averages word-level confidences, falling back to the
// alternative-level confidence when no word detail is present.
func meanWordConfidence(words []deepgramWord, fallback float64) float64 {
	if len(words) == 0 {
		return fallback
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}
