// Package observe provides the gateway's observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge, and HTTP
// middleware that records request latency.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/pitchlab-ai/pitchlab"

// Metrics holds all OpenTelemetry metric instruments for the gateway.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// STTDuration tracks the lifetime of one STT stream, open to close.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks chat completion latency, including coach hints and
	// the end-of-call rubric. Attribute "purpose": turn | coach | feedback.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// CallDuration tracks the wall-clock length of completed calls.
	CallDuration metric.Float64Histogram

	// TurnsCompleted counts finished LLM turns. Attribute "status": ok | fallback.
	TurnsCompleted metric.Int64Counter

	// Interruptions counts barge-ins. Attribute "source": client | call_end.
	Interruptions metric.Int64Counter

	// ProviderErrors counts upstream failures. Attributes "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// FramesDropped counts malformed or unknown client frames.
	FramesDropped metric.Int64Counter

	// ActiveSessions tracks the number of live WebSocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callBuckets covers whole-call durations.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("pitchlab.stt.stream_duration",
		metric.WithDescription("Lifetime of one STT stream from open to close."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("pitchlab.llm.duration",
		metric.WithDescription("Chat completion latency by purpose."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("pitchlab.tts.duration",
		metric.WithDescription("Text-to-speech synthesis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("pitchlab.call.duration",
		metric.WithDescription("Wall-clock length of completed training calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}

	if met.TurnsCompleted, err = m.Int64Counter("pitchlab.turns.completed",
		metric.WithDescription("Finished LLM turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("pitchlab.interruptions",
		metric.WithDescription("Barge-ins by source."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("pitchlab.provider.errors",
		metric.WithDescription("Upstream provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("pitchlab.frames.dropped",
		metric.WithDescription("Malformed or unknown client frames dropped."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("pitchlab.active_sessions",
		metric.WithDescription("Number of live WebSocket sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchlab.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordLLM records one chat completion with its purpose and outcome.
func (m *Metrics) RecordLLM(ctx context.Context, purpose string, d time.Duration, err error) {
	m.LLMDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("purpose", purpose)),
	)
	if err != nil {
		m.RecordProviderError(ctx, "llm", purpose)
	}
}

// RecordProviderError records one upstream failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordInterruption records one barge-in.
func (m *Metrics) RecordInterruption(ctx context.Context, source string) {
	m.Interruptions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordTurn records one completed LLM turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.TurnsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
