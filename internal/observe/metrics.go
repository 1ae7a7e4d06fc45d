// Package observe provides application-wide observability primitives for
// Orbit: OpenTelemetry metrics and the provider setup that exposes them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Orbit metrics.
const meterName = "github.com/eburon-ai/orbit"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ConnectDuration tracks how long the live session handshake takes.
	ConnectDuration metric.Float64Histogram

	// FramesCaptured counts microphone frames read from the capture stream,
	// including muted ones.
	FramesCaptured metric.Int64Counter

	// ChunksSent counts encoded audio chunks transmitted to the live service.
	ChunksSent metric.Int64Counter

	// ChunksScheduled counts synthesized audio chunks handed to the playback
	// scheduler.
	ChunksScheduled metric.Int64Counter

	// Interruptions counts barge-in events that flushed scheduled playback.
	Interruptions metric.Int64Counter

	// EntriesPersisted counts transcript entries successfully written to the
	// store.
	EntriesPersisted metric.Int64Counter

	// EntriesDropped counts transcript entries discarded by the sink. Use
	// with attribute.String("reason", ...).
	EntriesDropped metric.Int64Counter

	// SessionErrors counts errors reported by the live service.
	SessionErrors metric.Int64Counter

	// ActiveSessions tracks the number of open live sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// connectBuckets defines histogram bucket boundaries (in seconds) sized for
// WebSocket handshakes.
var connectBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("orbit.live.connect.duration",
		metric.WithDescription("Latency of the live session handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(connectBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesCaptured, err = m.Int64Counter("orbit.audio.frames_captured",
		metric.WithDescription("Total microphone frames read from the capture stream."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("orbit.live.chunks_sent",
		metric.WithDescription("Total encoded audio chunks sent to the live service."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("orbit.playback.chunks_scheduled",
		metric.WithDescription("Total synthesized audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("orbit.playback.interruptions",
		metric.WithDescription("Total barge-in events that flushed scheduled playback."),
	); err != nil {
		return nil, err
	}
	if met.EntriesPersisted, err = m.Int64Counter("orbit.sink.entries_persisted",
		metric.WithDescription("Total transcript entries written to the store."),
	); err != nil {
		return nil, err
	}
	if met.EntriesDropped, err = m.Int64Counter("orbit.sink.entries_dropped",
		metric.WithDescription("Total transcript entries discarded by the sink, by reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("orbit.live.session_errors",
		metric.WithDescription("Total errors reported by the live service."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("orbit.live.active_sessions",
		metric.WithDescription("Number of open live sessions."),
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

// RecordConnect records one live session handshake duration.
func (m *Metrics) RecordConnect(ctx context.Context, d time.Duration) {
	m.ConnectDuration.Record(ctx, d.Seconds())
}

// RecordEntryDropped records one discarded transcript entry with its reason.
func (m *Metrics) RecordEntryDropped(ctx context.Context, reason string) {
	m.EntriesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
