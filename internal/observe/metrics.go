// SPDX-License-Identifier: MIT

// Package observe holds the OpenTelemetry instruments recorded by the capture
// providers, the engine and the publishers. A Prometheus bridge is set up by
// InitProvider so the counters can be scraped from /metrics.
//
// Tests should use NewMetrics with their own MeterProvider; production code
// uses DefaultMetrics, which binds to the global provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every audiovis metric.
const meterName = "audiovis"

// Metrics holds all instruments. The OTel types synchronise internally, so a
// Metrics value is safe to share between capture goroutines.
type Metrics struct {
	// ChunksProcessed counts chunks written to ring buffers and analyzers.
	// Attribute: source.
	ChunksProcessed metric.Int64Counter

	// ChunksSkipped counts silent chunks polled but not processed.
	// Attribute: source.
	ChunksSkipped metric.Int64Counter

	// StreamRestarts counts capture streams reopened after a mid-run failure.
	// Attribute: source.
	StreamRestarts metric.Int64Counter

	// OpenFailures counts failed attempts to open a capture stream.
	// Attribute: source.
	OpenFailures metric.Int64Counter

	// SourceSwitches counts changes of the engine's current source.
	// Attribute: source (the new one).
	SourceSwitches metric.Int64Counter

	// SnapshotComputations counts memoized snapshot recomputations.
	// Attributes: kind (waveform|spectrum), channel.
	SnapshotComputations metric.Int64Counter

	// FramesRendered counts driver steps.
	FramesRendered metric.Int64Counter

	// FramesPublished counts frames handed to a transport.
	// Attribute: transport.
	FramesPublished metric.Int64Counter
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksProcessed, err = m.Int64Counter("audiovis.capture.chunks_processed",
		metric.WithDescription("Captured chunks written to ring buffers and analyzers."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSkipped, err = m.Int64Counter("audiovis.capture.chunks_skipped",
		metric.WithDescription("Silent chunks polled but not processed."),
	); err != nil {
		return nil, err
	}
	if met.StreamRestarts, err = m.Int64Counter("audiovis.capture.stream_restarts",
		metric.WithDescription("Capture streams reopened after failing mid-run."),
	); err != nil {
		return nil, err
	}
	if met.OpenFailures, err = m.Int64Counter("audiovis.capture.open_failures",
		metric.WithDescription("Failed attempts to open a capture stream."),
	); err != nil {
		return nil, err
	}
	if met.SourceSwitches, err = m.Int64Counter("audiovis.engine.source_switches",
		metric.WithDescription("Changes of the engine's current source."),
	); err != nil {
		return nil, err
	}
	if met.SnapshotComputations, err = m.Int64Counter("audiovis.engine.snapshot_computations",
		metric.WithDescription("Per-frame snapshot recomputations by kind and channel."),
	); err != nil {
		return nil, err
	}
	if met.FramesRendered, err = m.Int64Counter("audiovis.driver.frames",
		metric.WithDescription("Render frames stepped by the driver."),
	); err != nil {
		return nil, err
	}
	if met.FramesPublished, err = m.Int64Counter("audiovis.transport.frames_published",
		metric.WithDescription("Frames handed to a transport."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a Metrics bound to the global MeterProvider. Until
// InitProvider runs, the global provider is a no-op.
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

// Source returns a reusable measurement option tagging a source. Callers on
// hot paths build it once and keep it.
func Source(kind string) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(attribute.String("source", kind)))
}

// RecordSnapshot counts one snapshot recomputation.
func (m *Metrics) RecordSnapshot(ctx context.Context, kind, channel string) {
	m.SnapshotComputations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("channel", channel),
		),
	)
}

// RecordPublish counts one frame handed to a transport.
func (m *Metrics) RecordPublish(ctx context.Context, transport string) {
	m.FramesPublished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}
