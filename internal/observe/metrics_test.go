// SPDX-License-Identifier: MIT
package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has data %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCountersRecord(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	src := Source("microphone")

	m.ChunksProcessed.Add(ctx, 3, src)
	m.ChunksSkipped.Add(ctx, 2, src)
	m.StreamRestarts.Add(ctx, 1, src)
	m.OpenFailures.Add(ctx, 1, src)
	m.SourceSwitches.Add(ctx, 1, Source("loopback"))
	m.FramesRendered.Add(ctx, 5)
	m.RecordSnapshot(ctx, "waveform", "left")
	m.RecordSnapshot(ctx, "spectrum", "center")
	m.RecordPublish(ctx, "websocket")

	rm := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"audiovis.capture.chunks_processed", 3},
		{"audiovis.capture.chunks_skipped", 2},
		{"audiovis.capture.stream_restarts", 1},
		{"audiovis.capture.open_failures", 1},
		{"audiovis.engine.source_switches", 1},
		{"audiovis.engine.snapshot_computations", 2},
		{"audiovis.driver.frames", 5},
		{"audiovis.transport.frames_published", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sumOf(t, rm, tt.name); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
