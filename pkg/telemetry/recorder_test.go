package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorderCounts(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	rec, err := NewRecorderWithMeter(provider.Meter("test"))
	if err != nil {
		t.Fatalf("Failed to create recorder: %v", err)
	}

	ctx := context.Background()
	rec.FrameCaptured(ctx, 0)
	rec.FrameCaptured(ctx, 0)
	rec.BatchSaved(ctx, 0, 20)
	rec.BatchStalled(ctx, 0)
	rec.ChunkFinalized(ctx, 0, errors.New("exit status 1"))
	rec.FilesReaped(ctx, 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}

	want := map[string]int64{
		"camwatch.frames.captured":  2,
		"camwatch.batches.saved":    1,
		"camwatch.batches.stalled":  1,
		"camwatch.frames.written":   20,
		"camwatch.chunks.finalized": 1,
		"camwatch.encode.failures":  1,
		"camwatch.reaper.files":     3,
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				got[m.Name] += dp.Value
			}
		}
	}

	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s: expected %d, got %d", name, v, got[name])
		}
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	ctx := context.Background()

	// None of these may panic.
	rec.FrameCaptured(ctx, 1)
	rec.BatchSaved(ctx, 1, 10)
	rec.BatchStalled(ctx, 1)
	rec.BatchDropped(ctx, 1)
	rec.ChunkFinalized(ctx, 1, nil)
	rec.AttemptFailed(ctx, 1)
	rec.FilesReaped(ctx, 1)
}
