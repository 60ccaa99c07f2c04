package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/wachiwi/camwatch"

// Recorder holds the counters reported by the capture and recording pipeline.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	framesCaptured  metric.Int64Counter
	batchesSaved    metric.Int64Counter
	batchesStalled  metric.Int64Counter
	batchesDropped  metric.Int64Counter
	framesWritten   metric.Int64Counter
	chunksFinalized metric.Int64Counter
	encodeFailures  metric.Int64Counter
	attemptsFailed  metric.Int64Counter
	filesReaped     metric.Int64Counter
}

// NewRecorder creates the instruments on the global meter provider.
func NewRecorder() (*Recorder, error) {
	return NewRecorderWithMeter(otel.Meter(meterName))
}

// NewRecorderWithMeter creates the instruments on the given meter.
func NewRecorderWithMeter(meter metric.Meter) (*Recorder, error) {
	var (
		r    Recorder
		err  error
		errs []error
	)

	counter := func(name, desc, unit string) metric.Int64Counter {
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			errs = append(errs, err)
		}
		return c
	}

	r.framesCaptured = counter("camwatch.frames.captured", "Frames read from capture devices", "{frames}")
	r.batchesSaved = counter("camwatch.batches.saved", "Ring buffer batches written to a chunk", "{batches}")
	r.batchesStalled = counter("camwatch.batches.stalled", "Ring buffer batches that waited for room in a full save queue", "{batches}")
	r.batchesDropped = counter("camwatch.batches.dropped", "Ring buffer batches dropped before reaching disk", "{batches}")
	r.framesWritten = counter("camwatch.frames.written", "Raw frame files written", "{frames}")
	r.chunksFinalized = counter("camwatch.chunks.finalized", "Recording chunks handed to the encoder", "{chunks}")
	r.encodeFailures = counter("camwatch.encode.failures", "Encoder invocations that failed", "{runs}")
	r.attemptsFailed = counter("camwatch.capture.attempts.failed", "Capture attempts that ended with an error", "{attempts}")
	r.filesReaped = counter("camwatch.reaper.files", "Recording files removed by the reaper", "{files}")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &r, nil
}

func camera(idx int) metric.AddOption {
	return metric.WithAttributes(attribute.Int("camera", idx))
}

func (r *Recorder) FrameCaptured(ctx context.Context, cam int) {
	if r == nil {
		return
	}
	r.framesCaptured.Add(ctx, 1, camera(cam))
}

func (r *Recorder) BatchSaved(ctx context.Context, cam, frames int) {
	if r == nil {
		return
	}
	r.batchesSaved.Add(ctx, 1, camera(cam))
	r.framesWritten.Add(ctx, int64(frames), camera(cam))
}

// BatchStalled counts a batch the capture loop had to wait on because the
// save queue was full.
func (r *Recorder) BatchStalled(ctx context.Context, cam int) {
	if r == nil {
		return
	}
	r.batchesStalled.Add(ctx, 1, camera(cam))
}

func (r *Recorder) BatchDropped(ctx context.Context, cam int) {
	if r == nil {
		return
	}
	r.batchesDropped.Add(ctx, 1, camera(cam))
}

func (r *Recorder) ChunkFinalized(ctx context.Context, cam int, err error) {
	if r == nil {
		return
	}
	r.chunksFinalized.Add(ctx, 1, camera(cam))
	if err != nil {
		r.encodeFailures.Add(ctx, 1, camera(cam))
	}
}

func (r *Recorder) AttemptFailed(ctx context.Context, cam int) {
	if r == nil {
		return
	}
	r.attemptsFailed.Add(ctx, 1, camera(cam))
}

func (r *Recorder) FilesReaped(ctx context.Context, n int) {
	if r == nil || n == 0 {
		return
	}
	r.filesReaped.Add(ctx, int64(n))
}
