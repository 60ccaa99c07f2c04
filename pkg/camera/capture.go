package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/wachiwi/camwatch/pkg/frame"
	"github.com/wachiwi/camwatch/pkg/recording"
	"github.com/wachiwi/camwatch/pkg/workqueue"
)

// RingLength is the number of frames in one ring cycle at fps.
func RingLength(fps float64, ring time.Duration) int {
	return max(1, int(math.Round(fps*ring.Seconds())))
}

// ClipFrames is the number of frames in one chunk. It is always a multiple
// of ringLen so every chunk is made of whole ring cycles. This intentionally
// differs from round(fps * clip) for fractional frame rates: at 29.97 fps a
// 2s ring holds 60 frames and a 4 minute clip 7200, not 7193.
func ClipFrames(ringLen int, ring, clip time.Duration) int {
	cycles := max(1, int(math.Round(clip.Seconds()/ring.Seconds())))
	return ringLen * cycles
}

// capture is a single attempt: it owns the device until a read, resize or
// filesystem step fails or ctx is done.
func (s *Session) capture(ctx context.Context) (err error) {
	log := slog.With("camera", s.Index)

	dev, err := s.opts.Opener.Open(s.Index)
	if err != nil {
		return fmt.Errorf("%w %d: %w", ErrDeviceOpen, s.Index, err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			log.Warn("Failed to close device", "error", cerr)
		}
	}()

	fps, err := dev.FPS()
	if err != nil {
		return fmt.Errorf("%w: fps: %w", ErrDeviceQuery, err)
	}
	if fps < MinFPS {
		return fmt.Errorf("%w: %.2f fps", ErrLowFrameRate, fps)
	}
	nativeW, nativeH, err := dev.Size()
	if err != nil {
		return fmt.Errorf("%w: size: %w", ErrDeviceQuery, err)
	}
	width, height, err := frame.OutputSize(nativeW, nativeH, s.MaxWidth)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResize, err)
	}

	ringLen := RingLength(fps, s.opts.RingDuration)
	clipFrames := ClipFrames(ringLen, s.opts.RingDuration, s.opts.ClipDuration)
	ring, err := frame.NewRing(ringLen, width, height)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResize, err)
	}
	resizer := frame.Resizer{Width: width, Height: height}

	log.Info("Camera opened",
		"fps", fps,
		"native_width", nativeW, "native_height", nativeH,
		"width", width, "height", height,
		"ring", ringLen, "clip", clipFrames,
		"recording", s.Recording)

	var chunk *recording.Chunk
	frameRate := max(1, int(math.Round(fps)))
	if s.Recording {
		if chunk, err = s.newChunk(frameRate); err != nil {
			return err
		}
	}

	idx := 0
	defer func() {
		if chunk == nil {
			return
		}
		// Frames captured since the last full cycle go out as a short batch.
		if n := idx % ringLen; n > 0 {
			s.submitBatch(chunk, ring.Snapshot(n))
		}
		s.submitFinalize(chunk)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := dev.Read()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeviceRead, err)
		}

		slot := ring.At(idx)
		if err := resizer.Resize(slot, img); err != nil {
			return fmt.Errorf("%w: %w", ErrResize, err)
		}
		if _, err := s.Slot.Publish(slot); err != nil {
			return fmt.Errorf("%w: %w", ErrPublish, err)
		}
		s.opts.Metrics.FrameCaptured(ctx, s.Index)

		if chunk != nil && ring.CycleEnd(idx) {
			s.submitBatch(chunk, ring.Snapshot(ringLen))
		}

		idx++
		if idx == clipFrames {
			idx = 0
			if chunk != nil {
				old := chunk
				chunk = nil
				s.submitFinalize(old)
				if chunk, err = s.newChunk(frameRate); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Session) newChunk(frameRate int) (*recording.Chunk, error) {
	dir, err := recording.NewChunkDir(s.opts.RecordingsDir, s.Index, s.opts.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	chunk := recording.NewChunk(dir, frameRate, s.opts.Codec, s.opts.VideoExt)
	slog.Info("Started recording chunk", "camera", s.Index, "chunk", chunk.ID, "path", dir)
	return chunk, nil
}

// submitBatch queues frames for the chunk. When the save queue is full the
// capture loop waits for room rather than losing frames; only a closed queue
// drops the batch.
func (s *Session) submitBatch(chunk *recording.Chunk, frames []*image.RGBA) {
	save := func(ctx context.Context) error {
		defer chunk.Done()
		n, err := chunk.SaveBatch(frames)
		if err != nil {
			return fmt.Errorf("chunk %s: wrote %d of %d frames: %w", chunk.ID, n, len(frames), err)
		}
		s.opts.Metrics.BatchSaved(ctx, s.Index, n)
		return nil
	}

	chunk.Reserve()
	_, err := s.saves.Submit("save-batch", save)
	if errors.Is(err, workqueue.ErrQueueFull) {
		s.opts.Metrics.BatchStalled(context.Background(), s.Index)
		slog.Warn("Save queue full, waiting", "camera", s.Index, "chunk", chunk.ID, "frames", len(frames))
		_, err = s.saves.SubmitWait(context.Background(), "save-batch", save)
	}
	if err != nil {
		chunk.Done()
		s.opts.Metrics.BatchDropped(context.Background(), s.Index)
		slog.Warn("Dropped frame batch", "camera", s.Index, "chunk", chunk.ID, "frames", len(frames), "error", err)
	}
}

func (s *Session) submitFinalize(chunk *recording.Chunk) {
	_, err := s.finalizes.Submit("finalize", func(ctx context.Context) error {
		err := chunk.Finalize(ctx, s.opts.Encoder)
		s.opts.Metrics.ChunkFinalized(ctx, s.Index, err)
		return err
	})
	if err != nil {
		slog.Error("Could not queue chunk for encoding, raw frames kept", "camera", s.Index, "chunk", chunk.ID, "path", chunk.Dir(), "error", err)
	}
}
