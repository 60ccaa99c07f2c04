// Package recording writes captured frames to numbered image files and hands
// finished chunks to an external video encoder.
package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrWrite     = errors.New("failed to write frame")
	ErrEncode    = errors.New("failed to encode chunk")
	ErrFinalized = errors.New("chunk already finalized")
)

// Chunk is one recording unit: a directory of frames numbered from 0 that is
// later encoded into <dir>.<video ext> next to it.
type Chunk struct {
	ID uuid.UUID

	dir       string
	frameRate int
	codec     Codec
	videoExt  string

	mu        sync.Mutex
	frames    int
	finalized bool

	pending sync.WaitGroup
}

// NewChunk wraps an existing, empty directory.
func NewChunk(dir string, frameRate int, codec Codec, videoExt string) *Chunk {
	if frameRate < 1 {
		frameRate = 1
	}
	return &Chunk{
		ID:        uuid.New(),
		dir:       dir,
		frameRate: frameRate,
		codec:     codec,
		videoExt:  videoExt,
	}
}

func (c *Chunk) Dir() string { return c.dir }

// VideoPath is where Finalize writes the encoded video.
func (c *Chunk) VideoPath() string {
	return c.dir + "." + c.videoExt
}

// Frames returns the number of frames written so far.
func (c *Chunk) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Write stores one frame as the next numbered file.
func (c *Chunk) Write(img image.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(img)
}

// SaveBatch writes frames in order while holding the chunk lock for the
// whole batch, so batches never interleave. It stops at the first failure.
func (c *Chunk) SaveBatch(frames []*image.RGBA) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, img := range frames {
		if err := c.write(img); err != nil {
			return i, err
		}
	}
	return len(frames), nil
}

func (c *Chunk) write(img image.Image) error {
	if c.finalized {
		return ErrFinalized
	}

	path := filepath.Join(c.dir, strconv.Itoa(c.frames)+"."+c.codec.Ext())
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}

	w := bufio.NewWriter(f)
	err = c.codec.Encode(w, img)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}

	c.frames++
	return nil
}

// Reserve announces a batch that has been queued but not written yet.
// Finalize waits for every reservation to be released with Done.
func (c *Chunk) Reserve() { c.pending.Add(1) }

func (c *Chunk) Done() { c.pending.Done() }

// Finalize encodes the chunk and removes the raw frame directory. Once the
// encoder has run the directory is removed even if it failed. If the encoder
// could not be started at all the raw frames are kept for a later attempt.
func (c *Chunk) Finalize(ctx context.Context, enc Encoder) error {
	c.pending.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return ErrFinalized
	}
	c.finalized = true

	log := slog.With("chunk", c.ID, "path", c.dir, "frames", c.frames)

	if c.frames == 0 {
		log.Debug("Removing empty chunk")
		if err := os.RemoveAll(c.dir); err != nil {
			return fmt.Errorf("failed to remove chunk directory: %w", err)
		}
		return nil
	}

	out, encErr := enc.Encode(ctx, Job{
		Dir:       c.dir,
		ImageExt:  c.codec.Ext(),
		FrameRate: c.frameRate,
		Output:    c.VideoPath(),
	})
	if errors.Is(encErr, ErrEncoderUnavailable) {
		log.Error("Encoder unavailable, keeping raw frames", "error", encErr)
		return fmt.Errorf("%w: %w", ErrEncode, encErr)
	}
	if encErr != nil {
		log.Error("Encoder failed", "error", encErr, "output", string(out))
	} else {
		log.Info("Chunk encoded", "video", c.VideoPath(), "output", string(out))
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return errors.Join(wrapEncode(encErr), fmt.Errorf("failed to remove chunk directory: %w", err))
	}
	return wrapEncode(encErr)
}

func wrapEncode(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrEncode, err)
}
