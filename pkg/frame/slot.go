// Package frame holds the in-memory frame structures shared between a
// camera's capture loop and its readers: the latest-frame slot, the ring
// buffer that batches frames for recording, and the resize step.
package frame

import (
	"errors"
	"image"
	"sync"
)

// ErrEmptyFrame is returned when a nil or zero-sized frame is published.
var ErrEmptyFrame = errors.New("frame is empty")

// Slot is the latest-frame cell of a camera. It has a single writer (the
// capture loop) and any number of readers.
type Slot struct {
	mu  sync.RWMutex
	seq uint64
	img *image.RGBA
}

// Publish copies src into the slot and bumps the sequence number.
// The slot keeps its own pixel buffer, so the caller may reuse src afterwards.
func (s *Slot) Publish(src *image.RGBA) (uint64, error) {
	if src == nil || src.Rect.Empty() {
		return 0, ErrEmptyFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.img == nil || s.img.Rect != src.Rect {
		s.img = image.NewRGBA(src.Rect)
	}
	copyPixels(s.img, src)
	s.seq++
	return s.seq, nil
}

// Seq returns the sequence number of the newest frame, 0 before the first one.
func (s *Slot) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Snapshot returns the sequence number and a private copy of the newest
// frame. The image is nil until the first Publish.
func (s *Slot) Snapshot() (uint64, *image.RGBA) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.img == nil {
		return s.seq, nil
	}
	return s.seq, Clone(s.img)
}

// SnapshotSince is Snapshot that skips the copy when the newest frame is
// still the one with sequence last. The image is nil in that case.
func (s *Slot) SnapshotSince(last uint64) (uint64, *image.RGBA) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.img == nil || s.seq == last {
		return s.seq, nil
	}
	return s.seq, Clone(s.img)
}

// Clone returns a deep copy of img.
func Clone(img *image.RGBA) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := image.NewRGBA(img.Rect)
	copyPixels(dst, img)
	return dst
}

func copyPixels(dst, src *image.RGBA) {
	if dst.Stride == src.Stride && len(dst.Pix) == len(src.Pix) {
		copy(dst.Pix, src.Pix)
		return
	}
	rowLen := src.Rect.Dx() * 4
	for y := 0; y < src.Rect.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowLen], src.Pix[y*src.Stride:y*src.Stride+rowLen])
	}
}
