package frame

import (
	"fmt"
	"image"
)

// Ring is a fixed-length circular frame store. Slot i%Len() holds the
// newest frame with global index i. Slots are allocated once and reused.
type Ring struct {
	slots []*image.RGBA
}

// NewRing allocates length slots of width x height pixels.
func NewRing(length, width, height int) (*Ring, error) {
	if length < 1 {
		return nil, fmt.Errorf("ring length must be at least 1, got %d", length)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid ring frame size %dx%d", width, height)
	}

	slots := make([]*image.RGBA, length)
	for i := range slots {
		slots[i] = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return &Ring{slots: slots}, nil
}

func (r *Ring) Len() int {
	return len(r.slots)
}

// At returns the storage slot for global frame index i.
func (r *Ring) At(i int) *image.RGBA {
	return r.slots[i%len(r.slots)]
}

// CycleEnd reports whether global index i fills the last slot of a cycle.
func (r *Ring) CycleEnd(i int) bool {
	return i%len(r.slots) == len(r.slots)-1
}

// Snapshot deep-copies the first n slots in slot order. Because cycles
// always start at slot 0 this is also capture order.
func (r *Ring) Snapshot(n int) []*image.RGBA {
	if n > len(r.slots) {
		n = len(r.slots)
	}
	frames := make([]*image.RGBA, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, Clone(r.slots[i]))
	}
	return frames
}
