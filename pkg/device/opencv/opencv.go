// Package opencv opens capture devices through gocv's VideoCapture.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/wachiwi/camwatch/pkg/device"
)

// Opener opens devices with gocv.OpenVideoCapture.
type Opener struct{}

func (Opener) Open(index int) (device.Device, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open video device %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video device %d did not open", index)
	}
	return &Capture{index: index, vc: vc, mat: gocv.NewMat()}, nil
}

// Capture wraps an opened VideoCapture. The Mat is reused across reads.
type Capture struct {
	mu    sync.Mutex
	index int
	vc    *gocv.VideoCapture
	mat   gocv.Mat
}

// Read grabs one frame and converts it to an image.Image.
func (c *Capture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil, errors.New("video device is closed")
	}
	if ok := c.vc.Read(&c.mat); !ok {
		return nil, fmt.Errorf("failed to read from video device %d", c.index)
	}
	if c.mat.Empty() {
		return nil, fmt.Errorf("empty frame from video device %d", c.index)
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame from video device %d: %w", c.index, err)
	}
	return img, nil
}

func (c *Capture) FPS() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return 0, errors.New("video device is closed")
	}
	return c.vc.Get(gocv.VideoCaptureFPS), nil
}

func (c *Capture) Size() (int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return 0, 0, errors.New("video device is closed")
	}
	width := int(math.Ceil(c.vc.Get(gocv.VideoCaptureFrameWidth)))
	height := int(math.Ceil(c.vc.Get(gocv.VideoCaptureFrameHeight)))
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("video device %d reported frame size %dx%d", c.index, width, height)
	}
	return width, height, nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	c.mat.Close()
	err := c.vc.Close()
	c.vc = nil
	return err
}
