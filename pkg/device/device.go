// Package device defines the capture-device contract used by the camera
// pipeline. Backends live in sub-packages: opencv (gocv VideoCapture) and
// ffmpeg (MJPEG over a pipe).
package device

import "image"

// Device is an opened capture handle. Read blocks until a frame is available
// or the device fails.
type Device interface {
	Read() (image.Image, error)
	// FPS is the frame rate reported by the device.
	FPS() (float64, error)
	// Size is the native frame width and height.
	Size() (width, height int, err error)
	Close() error
}

// Opener opens a device by its integer index.
type Opener interface {
	Open(index int) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(index int) (Device, error)

func (f OpenerFunc) Open(index int) (Device, error) {
	return f(index)
}
