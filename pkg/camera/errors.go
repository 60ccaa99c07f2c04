package camera

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceOpen   = errors.New("failed to open device")
	ErrDeviceQuery  = errors.New("failed to query device")
	ErrDeviceRead   = errors.New("failed to read frame")
	ErrLowFrameRate = errors.New("device frame rate too low")
	ErrResize       = errors.New("failed to resize frame")
	ErrPublish      = errors.New("failed to publish frame")
	ErrFilesystem   = errors.New("filesystem error")

	// ErrTerminal marks a session that used up its retries.
	ErrTerminal = errors.New("camera failed permanently")

	ErrRunning    = errors.New("camera is already running")
	ErrNotErrored = errors.New("camera is not in a failed state")
)

// AttemptError is the failure of one capture attempt.
type AttemptError struct {
	Device  int
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("camera %d attempt %d: %v", e.Device, e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}
