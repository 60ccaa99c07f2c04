// Package ffmpeg captures frames by running ffmpeg against a local camera
// and parsing the MJPEG stream it writes to stdout.
package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/wachiwi/camwatch/pkg/device"
)

// Opener starts one ffmpeg process per opened device.
type Opener struct {
	Binary      string
	InputFormat string // v4l2, avfoundation, dshow
	FPS         float64
	Width       int
	Height      int
}

func (o Opener) Open(index int) (device.Device, error) {
	bin := o.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.Command(bin, o.Args(index)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", bin, err)
	}
	slog.Info("Started camera streaming process", "command", bin, "device", index, "width", o.Width, "height", o.Height, "fps", o.FPS)

	return &Stream{
		index:   index,
		fps:     o.FPS,
		cmd:     cmd,
		scanner: NewScanner(stdout),
		stderr:  stderr,
	}, nil
}

// Args builds the ffmpeg command line for the given device index.
func (o Opener) Args(index int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", o.InputFormat,
	}
	if o.FPS > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(o.FPS, 'f', -1, 64))
	}
	if o.Width > 0 && o.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", o.Width, o.Height))
	}
	return append(args,
		"-i", o.input(index),
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	)
}

func (o Opener) input(index int) string {
	switch o.InputFormat {
	case "avfoundation":
		return strconv.Itoa(index)
	case "dshow":
		return fmt.Sprintf("video=%d", index)
	default:
		return fmt.Sprintf("/dev/video%d", index)
	}
}

// Stream is a running ffmpeg capture process.
type Stream struct {
	mu      sync.Mutex
	index   int
	fps     float64
	cmd     *exec.Cmd
	scanner *Scanner
	stderr  *tailBuffer
	pending image.Image
	closed  bool
}

func (s *Stream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		img := s.pending
		s.pending = nil
		return img, nil
	}
	return s.next()
}

func (s *Stream) next() (image.Image, error) {
	if s.closed {
		return nil, errors.New("stream is closed")
	}
	data, err := s.scanner.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream of video device %d: %w (stderr: %s)", s.index, err, s.stderr.String())
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame of video device %d: %w", s.index, err)
	}
	return img, nil
}

func (s *Stream) FPS() (float64, error) {
	return s.fps, nil
}

// Size decodes the first frame to learn the real size; the frame is kept
// and returned by the next Read.
func (s *Stream) Size() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		img, err := s.next()
		if err != nil {
			return 0, 0, err
		}
		s.pending = img
	}
	b := s.pending.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	slog.Info("Camera streaming process exited", "device", s.index, "error", err)
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
