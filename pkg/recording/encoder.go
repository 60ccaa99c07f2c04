package recording

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
)

// ErrEncoderUnavailable means the encoder could not be started at all, so no
// video was attempted and the raw frames are kept.
var ErrEncoderUnavailable = errors.New("encoder unavailable")

// Job describes one raw frame directory to be turned into a video.
type Job struct {
	Dir       string // raw frame directory
	ImageExt  string
	FrameRate int
	Output    string // video file path, next to Dir
}

// Encoder turns a numbered frame sequence into one video file. The returned
// output is the encoder's combined stdout and stderr.
type Encoder interface {
	Encode(ctx context.Context, job Job) (output []byte, err error)
}

// FFmpeg runs an external ffmpeg binary.
type FFmpeg struct {
	Binary      string
	Codec       string
	PixelFormat string
}

// Args returns the command line for job. Paths are relative to the parent of
// job.Dir, where the command runs.
func (f FFmpeg) Args(job Job) []string {
	codec := f.Codec
	if codec == "" {
		codec = "libx264"
	}
	pixFmt := f.PixelFormat
	if pixFmt == "" {
		pixFmt = "yuv420p"
	}
	return []string{
		"-hide_banner",
		"-framerate", strconv.Itoa(job.FrameRate),
		"-start_number", "0",
		"-i", filepath.Join(filepath.Base(job.Dir), "%d."+job.ImageExt),
		"-c:v", codec,
		"-pix_fmt", pixFmt,
		"-y",
		filepath.Base(job.Output),
	}
}

func (f FFmpeg) Encode(ctx context.Context, job Job) ([]byte, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, bin, f.Args(job)...)
	cmd.Dir = filepath.Dir(job.Dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w", bin, err)
	}
	return out, nil
}
