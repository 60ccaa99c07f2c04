package ffmpeg

import (
	"bytes"
	"io"
	"log/slog"
)

const (
	readChunkSize = 4096
	maxFrameSize  = 10 * 1024 * 1024
)

// JPEG markers
var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// Scanner splits an MJPEG byte stream into individual JPEG images.
type Scanner struct {
	r     io.Reader
	chunk []byte
	buf   []byte
	err   error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r, chunk: make([]byte, readChunkSize)}
}

// Next returns the next complete JPEG image. Bytes outside SOI..EOI are
// discarded. The returned slice is owned by the caller.
func (s *Scanner) Next() ([]byte, error) {
	for {
		if frame := s.extract(); frame != nil {
			return frame, nil
		}
		if s.err != nil {
			return nil, s.err
		}

		// Safety: prevent buffer from growing indefinitely if no EOI found
		if len(s.buf) > maxFrameSize {
			slog.Warn("Frame buffer overflow, resetting", "bytes", len(s.buf))
			s.buf = s.buf[:0]
		}

		n, err := s.r.Read(s.chunk)
		s.buf = append(s.buf, s.chunk[:n]...)
		s.err = err
	}
}

func (s *Scanner) extract() []byte {
	start := bytes.Index(s.buf, soi)
	if start == -1 {
		// Keep a trailing 0xFF, it may be the first half of the next SOI.
		if n := len(s.buf); n > 0 && s.buf[n-1] == 0xFF {
			s.buf = append(s.buf[:0], 0xFF)
		} else {
			s.buf = s.buf[:0]
		}
		return nil
	}

	end := bytes.Index(s.buf[start+len(soi):], eoi)
	if end == -1 {
		if start > 0 {
			s.buf = append(s.buf[:0], s.buf[start:]...)
		}
		return nil
	}
	end += start + len(soi) + len(eoi)

	frame := make([]byte, end-start)
	copy(frame, s.buf[start:end])
	s.buf = append(s.buf[:0], s.buf[end:]...)
	return frame
}
