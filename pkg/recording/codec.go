package recording

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"

	"golang.org/x/image/bmp"
)

// Codec serializes a single raw frame file.
type Codec interface {
	Ext() string
	Encode(w io.Writer, img image.Image) error
}

type BMPCodec struct{}

func (BMPCodec) Ext() string { return "bmp" }

func (BMPCodec) Encode(w io.Writer, img image.Image) error {
	return bmp.Encode(w, img)
}

type JPEGCodec struct {
	Quality int
}

func (JPEGCodec) Ext() string { return "jpg" }

func (c JPEGCodec) Encode(w io.Writer, img image.Image) error {
	q := c.Quality
	if q <= 0 {
		q = 90
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

// CodecFor returns the codec for a configured image extension.
func CodecFor(ext string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "bmp":
		return BMPCodec{}, nil
	case "jpg", "jpeg":
		return JPEGCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported image extension %q", ext)
	}
}
