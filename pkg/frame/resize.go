package frame

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// OutputSize returns the frame size after applying an optional maximum
// width (0 means none). The aspect ratio of the native size is kept.
func OutputSize(nativeWidth, nativeHeight, maxWidth int) (int, int, error) {
	if nativeWidth <= 0 || nativeHeight <= 0 {
		return 0, 0, fmt.Errorf("invalid native frame size %dx%d", nativeWidth, nativeHeight)
	}
	if maxWidth < 0 {
		return 0, 0, fmt.Errorf("invalid max width %d", maxWidth)
	}

	width := nativeWidth
	if maxWidth > 0 && maxWidth < nativeWidth {
		width = maxWidth
	}
	height := width * nativeHeight / nativeWidth
	if height == 0 {
		height = 1
	}
	return width, height, nil
}

// Resizer scales captured frames into ring slots with nearest-neighbour
// interpolation. It runs once per frame per camera, so speed wins over
// smoothing quality.
type Resizer struct {
	Width  int
	Height int
}

// Resize draws src scaled into dst, which must already be Width x Height.
func (r Resizer) Resize(dst *image.RGBA, src image.Image) error {
	if src == nil {
		return errors.New("resize: nil source frame")
	}
	if src.Bounds().Empty() {
		return errors.New("resize: empty source frame")
	}
	if dst.Rect.Dx() != r.Width || dst.Rect.Dy() != r.Height {
		return fmt.Errorf("resize: destination is %dx%d, want %dx%d", dst.Rect.Dx(), dst.Rect.Dy(), r.Width, r.Height)
	}

	sb := src.Bounds()
	if sb.Dx() == r.Width && sb.Dy() == r.Height {
		draw.Draw(dst, dst.Rect, src, sb.Min, draw.Src)
		return nil
	}
	draw.NearestNeighbor.Scale(dst, dst.Rect, src, sb, draw.Src, nil)
	return nil
}
