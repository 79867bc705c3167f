package imaging

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
)

// fitWithin computes the dimensions of src scaled to fit inside a
// maxDim square, preserving aspect ratio. Images already inside the box
// keep their size; nothing is upscaled.
func fitWithin(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}

	if width >= height {
		h := height * maxDim / width
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}

	w := width * maxDim / height
	if w < 1 {
		w = 1
	}
	return w, maxDim
}

// resizeToFit scales src to fit inside a maxDim square with CatmullRom
// interpolation. Returns src unchanged when no scaling is needed.
func resizeToFit(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	dstW, dstH := fitWithin(bounds.Dx(), bounds.Dy(), maxDim)

	if dstW == bounds.Dx() && dstH == bounds.Dy() {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// encodeWebP encodes img as lossy WebP at the given quality.
func encodeWebP(img image.Image, quality float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
