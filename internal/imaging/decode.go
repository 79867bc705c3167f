package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/jpegxl"
	xwebp "golang.org/x/image/webp"

	"github.com/vantavault/vanta/internal/models"
)

// Decode parses the uploaded bytes into a raster, fanning out to the
// decoder for the declared MIME type. Animated GIFs decode to their
// first frame.
func Decode(data []byte, mime string) (image.Image, error) {
	var (
		img image.Image
		err error
	)

	switch mime {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/gif":
		img, err = gif.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = xwebp.Decode(bytes.NewReader(data))
	case "image/avif":
		img, err = avif.Decode(bytes.NewReader(data))
	case "image/jxl":
		img, err = jpegxl.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported mime %s: %w", mime, models.ErrInvalidInput)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mime, models.ErrInvalidInput)
	}
	return img, nil
}
