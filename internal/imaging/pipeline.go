package imaging

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/vantavault/vanta/internal/events"
	"github.com/vantavault/vanta/internal/models"
)

// Variant box sizes and encoder qualities.
const (
	thumbnailMax     = 400
	highMax          = 2048
	thumbnailQuality = 75
	highQuality      = 85
)

// VariantData is one produced variant and its encoded bytes.
type VariantData struct {
	Variant models.Variant
	Data    []byte
}

// Processed is the result of running an upload through the pipeline.
type Processed struct {
	OriginalMime string
	OriginalSize int64
	Variants     []VariantData
}

// Processor turns uploaded bytes into the canonical variant set. All
// CPU-bound decode and encode work runs under a weighted semaphore so at
// most maxConcurrent pipelines execute at once, keeping image work off
// the request path.
type Processor struct {
	sem     *semaphore.Weighted
	maxSize int64
	logger  *events.Logger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(maxConcurrent, maxUploadSize int64, logger *events.Logger) *Processor {
	return &Processor{
		sem:     semaphore.NewWeighted(maxConcurrent),
		maxSize: maxUploadSize,
		logger:  logger.WithField("component", "pipeline"),
	}
}

// Process validates, decodes, and transcodes one upload. The returned
// variants always contain thumbnail, high, and original, in that order.
// When the source already fits the high box and is single-frame
// WebP/JPEG, the high variant reuses the original bytes instead of
// re-encoding.
func (p *Processor) Process(ctx context.Context, data []byte, mime string) (*Processed, error) {
	if !models.AcceptedMimes[mime] {
		return nil, fmt.Errorf("unsupported mime %s: %w", mime, models.ErrInvalidInput)
	}

	if int64(len(data)) > p.maxSize {
		return nil, fmt.Errorf("upload exceeds %d bytes: %w", p.maxSize, models.ErrInvalidInput)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload: %w", models.ErrInvalidInput)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire pipeline slot: %w", err)
	}
	defer p.sem.Release(1)

	img, err := Decode(data, mime)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	p.logger.WithFields(map[string]interface{}{
		"mime":   mime,
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
		"size":   len(data),
	}).Debug("Processing upload")

	thumb, err := encodeWebP(resizeToFit(img, thumbnailMax), thumbnailQuality)
	if err != nil {
		return nil, err
	}

	var high []byte
	if fitsHighBox(bounds.Dx(), bounds.Dy()) && reusableForHigh(mime) {
		high = data
	} else {
		high, err = encodeWebP(resizeToFit(img, highMax), highQuality)
		if err != nil {
			return nil, err
		}
	}

	return &Processed{
		OriginalMime: mime,
		OriginalSize: int64(len(data)),
		Variants: []VariantData{
			{Variant: models.VariantThumbnail, Data: thumb},
			{Variant: models.VariantHigh, Data: high},
			{Variant: models.VariantOriginal, Data: data},
		},
	}, nil
}

func fitsHighBox(width, height int) bool {
	return width <= highMax && height <= highMax
}

// reusableForHigh reports whether the original bytes can serve as the
// high variant directly. Only single-frame WebP and JPEG qualify; the
// decoders here reject animated WebP, so a decoded WebP is single-frame.
func reusableForHigh(mime string) bool {
	return mime == "image/webp" || mime == "image/jpeg"
}
