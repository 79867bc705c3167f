package models

// Variant identifies one stored form of an uploaded image.
type Variant string

const (
	VariantThumbnail Variant = "thumbnail"
	VariantHigh      Variant = "high"
	VariantOriginal  Variant = "original"
)

// VariantFromName parses a variant name from a request path.
func VariantFromName(name string) (Variant, bool) {
	switch name {
	case "thumbnail":
		return VariantThumbnail, true
	case "high":
		return VariantHigh, true
	case "original":
		return VariantOriginal, true
	default:
		return "", false
	}
}

// LinkedImage is a secondary image grouped under a cover entry. It has no
// tags of its own and cannot nest further linked images.
type LinkedImage struct {
	ID           string    `json:"id"`
	OriginalMime string    `json:"original_mime"`
	OriginalSize int64     `json:"original_size"`
	CreatedAt    int64     `json:"created_at"`
	Variants     []Variant `json:"variants"`
}

// ImageEntry is one manifest record. Tags and LinkedImages preserve
// insertion order.
type ImageEntry struct {
	ID           string        `json:"id"`
	OriginalMime string        `json:"original_mime"`
	OriginalSize int64         `json:"original_size"`
	CreatedAt    int64         `json:"created_at"`
	Variants     []Variant     `json:"variants"`
	Tags         []string      `json:"tags"`
	LinkedImages []LinkedImage `json:"linked_images"`
}

// HasVariant reports whether the entry persists the given variant.
func (e *ImageEntry) HasVariant(v Variant) bool {
	for _, have := range e.Variants {
		if have == v {
			return true
		}
	}
	return false
}

// HasVariant reports whether the linked image persists the given variant.
func (l *LinkedImage) HasVariant(v Variant) bool {
	for _, have := range l.Variants {
		if have == v {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the entry so callers can hand out
// snapshots without exposing manifest internals.
func (e *ImageEntry) Clone() *ImageEntry {
	out := *e
	out.Variants = append([]Variant(nil), e.Variants...)
	out.Tags = append([]string(nil), e.Tags...)
	out.LinkedImages = make([]LinkedImage, len(e.LinkedImages))
	for i, l := range e.LinkedImages {
		out.LinkedImages[i] = l
		out.LinkedImages[i].Variants = append([]Variant(nil), l.Variants...)
	}
	return &out
}

// AcceptedMimes is the set of upload MIME types the pipeline decodes.
var AcceptedMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/avif": true,
	"image/gif":  true,
	"image/jxl":  true,
}

// MimeToExt maps an accepted MIME type to a filename extension for
// archive entries. Unknown types fall back to "bin".
func MimeToExt(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/avif":
		return "avif"
	case "image/gif":
		return "gif"
	case "image/jxl":
		return "jxl"
	default:
		return "bin"
	}
}
