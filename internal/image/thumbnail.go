package image

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
)

// jpegQuality for encoded thumbnails. Thumbnails are preview artifacts, not
// archival copies.
const jpegQuality = 85

// Thumbnailer scales images down to a bounded long edge and encodes them as
// JPEG for storage.
type Thumbnailer struct{}

// NewThumbnailer creates a thumbnail generator.
func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{}
}

// TargetSize computes the thumbnail dimensions for a source of the given
// size. A source already within maxPx keeps its dimensions; otherwise the
// long edge is scaled to maxPx and the short edge keeps the aspect ratio,
// rounded to the nearest pixel but never below 1.
func TargetSize(width, height, maxPx int) (int, int) {
	long := width
	if height > long {
		long = height
	}
	if long <= 0 {
		return 1, 1
	}
	if long <= maxPx {
		return width, height
	}

	s := float64(maxPx) / float64(long)
	tw := int(math.Round(float64(width) * s))
	th := int(math.Round(float64(height) * s))
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

// Generate scales the image down to fit maxPx and returns JPEG bytes.
// Images already within bounds are encoded as-is, never upscaled.
func (t *Thumbnailer) Generate(img image.Image, maxPx int) ([]byte, error) {
	b := img.Bounds()
	tw, th := TargetSize(b.Dx(), b.Dy(), maxPx)

	scaled := img
	if tw != b.Dx() || th != b.Dy() {
		scaled = scale(img, tw, th)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
