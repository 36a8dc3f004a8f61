package image

import (
	"image"
	"sort"
)

const (
	// colorSampleStep subsamples pixels so large images stay cheap.
	colorSampleStep = 8
	// colorQuantBits per channel when bucketing (32 levels per channel).
	colorQuantBits = 5
	// maxDominantColors returned per image.
	maxDominantColors = 5
)

// ColorExtractor computes a small palette of dominant colors.
type ColorExtractor struct{}

// NewColorExtractor creates a dominant color extractor.
func NewColorExtractor() *ColorExtractor {
	return &ColorExtractor{}
}

// Extract returns up to five dominant colors as packed 0xRRGGBB values,
// most frequent first. Pixels are subsampled and quantized to 5 bits per
// channel before counting.
func (c *ColorExtractor) Extract(img image.Image) []int {
	b := img.Bounds()
	counts := make(map[int]int)

	shift := 8 - colorQuantBits
	for y := b.Min.Y; y < b.Max.Y; y += colorSampleStep {
		for x := b.Min.X; x < b.Max.X; x += colorSampleStep {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			// RGBA returns 16-bit channels; reduce to quantized 8-bit.
			qr := int(r>>8) >> shift
			qg := int(g>>8) >> shift
			qb := int(bl>>8) >> shift
			counts[qr<<(2*colorQuantBits)|qg<<colorQuantBits|qb]++
		}
	}

	type bucket struct {
		key   int
		count int
	}
	buckets := make([]bucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, bucket{key: k, count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].key < buckets[j].key
	})

	if len(buckets) > maxDominantColors {
		buckets = buckets[:maxDominantColors]
	}

	colors := make([]int, 0, len(buckets))
	for _, bk := range buckets {
		// Expand back to the center of each quantization bucket.
		qr := (bk.key >> (2 * colorQuantBits)) & (1<<colorQuantBits - 1)
		qg := (bk.key >> colorQuantBits) & (1<<colorQuantBits - 1)
		qb := bk.key & (1<<colorQuantBits - 1)
		r := qr<<shift | 1<<(shift-1)
		g := qg<<shift | 1<<(shift-1)
		bl := qb<<shift | 1<<(shift-1)
		colors = append(colors, r<<16|g<<8|bl)
	}
	return colors
}
