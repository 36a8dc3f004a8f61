package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetSizeClampsLongEdge(t *testing.T) {
	tests := []struct {
		name       string
		w, h, max  int
		wantW      int
		wantH      int
	}{
		{"landscape", 2000, 1000, 250, 250, 125},
		{"portrait", 800, 1600, 200, 100, 200},
		{"square", 1000, 1000, 100, 100, 100},
		{"extreme aspect never hits zero", 10000, 10, 100, 100, 1},
		{"within bounds keeps dimensions", 50, 25, 100, 50, 25},
		{"exactly at bound keeps dimensions", 100, 80, 100, 100, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetSize(tt.w, tt.h, tt.max)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestGenerateProducesDecodableJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 400; x++ {
			src.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}

	data, err := NewThumbnailer().Generate(src, 100)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	thumb, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Bounds().Dx())
	assert.Equal(t, 50, thumb.Bounds().Dy())
}

func TestGenerateNeverUpscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 50, 25))

	data, err := NewThumbnailer().Generate(src, 100)
	require.NoError(t, err)

	thumb, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 50, thumb.Bounds().Dx(), "image already within bounds keeps its size")
	assert.Equal(t, 25, thumb.Bounds().Dy())
}
