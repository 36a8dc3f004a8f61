package pipeline

import (
	"context"
	"image"

	"github.com/lumeo-dev/lumeo/internal/store"
)

// NoopOCREngine is the engine used when no text recognizer is configured.
// Items pass the OCR stage with empty text, matching the disabled-toggle
// behavior.
type NoopOCREngine struct{}

func (NoopOCREngine) Recognize(_ context.Context, _ image.Image) (string, error) {
	return "", nil
}

// NoopLabelEngine is the engine used when no labeling model is configured.
type NoopLabelEngine struct{}

func (NoopLabelEngine) Label(_ context.Context, _ image.Image, _ int) ([]store.Label, error) {
	return nil, nil
}
