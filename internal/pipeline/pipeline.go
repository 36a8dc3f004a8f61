// Package pipeline runs the staged extraction that turns a queued source
// image into an indexed item. Each stage persists on completion so an
// interrupted run resumes where it stopped instead of redoing work.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"strings"

	"github.com/lumeo-dev/lumeo/internal/caption"
	"github.com/lumeo-dev/lumeo/internal/config"
	"github.com/lumeo-dev/lumeo/internal/embed"
	lumeoerrors "github.com/lumeo-dev/lumeo/internal/errors"
	"github.com/lumeo-dev/lumeo/internal/store"
)

// BitmapSource decodes a source reference into upright pixels.
type BitmapSource interface {
	DecodeNormalized(ctx context.Context, sourceRef string) (image.Image, error)
}

// ThumbnailGenerator produces encoded thumbnail bytes bounded by maxPx on
// the long edge.
type ThumbnailGenerator interface {
	Generate(img image.Image, maxPx int) ([]byte, error)
}

// OcrEngine recognizes text in an image.
type OcrEngine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// LabelEngine assigns visual labels with confidences.
type LabelEngine interface {
	Label(ctx context.Context, img image.Image, max int) ([]store.Label, error)
}

// MetadataExtractor collects descriptive metadata for a source.
type MetadataExtractor interface {
	Extract(ctx context.Context, sourceRef string, img image.Image) (store.Metadata, error)
}

// ColorExtractor computes dominant colors.
type ColorExtractor interface {
	Extract(img image.Image) []int
}

// Pipeline drives one item through every extraction stage.
type Pipeline struct {
	store    store.ItemStore
	source   BitmapSource
	thumbs   ThumbnailGenerator
	ocr      OcrEngine
	labels   LabelEngine
	meta     MetadataExtractor
	colors   ColorExtractor
	gate     *caption.Gate
	embedder embed.Embedder
}

// New wires a pipeline from its collaborators.
func New(
	st store.ItemStore,
	source BitmapSource,
	thumbs ThumbnailGenerator,
	ocr OcrEngine,
	labels LabelEngine,
	meta MetadataExtractor,
	colors ColorExtractor,
	gate *caption.Gate,
	embedder embed.Embedder,
) *Pipeline {
	return &Pipeline{
		store:    st,
		source:   source,
		thumbs:   thumbs,
		ocr:      ocr,
		labels:   labels,
		meta:     meta,
		colors:   colors,
		gate:     gate,
		embedder: embedder,
	}
}

// Run processes one item to completion. Stages already recorded in
// item.LastStage are skipped, so re-running after an interruption only does
// the remaining work. On any stage failure the item is marked FAILED with
// its progress preserved.
func (p *Pipeline) Run(ctx context.Context, item *store.Item, cfg *config.Config) error {
	img, err := p.source.DecodeNormalized(ctx, item.SourceRef)
	if err != nil {
		decodeErr := lumeoerrors.DecodeError(item.SourceRef, err)
		p.markFailed(ctx, item.ID, decodeErr)
		return decodeErr
	}

	stages := []struct {
		stage store.Stage
		fn    func() error
	}{
		{store.StageThumbnail, func() error {
			data, err := p.thumbs.Generate(img, cfg.Indexing.ThumbnailMaxPx)
			if err != nil {
				return err
			}
			item.Thumbnail = data
			return nil
		}},
		{store.StageMetadata, func() error {
			meta, err := p.meta.Extract(ctx, item.SourceRef, img)
			if err != nil {
				return err
			}
			item.Meta = meta
			return nil
		}},
		{store.StageColors, func() error {
			item.Colors = p.colors.Extract(img)
			return nil
		}},
		{store.StageOCR, func() error {
			if !cfg.Features.OCREnabled {
				item.OCRText = ""
				return nil
			}
			text, err := p.ocr.Recognize(ctx, img)
			if err != nil {
				return err
			}
			item.OCRText = text
			return nil
		}},
		{store.StageLabels, func() error {
			if !cfg.Features.LabelingEnabled {
				item.Labels = nil
				return nil
			}
			labels, err := p.labels.Label(ctx, img, cfg.Indexing.MaxLabels)
			if err != nil {
				return err
			}
			item.Labels = labels
			return nil
		}},
		{store.StageDescription, func() error {
			// Caption failures are graceful degradation, never stage errors.
			item.Description = nil
			if cfg.Features.CaptioningEnabled && p.gate != nil {
				if text, ok := p.gate.Caption(ctx, img); ok {
					item.Description = &text
				}
			}
			return nil
		}},
		{store.StageEmbeddings, func() error {
			return p.computeEmbeddings(ctx, item, cfg)
		}},
	}

	for _, s := range stages {
		if item.LastStage >= s.stage {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.fn(); err != nil {
			stageErr := lumeoerrors.StageError(s.stage.String(), err)
			p.markFailed(ctx, item.ID, stageErr)
			return stageErr
		}
		item.LastStage = s.stage
		if err := p.store.Put(ctx, item); err != nil {
			return lumeoerrors.StoreError("persist stage progress", err)
		}
		slog.Debug("stage complete", "id", item.ID, "stage", s.stage.String())
	}

	item.LastStage = store.StageDone
	item.Status = store.StatusIndexed
	if err := p.store.Put(ctx, item); err != nil {
		return lumeoerrors.StoreError("persist indexed item", err)
	}
	slog.Info("item indexed", "id", item.ID, "source", item.SourceRef)
	return nil
}

// computeEmbeddings fills the text and caption embedding fields. Blank text
// yields no embedding rather than a zero vector in the index. An unavailable
// or failing embedder leaves the fields nil and still completes the stage.
func (p *Pipeline) computeEmbeddings(ctx context.Context, item *store.Item, cfg *config.Config) error {
	item.TextEmbedding = nil
	item.CaptionEmbedding = nil

	if !cfg.Features.TextEmbeddingsEnabled || p.embedder == nil {
		return nil
	}
	if !p.embedder.Available(ctx) {
		slog.Debug("embedder unavailable, skipping embeddings", "id", item.ID)
		return nil
	}

	if strings.TrimSpace(item.OCRText) != "" {
		item.TextEmbedding = p.embedOrNil(ctx, item.ID, item.OCRText)
	}

	if item.Description != nil && strings.TrimSpace(*item.Description) != "" {
		item.CaptionEmbedding = p.embedOrNil(ctx, item.ID, *item.Description)
	}

	return nil
}

// embedOrNil returns the embedding for text, or nil when the embedder fails.
func (p *Pipeline) embedOrNil(ctx context.Context, id int64, text string) []float32 {
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("embedding failed, leaving field empty", "id", id, "error", err)
		return nil
	}
	return vec
}

// markFailed flips the item to FAILED using the freshest stored copy, so the
// persisted LastStage from completed stages survives.
func (p *Pipeline) markFailed(ctx context.Context, id int64, cause error) {
	fresh, err := p.store.Get(ctx, id)
	if err != nil {
		slog.Error("failed to load item for failure mark", "id", id, "error", err)
		return
	}
	fresh.Status = store.StatusFailed
	if err := p.store.Put(ctx, fresh); err != nil {
		slog.Error("failed to persist failure", "id", id, "error", err)
		return
	}
	slog.Warn("item failed", "id", id, "error", cause)
}
