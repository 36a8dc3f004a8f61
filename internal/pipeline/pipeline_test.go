package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-dev/lumeo/internal/caption"
	"github.com/lumeo-dev/lumeo/internal/config"
	"github.com/lumeo-dev/lumeo/internal/embed"
	lumeoerrors "github.com/lumeo-dev/lumeo/internal/errors"
	"github.com/lumeo-dev/lumeo/internal/store"
)

type fakeSource struct {
	calls int
	err   error
}

func (f *fakeSource) DecodeNormalized(_ context.Context, _ string) (image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

type fakeThumbs struct{ calls int }

func (f *fakeThumbs) Generate(_ image.Image, _ int) ([]byte, error) {
	f.calls++
	return []byte("thumb"), nil
}

type fakeOCR struct {
	calls int
	text  string
	err   error
}

func (f *fakeOCR) Recognize(_ context.Context, _ image.Image) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeLabels struct {
	calls  int
	labels []store.Label
}

func (f *fakeLabels) Label(_ context.Context, _ image.Image, _ int) ([]store.Label, error) {
	f.calls++
	return f.labels, nil
}

type fakeMeta struct{ calls int }

func (f *fakeMeta) Extract(_ context.Context, _ string, img image.Image) (store.Metadata, error) {
	f.calls++
	b := img.Bounds()
	return store.Metadata{Width: b.Dx(), Height: b.Dy()}, nil
}

type fakeColors struct{ calls int }

func (f *fakeColors) Extract(_ image.Image) []int {
	f.calls++
	return []int{0x112233}
}

type stubSession struct{ text string }

func (s *stubSession) Generate(_ context.Context, _ image.Image) (string, error) {
	return s.text, nil
}
func (s *stubSession) Close() error { return nil }

type stubFactory struct{ text string }

func (f *stubFactory) New(_ context.Context) (caption.Session, error) {
	return &stubSession{text: f.text}, nil
}
func (f *stubFactory) Available() bool { return true }

type fixture struct {
	store    *store.SQLiteItemStore
	source   *fakeSource
	thumbs   *fakeThumbs
	ocr      *fakeOCR
	labels   *fakeLabels
	meta     *fakeMeta
	colors   *fakeColors
	pipeline *Pipeline
}

func newFixture(t *testing.T, gate *caption.Gate) *fixture {
	t.Helper()

	st, err := store.Open("", 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		store:  st,
		source: &fakeSource{},
		thumbs: &fakeThumbs{},
		ocr:    &fakeOCR{text: "meeting notes budget"},
		labels: &fakeLabels{labels: []store.Label{{Text: "Document", Confidence: 0.9}}},
		meta:   &fakeMeta{},
		colors: &fakeColors{},
	}
	f.pipeline = New(st, f.source, f.thumbs, f.ocr, f.labels, f.meta, f.colors, gate, embed.NewStaticEmbedder(100))
	return f
}

func (f *fixture) enqueue(t *testing.T, ref string) *store.Item {
	t.Helper()
	item := &store.Item{
		SourceRef:  ref,
		CreatedAt:  time.Now(),
		ImportedAt: time.Now(),
		Status:     store.StatusQueued,
		LastStage:  store.StageNone,
	}
	require.NoError(t, f.store.Put(context.Background(), item))
	return item
}

func allOnConfig() *config.Config {
	cfg := config.Default()
	cfg.Features.OCREnabled = true
	cfg.Features.TextEmbeddingsEnabled = true
	cfg.Features.LabelingEnabled = true
	return cfg
}

func TestRunCompletesAllStages(t *testing.T) {
	f := newFixture(t, nil)
	item := f.enqueue(t, "/photos/notes.jpg")

	require.NoError(t, f.pipeline.Run(context.Background(), item, allOnConfig()))

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, got.Status)
	assert.Equal(t, store.StageDone, got.LastStage)
	assert.Equal(t, []byte("thumb"), got.Thumbnail)
	assert.Equal(t, "meeting notes budget", got.OCRText)
	assert.Equal(t, []store.Label{{Text: "Document", Confidence: 0.9}}, got.Labels)
	assert.Equal(t, []int{0x112233}, got.Colors)
	assert.Equal(t, 8, got.Meta.Width)
	assert.NotEmpty(t, got.TextEmbedding, "OCR text must produce a text embedding")
	assert.Nil(t, got.Description, "no caption runtime configured")
	assert.Nil(t, got.CaptionEmbedding)
}

func TestRunStageFailureMarksFailedAndPreservesProgress(t *testing.T) {
	f := newFixture(t, nil)
	f.ocr.err = errors.New("recognizer crashed")
	item := f.enqueue(t, "/photos/broken.jpg")

	err := f.pipeline.Run(context.Background(), item, allOnConfig())
	require.Error(t, err)
	assert.Equal(t, lumeoerrors.CodeStage, lumeoerrors.CodeOf(err))

	got, getErr := f.store.Get(context.Background(), item.ID)
	require.NoError(t, getErr)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, store.StageColors, got.LastStage, "stages before the failure stay persisted")
	assert.Equal(t, []byte("thumb"), got.Thumbnail)
}

func TestRunResumesAfterFailureWithoutRedoingStages(t *testing.T) {
	f := newFixture(t, nil)
	f.ocr.err = errors.New("transient")
	item := f.enqueue(t, "/photos/retry.jpg")

	require.Error(t, f.pipeline.Run(context.Background(), item, allOnConfig()))
	assert.Equal(t, 1, f.thumbs.calls)
	assert.Equal(t, 1, f.meta.calls)
	assert.Equal(t, 1, f.colors.calls)

	// Re-queue and fix the recognizer; completed stages must not run again.
	f.ocr.err = nil
	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	got.Status = store.StatusQueued
	require.NoError(t, f.store.Put(context.Background(), got))

	require.NoError(t, f.pipeline.Run(context.Background(), got, allOnConfig()))

	assert.Equal(t, 1, f.thumbs.calls, "thumbnail stage must not re-run")
	assert.Equal(t, 1, f.meta.calls, "metadata stage must not re-run")
	assert.Equal(t, 1, f.colors.calls, "colors stage must not re-run")
	assert.Equal(t, 2, f.ocr.calls, "only the failed stage runs again")

	final, err := f.store.Get(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, final.Status)
	assert.Equal(t, store.StageDone, final.LastStage)
}

func TestRunOnCompletedItemDoesNoStageWork(t *testing.T) {
	f := newFixture(t, nil)
	item := f.enqueue(t, "/photos/done.jpg")
	require.NoError(t, f.pipeline.Run(context.Background(), item, allOnConfig()))

	before := f.thumbs.calls + f.ocr.calls + f.labels.calls + f.meta.calls + f.colors.calls
	require.NoError(t, f.pipeline.Run(context.Background(), item, allOnConfig()))
	after := f.thumbs.calls + f.ocr.calls + f.labels.calls + f.meta.calls + f.colors.calls

	assert.Equal(t, before, after, "every stage is already recorded as complete")
}

func TestRunDecodeFailureFailsBeforeAnyStage(t *testing.T) {
	f := newFixture(t, nil)
	f.source.err = errors.New("corrupt file")
	item := f.enqueue(t, "/photos/corrupt.jpg")

	err := f.pipeline.Run(context.Background(), item, allOnConfig())
	require.Error(t, err)
	assert.Equal(t, lumeoerrors.CodeDecode, lumeoerrors.CodeOf(err))

	got, getErr := f.store.Get(context.Background(), item.ID)
	require.NoError(t, getErr)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, store.StageNone, got.LastStage)
	assert.Zero(t, f.thumbs.calls)
}

func TestRunDisabledTogglesCompleteWithEmptyResults(t *testing.T) {
	f := newFixture(t, nil)
	item := f.enqueue(t, "/photos/minimal.jpg")

	cfg := config.Default()
	cfg.Features.OCREnabled = false
	cfg.Features.LabelingEnabled = false
	cfg.Features.TextEmbeddingsEnabled = false
	cfg.Features.CaptioningEnabled = false

	require.NoError(t, f.pipeline.Run(context.Background(), item, cfg))

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, got.Status)
	assert.Equal(t, store.StageDone, got.LastStage, "disabled stages still complete")
	assert.Empty(t, got.OCRText)
	assert.Empty(t, got.Labels)
	assert.Nil(t, got.Description)
	assert.Nil(t, got.TextEmbedding)
	assert.Zero(t, f.ocr.calls)
	assert.Zero(t, f.labels.calls)
}

type failingEmbedder struct{ unavailable bool }

func (f *failingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("model backend crashed")
}
func (f *failingEmbedder) Dimensions() int                  { return 100 }
func (f *failingEmbedder) ModelName() string                { return "failing" }
func (f *failingEmbedder) Available(_ context.Context) bool { return !f.unavailable }
func (f *failingEmbedder) Close() error                     { return nil }

func TestRunEmbedderFailureStillCompletesIndexing(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline = New(f.store, f.source, f.thumbs, f.ocr, f.labels, f.meta, f.colors, nil, &failingEmbedder{})
	item := f.enqueue(t, "/photos/no-model.jpg")

	require.NoError(t, f.pipeline.Run(context.Background(), item, allOnConfig()),
		"an embedding failure never fails the item")

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, got.Status)
	assert.Equal(t, store.StageDone, got.LastStage)
	assert.Equal(t, "meeting notes budget", got.OCRText)
	assert.Nil(t, got.TextEmbedding, "failed embeds leave the field empty")
	assert.Nil(t, got.CaptionEmbedding)
}

func TestRunUnavailableEmbedderSkipsEmbeddings(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline = New(f.store, f.source, f.thumbs, f.ocr, f.labels, f.meta, f.colors, nil, &failingEmbedder{unavailable: true})
	item := f.enqueue(t, "/photos/missing-model.jpg")

	require.NoError(t, f.pipeline.Run(context.Background(), item, allOnConfig()))

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, got.Status)
	assert.Nil(t, got.TextEmbedding)
}

func TestRunWithCaptioningFillsDescriptionAndEmbedding(t *testing.T) {
	embedder := embed.NewStaticEmbedder(100)
	gate := caption.NewGate(&stubFactory{text: "a sunny beach with umbrellas"}, embedder, time.Second)

	f := newFixture(t, gate)
	item := f.enqueue(t, "/photos/beach.jpg")

	cfg := allOnConfig()
	cfg.Features.CaptioningEnabled = true

	require.NoError(t, f.pipeline.Run(context.Background(), item, cfg))

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	assert.Equal(t, "a sunny beach with umbrellas", *got.Description)
	assert.NotEmpty(t, got.CaptionEmbedding)
}
