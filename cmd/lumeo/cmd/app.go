package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumeo-dev/lumeo/internal/caption"
	"github.com/lumeo-dev/lumeo/internal/config"
	"github.com/lumeo-dev/lumeo/internal/embed"
	"github.com/lumeo-dev/lumeo/internal/image"
	"github.com/lumeo-dev/lumeo/internal/pipeline"
	"github.com/lumeo-dev/lumeo/internal/queue"
	"github.com/lumeo-dev/lumeo/internal/search"
	"github.com/lumeo-dev/lumeo/internal/store"
)

// app bundles the wired components every command operates on.
type app struct {
	cfg      *config.Config
	store    store.ItemStore
	embedder embed.Embedder
	gate     *caption.Gate
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
	ranker   *search.Ranker
	decoder  *image.FileBitmapSource
}

// openApp loads config, opens the store, and wires the full component graph.
// Call close when done.
func openApp() (*app, func(), error) {
	if err := os.MkdirAll(dataDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(filepath.Join(dataDir(), "lumeo.db"), cfg.Embeddings.Dimensions)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embed.New(cfg.Embeddings.ModelPath, cfg.Embeddings.Dimensions, cfg.Embeddings.CacheSize)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	// No caption runtime is linked into this binary yet; the gate reports
	// unavailable and every caption degrades to none.
	factory := caption.NewFileFactory(cfg.Caption.ModelPath, nil)
	gate := caption.NewGate(factory, embedder, cfg.Caption.Timeout)

	decoder := image.NewFileBitmapSource()
	pipe := pipeline.New(
		st,
		decoder,
		image.NewThumbnailer(),
		pipeline.NoopOCREngine{},
		pipeline.NoopLabelEngine{},
		image.NewFileMetadataExtractor(),
		image.NewColorExtractor(),
		gate,
		embedder,
	)

	q := queue.New(st, pipe, queue.NoopScheduler{}, func() (*config.Config, error) {
		return config.Load(configPath())
	})

	ranker := search.NewRanker(st, gate, cfg.Search)

	a := &app{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		gate:     gate,
		queue:    q,
		pipeline: pipe,
		ranker:   ranker,
		decoder:  decoder,
	}
	closeFn := func() {
		_ = embedder.Close()
		_ = st.Close()
	}
	return a, closeFn, nil
}
