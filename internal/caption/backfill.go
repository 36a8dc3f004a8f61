package caption

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/lumeo-dev/lumeo/internal/embed"
	"github.com/lumeo-dev/lumeo/internal/store"
)

// Decoder decodes a source reference into upright pixels.
type Decoder interface {
	DecodeNormalized(ctx context.Context, sourceRef string) (image.Image, error)
}

// Backfill captions already-indexed items that have no description, for when
// captioning is enabled after a library was indexed without it. It runs in a
// background goroutine and can be stopped between items. A Backfill is
// single-use: once its run finishes, further Start calls are no-ops.
type Backfill struct {
	store    store.ItemStore
	decoder  Decoder
	gate     *Gate
	embedder embed.Embedder
	progress *Progress

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	running bool
	err     error
}

// NewBackfill creates a caption backfill. The embedder produces the caption
// embedding for each new description.
func NewBackfill(st store.ItemStore, decoder Decoder, gate *Gate, embedder embed.Embedder) *Backfill {
	return &Backfill{
		store:    st,
		decoder:  decoder,
		gate:     gate,
		embedder: embedder,
		progress: NewProgress(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Progress returns the progress tracker for this backfill.
func (b *Backfill) Progress() *Progress {
	return b.progress
}

// IsRunning returns true while the backfill goroutine is active.
func (b *Backfill) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins the backfill in a background goroutine. Non-blocking; use
// Wait to block until completion. Repeated calls, including after the run
// has finished, do nothing.
func (b *Backfill) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *Backfill) run(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	items, err := b.store.ListByStatus(ctx, store.StatusIndexed)
	if err != nil {
		b.progress.SetError(err.Error())
		b.setErr(err)
		return
	}

	var missing []*store.Item
	for _, item := range items {
		if item.Description == nil {
			missing = append(missing, item)
		}
	}
	b.progress.SetTotal(len(missing))
	slog.Info("caption backfill started", "items", len(missing))

	for _, item := range missing {
		if ctx.Err() != nil {
			b.progress.SetStatus(StatusStopped)
			return
		}

		b.progress.ItemStarted()
		captioned := b.captionOne(ctx, item)
		b.progress.ItemDone(captioned)
	}

	b.progress.SetStatus(StatusDone)
	slog.Info("caption backfill finished", "captioned", b.progress.Snapshot().Captioned)
}

// captionOne captions a single item and persists the result. Failures are
// logged and skipped; the item stays caption-less.
func (b *Backfill) captionOne(ctx context.Context, item *store.Item) bool {
	img, err := b.decoder.DecodeNormalized(ctx, item.SourceRef)
	if err != nil {
		slog.Debug("backfill decode failed", "id", item.ID, "error", err)
		return false
	}

	text, ok := b.gate.Caption(ctx, img)
	if !ok {
		return false
	}

	item.Description = &text
	if vec, err := b.embedder.Embed(ctx, text); err == nil {
		item.CaptionEmbedding = vec
	} else {
		slog.Debug("backfill caption embedding failed", "id", item.ID, "error", err)
	}

	if err := b.store.Put(ctx, item); err != nil {
		slog.Warn("backfill persist failed", "id", item.ID, "error", err)
		return false
	}
	return true
}

// Stop signals the backfill to stop after the current item and waits for it
// to finish.
func (b *Backfill) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// Wait blocks until the backfill completes and returns any error.
func (b *Backfill) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Backfill) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}
