// Package watcher enqueues new images as they appear in a watched directory.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lumeo-dev/lumeo/internal/store"
)

// debounceDelay lets a file finish writing before it is enqueued; editors
// and downloads emit several write events per file.
const debounceDelay = 500 * time.Millisecond

// Enqueuer adds a source to the ingestion queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, sourceRef string, createdAt time.Time) (item *store.Item, created bool, err error)
}

// Watcher observes a directory and enqueues supported image files.
type Watcher struct {
	dir   string
	queue Enqueuer

	mu       sync.Mutex
	pending  map[string]*time.Timer
	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New creates a watcher for dir.
func New(dir string, queue Enqueuer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		queue:   queue,
		pending: make(map[string]*time.Timer),
		fsw:     fsw,
		doneCh:  make(chan struct{}),
	}, nil
}

// Run processes events until the context is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.doneCh)
	slog.Info("watching for new images", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && Supported(event.Name) {
				w.debounce(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

// debounce schedules (or reschedules) an enqueue for path.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.enqueue(ctx, path)
	})
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("skipping vanished file", "path", path)
		return
	}
	if _, _, err := w.queue.Enqueue(ctx, path, info.ModTime()); err != nil {
		slog.Warn("failed to enqueue watched file", "path", path, "error", err)
	}
}

// Close stops watching and waits for Run to return.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
	})
	<-w.doneCh
	return err
}

// Supported reports whether the file extension is an indexable image type.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}
