// Package queue manages the ingestion queue: which items wait for indexing,
// in what order they drain, and how the user pause interacts with a drain in
// progress.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumeo-dev/lumeo/internal/config"
	"github.com/lumeo-dev/lumeo/internal/store"
)

// Outcome is the result of one drive attempt.
type Outcome string

const (
	// OutcomeCompleted means the queue drained (or was empty).
	OutcomeCompleted Outcome = "completed"
	// OutcomeRetry means work remains and the drive should be rescheduled,
	// e.g. ingestion is paused.
	OutcomeRetry Outcome = "retry"
)

// Runner processes one queued item to completion.
type Runner interface {
	Run(ctx context.Context, item *store.Item, cfg *config.Config) error
}

// Scheduler requests a future drive. The CLI uses NoopScheduler; a daemon
// wires a real one.
type Scheduler interface {
	// Request asks for a drive soon.
	Request()
	// Cancel withdraws any pending request.
	Cancel()
}

// NoopScheduler ignores scheduling requests.
type NoopScheduler struct{}

func (NoopScheduler) Request() {}
func (NoopScheduler) Cancel()  {}

// Queue coordinates queued items with the pipeline runner.
type Queue struct {
	store   store.ItemStore
	runner  Runner
	sched   Scheduler
	loadCfg func() (*config.Config, error)
}

// New creates a queue. loadCfg is called once per drive so config edits take
// effect on the next run.
func New(st store.ItemStore, runner Runner, sched Scheduler, loadCfg func() (*config.Config, error)) *Queue {
	if sched == nil {
		sched = NoopScheduler{}
	}
	return &Queue{store: st, runner: runner, sched: sched, loadCfg: loadCfg}
}

// Drive drains the queue in FIFO order. Returns OutcomeRetry without side
// effects when ingestion is paused; the pause state is re-checked before
// every item so a pause mid-drain stops promptly and leaves the remaining
// items queued. Item failures are logged and do not stop the drain.
func (q *Queue) Drive(ctx context.Context) (Outcome, error) {
	paused, err := q.Paused(ctx)
	if err != nil {
		return OutcomeRetry, err
	}
	if paused {
		slog.Info("ingestion paused, deferring drive")
		return OutcomeRetry, nil
	}

	cfg, err := q.loadCfg()
	if err != nil {
		return OutcomeRetry, err
	}

	items, err := q.store.ListByStatus(ctx, store.StatusQueued)
	if err != nil {
		return OutcomeRetry, err
	}
	slog.Info("drive started", "queued", len(items))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			q.recordLastRun(ctx)
			return OutcomeRetry, err
		}

		paused, err := q.Paused(ctx)
		if err != nil {
			q.recordLastRun(ctx)
			return OutcomeRetry, err
		}
		if paused {
			slog.Info("ingestion paused mid-drive, remaining items stay queued")
			q.recordLastRun(ctx)
			return OutcomeRetry, nil
		}

		if err := q.runner.Run(ctx, item, cfg); err != nil {
			slog.Warn("item processing failed", "id", item.ID, "error", err)
		}
	}

	q.recordLastRun(ctx)
	return OutcomeCompleted, nil
}

// Enqueue adds a source to the queue. Importing an already-known source is a
// no-op that returns the existing item with created=false.
func (q *Queue) Enqueue(ctx context.Context, sourceRef string, createdAt time.Time) (item *store.Item, created bool, err error) {
	if existing, err := q.store.GetBySourceRef(ctx, sourceRef); err == nil {
		return existing, false, nil
	} else if err != store.ErrNotFound {
		return nil, false, err
	}

	item = &store.Item{
		SourceRef:  sourceRef,
		CreatedAt:  createdAt,
		ImportedAt: time.Now(),
		Status:     store.StatusQueued,
		LastStage:  store.StageNone,
	}
	if err := q.store.Put(ctx, item); err != nil {
		if err == store.ErrDuplicateSourceRef {
			existing, err := q.store.GetBySourceRef(ctx, sourceRef)
			return existing, false, err
		}
		return nil, false, err
	}

	slog.Info("item enqueued", "id", item.ID, "source", sourceRef)
	q.sched.Request()
	return item, true, nil
}

// Pause stops ingestion until Resume. A drive in progress stops before its
// next item.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.store.SetState(ctx, store.StateKeyUserPaused, "true"); err != nil {
		return err
	}
	q.sched.Cancel()
	slog.Info("ingestion paused")
	return nil
}

// Resume re-enables ingestion and requests a drive.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.store.SetState(ctx, store.StateKeyUserPaused, "false"); err != nil {
		return err
	}
	q.sched.Request()
	slog.Info("ingestion resumed")
	return nil
}

// Paused reports whether the user has paused ingestion.
func (q *Queue) Paused(ctx context.Context) (bool, error) {
	val, err := q.store.GetState(ctx, store.StateKeyUserPaused)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "true", nil
}

// CancelQueued marks every queued item cancelled. Cancelled items keep their
// records but are skipped by future drives.
func (q *Queue) CancelQueued(ctx context.Context) (int, error) {
	items, err := q.store.ListByStatus(ctx, store.StatusQueued)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		item.Status = store.StatusCancelled
		if err := q.store.Put(ctx, item); err != nil {
			return 0, err
		}
	}
	slog.Info("queued items cancelled", "count", len(items))
	return len(items), nil
}

// Requeue resets an item for a full re-index: derived artifacts are cleared
// and the item joins the back of the queue.
func (q *Queue) Requeue(ctx context.Context, id int64) error {
	item, err := q.store.Get(ctx, id)
	if err != nil {
		return err
	}
	resetItem(item)
	if err := q.store.Put(ctx, item); err != nil {
		return err
	}
	slog.Info("item requeued", "id", id)
	q.sched.Request()
	return nil
}

// ReindexAll requeues every non-queued item.
func (q *Queue) ReindexAll(ctx context.Context) (int, error) {
	items, err := q.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range items {
		if item.Status == store.StatusQueued {
			continue
		}
		resetItem(item)
		if err := q.store.Put(ctx, item); err != nil {
			return count, err
		}
		count++
	}
	slog.Info("reindex requested", "count", count)
	q.sched.Request()
	return count, nil
}

// LastRun returns the time of the last drive, if any.
func (q *Queue) LastRun(ctx context.Context) (time.Time, bool) {
	val, err := q.store.GetState(ctx, store.StateKeyLastIndexingRun)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// resetItem clears everything the pipeline derives so all stages run again.
func resetItem(item *store.Item) {
	item.Status = store.StatusQueued
	item.LastStage = store.StageNone
	item.Thumbnail = nil
	item.OCRText = ""
	item.Labels = nil
	item.Colors = nil
	item.Description = nil
	item.TextEmbedding = nil
	item.CaptionEmbedding = nil
	item.ImportedAt = time.Now()
}

// recordLastRun stamps the last-run state key; failures are only logged.
func (q *Queue) recordLastRun(ctx context.Context) {
	if err := q.store.SetState(ctx, store.StateKeyLastIndexingRun, time.Now().Format(time.RFC3339)); err != nil {
		slog.Warn("failed to record last run", "error", err)
	}
}
