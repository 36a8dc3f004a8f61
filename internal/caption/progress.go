package caption

import (
	"sync"
	"time"
)

// BackfillStatus represents the overall backfill state.
type BackfillStatus string

const (
	StatusRunning BackfillStatus = "running"
	StatusDone    BackfillStatus = "done"
	StatusStopped BackfillStatus = "stopped"
	StatusError   BackfillStatus = "error"
)

// ProgressSnapshot is an immutable snapshot of backfill progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	InFlight       int     `json:"in_flight"`
	Captioned      int     `json:"captioned"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of caption backfill progress.
type Progress struct {
	mu sync.RWMutex

	status       BackfillStatus
	total        int
	completed    int
	inFlight     int
	captioned    int
	startTime    time.Time
	errorMessage string
}

// NewProgress creates a progress tracker in the running state.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusRunning,
		startTime: time.Now(),
	}
}

// SetTotal records how many items the backfill will visit.
func (p *Progress) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// ItemStarted marks one item as currently being processed.
func (p *Progress) ItemStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight++
}

// ItemDone records one visited item; captioned reports whether a caption was
// actually produced for it.
func (p *Progress) ItemDone(captioned bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.inFlight > 0 {
		p.inFlight--
	}
	if captioned {
		p.captioned++
	}
}

// SetStatus transitions the tracker to a terminal state.
func (p *Progress) SetStatus(status BackfillStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// SetError marks the backfill as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.errorMessage = message
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.total > 0 {
		pct = float64(p.completed) / float64(p.total) * 100.0
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Total:          p.total,
		Completed:      p.completed,
		InFlight:       p.inFlight,
		Captioned:      p.captioned,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
