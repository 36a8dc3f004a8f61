// Package store provides durable storage for indexed items: SQLite for
// records and state, plus in-memory HNSW indexes over the two embedding
// fields. This is the persistence layer for everything above it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the indexing lifecycle state of an item.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusIndexed   Status = "indexed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage identifies a step of the extraction pipeline. The ordering is the
// resumability contract: a stage is skipped when an item's LastStage is
// already at or past it.
type Stage int

const (
	StageNone Stage = iota
	StageThumbnail
	StageMetadata
	StageColors
	StageOCR
	StageLabels
	StageDescription
	StageEmbeddings
	StageDone
)

var stageNames = map[Stage]string{
	StageNone:        "none",
	StageThumbnail:   "thumbnail",
	StageMetadata:    "metadata",
	StageColors:      "colors",
	StageOCR:         "ocr",
	StageLabels:      "labels",
	StageDescription: "description",
	StageEmbeddings:  "embeddings",
	StageDone:        "done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Label is a visual tag with a model confidence in [0,1].
type Label struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Metadata holds the optional descriptive fields collected from the source
// file. Absent values stay nil; zero is never used as an "unknown" sentinel.
type Metadata struct {
	DisplayName  *string
	MimeType     *string
	SizeBytes    *int64
	Width        int
	Height       int
	Orientation  *int
	DateTaken    *time.Time
	DateModified *time.Time
	Album        *string
	DurationMs   *int64
}

// Item is one indexed image. IDs are assigned by the store on first insert
// and never reused. SourceRef is an opaque locator, unique per item.
type Item struct {
	ID         int64
	SourceRef  string
	CreatedAt  time.Time
	ImportedAt time.Time
	Status     Status
	LastStage  Stage
	Thumbnail  []byte
	OCRText    string // empty when disabled or not yet run, never null
	Labels     []Label
	Colors     []int // quantized 0xRRGGBB values
	// Description is the generated caption; nil when captioning is disabled,
	// unavailable, or timed out.
	Description      *string
	TextEmbedding    []float32
	CaptionEmbedding []float32
	Meta             Metadata
}

// VectorField names an independently indexed embedding column.
type VectorField string

const (
	FieldTextEmbedding    VectorField = "text_embedding"
	FieldCaptionEmbedding VectorField = "caption_embedding"
)

// VectorMatch is one k-nearest-neighbor hit. Distance is cosine distance
// (0 identical, 2 opposite).
type VectorMatch struct {
	ID       int64
	Distance float32
}

// Counts aggregates items by indexing status.
type Counts struct {
	Queued    int
	Indexed   int
	Failed    int
	Cancelled int
}

// State keys persisted in the store's key-value table.
const (
	// StateKeyUserPaused holds "true" while the user has paused ingestion.
	StateKeyUserPaused = "user_paused"
	// StateKeyLastIndexingRun holds the RFC3339 time of the last drive.
	StateKeyLastIndexingRun = "last_indexing_run"
)

var (
	// ErrNotFound indicates a missing item or state key.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateSourceRef indicates an insert that would violate the
	// one-item-per-source invariant.
	ErrDuplicateSourceRef = errors.New("store: source ref already indexed")
)

// ErrDimensionMismatch indicates an embedding of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ItemStore persists index records. Concurrent readers are permitted;
// same-item concurrent writes are the caller's responsibility (single
// writer per item, enforced by driving ingestion from one worker).
type ItemStore interface {
	// Put inserts the item (assigning ID when zero) or updates it in place.
	// Inserting a duplicate SourceRef returns ErrDuplicateSourceRef.
	Put(ctx context.Context, item *Item) error
	Get(ctx context.Context, id int64) (*Item, error)
	GetBySourceRef(ctx context.Context, ref string) (*Item, error)

	// ListByStatus returns items in FIFO enqueue order (oldest import first).
	ListByStatus(ctx context.Context, status Status) ([]*Item, error)
	// ListAll returns every item ordered by creation time, newest first.
	ListAll(ctx context.Context) ([]*Item, error)

	// ScanOCRContains and ScanDescriptionContains are case-insensitive
	// substring scans over the respective text fields.
	ScanOCRContains(ctx context.Context, substr string) ([]*Item, error)
	ScanDescriptionContains(ctx context.Context, substr string) ([]*Item, error)

	// Nearest returns up to k nearest neighbors over the named vector field.
	Nearest(ctx context.Context, field VectorField, query []float32, k int) ([]*VectorMatch, error)

	Counts(ctx context.Context) (Counts, error)

	// State operations (key-value store for app state).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}
