package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteItemStore implements ItemStore on SQLite with WAL mode. Embeddings
// are stored as BLOB columns and mirrored into an in-memory VectorIndex,
// rebuilt from the table on open.
type SQLiteItemStore struct {
	db      *sql.DB
	path    string
	vectors *VectorIndex
	lock    *flock.Flock
}

// Verify interface implementation at compile time
var _ ItemStore = (*SQLiteItemStore)(nil)

// Open opens (or creates) the item store at path. An empty path creates an
// in-memory store for testing. dims is the embedding dimension both vector
// fields are indexed at.
//
// A file lock next to the database enforces the single-writer-per-item
// discipline across processes: a second process opening the same store
// fails fast instead of racing pipeline writes.
func Open(path string, dims int) (*SQLiteItemStore, error) {
	var dsn string
	var lock *flock.Flock

	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		lock = flock.New(path + ".lock")
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("store at %s is held by another process", path)
		}

		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite (DSN params
	// may be ignored by the driver).
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteItemStore{
		db:      db,
		path:    path,
		vectors: NewVectorIndex(dims),
		lock:    lock,
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.rebuildVectors(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to rebuild vector index: %w", err)
	}

	return s, nil
}

// initSchema creates the items and state tables.
func (s *SQLiteItemStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS items (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		source_ref        TEXT NOT NULL UNIQUE,
		created_at        INTEGER NOT NULL,
		imported_at       INTEGER NOT NULL,
		status            TEXT NOT NULL,
		last_stage        INTEGER NOT NULL,
		thumbnail         BLOB,
		ocr_text          TEXT NOT NULL DEFAULT '',
		labels            TEXT NOT NULL DEFAULT '[]',
		dominant_colors   TEXT NOT NULL DEFAULT '[]',
		description       TEXT,
		text_embedding    BLOB,
		caption_embedding BLOB,
		display_name      TEXT,
		mime_type         TEXT,
		size_bytes        INTEGER,
		width             INTEGER NOT NULL DEFAULT 0,
		height            INTEGER NOT NULL DEFAULT 0,
		orientation       INTEGER,
		date_taken        INTEGER,
		date_modified     INTEGER,
		album             TEXT,
		duration_ms       INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);

	CREATE TABLE IF NOT EXISTS app_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// rebuildVectors loads every persisted embedding into the HNSW graphs.
func (s *SQLiteItemStore) rebuildVectors() error {
	rows, err := s.db.Query(`SELECT id, text_embedding, caption_embedding FROM items
	                         WHERE text_embedding IS NOT NULL OR caption_embedding IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var id int64
		var textBlob, captionBlob []byte
		if err := rows.Scan(&id, &textBlob, &captionBlob); err != nil {
			return err
		}
		if vec := decodeVector(textBlob); vec != nil {
			if err := s.vectors.Upsert(FieldTextEmbedding, id, vec); err != nil {
				return err
			}
			loaded++
		}
		if vec := decodeVector(captionBlob); vec != nil {
			if err := s.vectors.Upsert(FieldCaptionEmbedding, id, vec); err != nil {
				return err
			}
			loaded++
		}
	}
	if loaded > 0 {
		slog.Debug("vector index rebuilt", slog.Int("vectors", loaded))
	}
	return rows.Err()
}

const itemColumns = `id, source_ref, created_at, imported_at, status, last_stage,
	thumbnail, ocr_text, labels, dominant_colors, description,
	text_embedding, caption_embedding, display_name, mime_type, size_bytes,
	width, height, orientation, date_taken, date_modified, album, duration_ms`

// Put inserts or updates an item and keeps the vector graphs in sync.
func (s *SQLiteItemStore) Put(ctx context.Context, item *Item) error {
	if item.Status == StatusIndexed && item.LastStage != StageDone {
		// Invariant violation is programmer error and propagates as fatal.
		return fmt.Errorf("store: item %d marked indexed at stage %s", item.ID, item.LastStage)
	}

	labels, err := json.Marshal(labelsOrEmpty(item.Labels))
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	colors, err := json.Marshal(colorsOrEmpty(item.Colors))
	if err != nil {
		return fmt.Errorf("encode colors: %w", err)
	}

	if item.ID == 0 {
		if _, err := s.GetBySourceRef(ctx, item.SourceRef); err == nil {
			return ErrDuplicateSourceRef
		}
		res, err := s.db.ExecContext(ctx, `INSERT INTO items
			(source_ref, created_at, imported_at, status, last_stage, thumbnail,
			 ocr_text, labels, dominant_colors, description, text_embedding,
			 caption_embedding, display_name, mime_type, size_bytes, width, height,
			 orientation, date_taken, date_modified, album, duration_ms)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			item.SourceRef, item.CreatedAt.UnixMilli(), item.ImportedAt.UnixMilli(),
			string(item.Status), int(item.LastStage), item.Thumbnail,
			item.OCRText, string(labels), string(colors), item.Description,
			encodeVector(item.TextEmbedding), encodeVector(item.CaptionEmbedding),
			item.Meta.DisplayName, item.Meta.MimeType, item.Meta.SizeBytes,
			item.Meta.Width, item.Meta.Height, item.Meta.Orientation,
			millisPtr(item.Meta.DateTaken), millisPtr(item.Meta.DateModified),
			item.Meta.Album, item.Meta.DurationMs)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted id: %w", err)
		}
		item.ID = id
	} else {
		_, err := s.db.ExecContext(ctx, `UPDATE items SET
			source_ref=?, created_at=?, imported_at=?, status=?, last_stage=?,
			thumbnail=?, ocr_text=?, labels=?, dominant_colors=?, description=?,
			text_embedding=?, caption_embedding=?, display_name=?, mime_type=?,
			size_bytes=?, width=?, height=?, orientation=?, date_taken=?,
			date_modified=?, album=?, duration_ms=? WHERE id=?`,
			item.SourceRef, item.CreatedAt.UnixMilli(), item.ImportedAt.UnixMilli(),
			string(item.Status), int(item.LastStage), item.Thumbnail,
			item.OCRText, string(labels), string(colors), item.Description,
			encodeVector(item.TextEmbedding), encodeVector(item.CaptionEmbedding),
			item.Meta.DisplayName, item.Meta.MimeType, item.Meta.SizeBytes,
			item.Meta.Width, item.Meta.Height, item.Meta.Orientation,
			millisPtr(item.Meta.DateTaken), millisPtr(item.Meta.DateModified),
			item.Meta.Album, item.Meta.DurationMs, item.ID)
		if err != nil {
			return fmt.Errorf("update item %d: %w", item.ID, err)
		}
	}

	if err := s.vectors.Upsert(FieldTextEmbedding, item.ID, item.TextEmbedding); err != nil {
		return err
	}
	return s.vectors.Upsert(FieldCaptionEmbedding, item.ID, item.CaptionEmbedding)
}

// Get returns the item with the given id, or ErrNotFound.
func (s *SQLiteItemStore) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id)
	return scanItem(row)
}

// GetBySourceRef returns the item with the given source ref, or ErrNotFound.
func (s *SQLiteItemStore) GetBySourceRef(ctx context.Context, ref string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE source_ref=?`, ref)
	return scanItem(row)
}

// ListByStatus returns items with the given status in FIFO enqueue order.
func (s *SQLiteItemStore) ListByStatus(ctx context.Context, status Status) ([]*Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE status=? ORDER BY imported_at ASC, id ASC`,
		string(status))
}

// ListAll returns every item, newest created first.
func (s *SQLiteItemStore) ListAll(ctx context.Context) ([]*Item, error) {
	return s.queryItems(ctx,
		`SELECT ` + itemColumns + ` FROM items ORDER BY created_at DESC, id DESC`)
}

// ScanOCRContains returns items whose OCR text contains substr, ignoring case.
func (s *SQLiteItemStore) ScanOCRContains(ctx context.Context, substr string) ([]*Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE instr(lower(ocr_text), lower(?)) > 0
		 ORDER BY created_at DESC, id DESC`, substr)
}

// ScanDescriptionContains returns items whose caption contains substr,
// ignoring case. Items without a caption never match.
func (s *SQLiteItemStore) ScanDescriptionContains(ctx context.Context, substr string) ([]*Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE description IS NOT NULL AND instr(lower(description), lower(?)) > 0
		 ORDER BY created_at DESC, id DESC`, substr)
}

// Nearest delegates to the in-memory vector index.
func (s *SQLiteItemStore) Nearest(ctx context.Context, field VectorField, query []float32, k int) ([]*VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vectors.Search(field, query, k)
}

// Counts returns per-status item counts.
func (s *SQLiteItemStore) Counts(ctx context.Context) (Counts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		switch Status(status) {
		case StatusQueued:
			c.Queued = n
		case StatusIndexed:
			c.Indexed = n
		case StatusFailed:
			c.Failed = n
		case StatusCancelled:
			c.Cancelled = n
		}
	}
	return c, rows.Err()
}

// GetState reads a state value, returning ErrNotFound for missing keys.
func (s *SQLiteItemStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetState writes a state value.
func (s *SQLiteItemStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// Close releases the database and the cross-process lock.
func (s *SQLiteItemStore) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

func (s *SQLiteItemStore) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*Item, 0)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row *sql.Row) (*Item, error) {
	item, err := scanItemRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return item, err
}

func scanItemRow(row rowScanner) (*Item, error) {
	var (
		item                   Item
		status                 string
		lastStage              int
		createdAt, importedAt  int64
		labelsJSON, colorsJSON string
		textBlob, captionBlob  []byte
		dateTaken, dateMod     *int64
	)
	err := row.Scan(&item.ID, &item.SourceRef, &createdAt, &importedAt,
		&status, &lastStage, &item.Thumbnail, &item.OCRText,
		&labelsJSON, &colorsJSON, &item.Description,
		&textBlob, &captionBlob,
		&item.Meta.DisplayName, &item.Meta.MimeType, &item.Meta.SizeBytes,
		&item.Meta.Width, &item.Meta.Height, &item.Meta.Orientation,
		&dateTaken, &dateMod, &item.Meta.Album, &item.Meta.DurationMs)
	if err != nil {
		return nil, err
	}

	item.CreatedAt = time.UnixMilli(createdAt)
	item.ImportedAt = time.UnixMilli(importedAt)
	item.Status = Status(status)
	item.LastStage = Stage(lastStage)
	item.TextEmbedding = decodeVector(textBlob)
	item.CaptionEmbedding = decodeVector(captionBlob)
	item.Meta.DateTaken = timePtr(dateTaken)
	item.Meta.DateModified = timePtr(dateMod)

	if err := json.Unmarshal([]byte(labelsJSON), &item.Labels); err != nil {
		return nil, fmt.Errorf("decode labels for item %d: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(colorsJSON), &item.Colors); err != nil {
		return nil, fmt.Errorf("decode colors for item %d: %w", item.ID, err)
	}
	return &item, nil
}

// encodeVector packs float32s little-endian. Nil vectors stay NULL.
func encodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

func labelsOrEmpty(labels []Label) []Label {
	if labels == nil {
		return []Label{}
	}
	return labels
}

func colorsOrEmpty(colors []int) []int {
	if colors == nil {
		return []int{}
	}
	return colors
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
