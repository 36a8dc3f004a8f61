package search

import (
	"strings"
	"time"

	"github.com/lumeo-dev/lumeo/internal/store"
)

// MetadataFilters is a conjunctive predicate over item metadata. String
// fields match by case-insensitive substring; nil range bounds are open. A
// bounded range rejects items whose corresponding field is unknown.
type MetadataFilters struct {
	NameContains     string
	MimeTypeContains string
	AlbumContains    string
	MinSizeBytes     *int64
	MaxSizeBytes     *int64
	MinWidth         *int
	MaxWidth         *int
	MinHeight        *int
	MaxHeight        *int
	Orientation      *int
	MinDurationMs    *int64
	MaxDurationMs    *int64
	DateTakenFrom    *time.Time
	DateTakenTo      *time.Time
	DateModifiedFrom *time.Time
	DateModifiedTo   *time.Time
}

// Matches reports whether the item satisfies every active filter.
func (f *MetadataFilters) Matches(item *store.Item) bool {
	m := item.Meta

	if !containsFold(m.DisplayName, f.NameContains) {
		return false
	}
	if !containsFold(m.MimeType, f.MimeTypeContains) {
		return false
	}
	if !containsFold(m.Album, f.AlbumContains) {
		return false
	}

	if !int64InRange(m.SizeBytes, f.MinSizeBytes, f.MaxSizeBytes) {
		return false
	}
	if f.MinWidth != nil && m.Width < *f.MinWidth {
		return false
	}
	if f.MaxWidth != nil && m.Width > *f.MaxWidth {
		return false
	}
	if f.MinHeight != nil && m.Height < *f.MinHeight {
		return false
	}
	if f.MaxHeight != nil && m.Height > *f.MaxHeight {
		return false
	}
	if f.Orientation != nil && (m.Orientation == nil || *m.Orientation != *f.Orientation) {
		return false
	}
	if !int64InRange(m.DurationMs, f.MinDurationMs, f.MaxDurationMs) {
		return false
	}
	if !timeInRange(m.DateTaken, f.DateTakenFrom, f.DateTakenTo) {
		return false
	}
	if !timeInRange(m.DateModified, f.DateModifiedFrom, f.DateModifiedTo) {
		return false
	}
	return true
}

func containsFold(value *string, substr string) bool {
	if strings.TrimSpace(substr) == "" {
		return true
	}
	if value == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*value), strings.ToLower(substr))
}

func int64InRange(value, min, max *int64) bool {
	if min != nil && (value == nil || *value < *min) {
		return false
	}
	if max != nil && (value == nil || *value > *max) {
		return false
	}
	return true
}

func timeInRange(value, from, to *time.Time) bool {
	if from != nil && (value == nil || value.Before(*from)) {
		return false
	}
	if to != nil && (value == nil || value.After(*to)) {
		return false
	}
	return true
}
