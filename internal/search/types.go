// Package search fuses keyword, semantic, and tag signals into one
// deterministic ranked result list.
package search

import (
	"github.com/lumeo-dev/lumeo/internal/store"
)

// Result is one ranked hit. Per-signal fields record how the item matched;
// Score is the fused ranking score.
type Result struct {
	Item *store.Item

	// OCRKeywordMatch is true when the OCR text contains the query.
	OCRKeywordMatch bool
	// DescriptionKeywordMatch is true when the description contains the query.
	DescriptionKeywordMatch bool
	// KeywordMatch is true when either keyword field matched.
	KeywordMatch bool
	// OCRSemanticScore is the similarity of the text embedding to the query,
	// zero when the item was not an ANN candidate on that field.
	OCRSemanticScore float64
	// DescriptionSemanticScore is the caption-embedding similarity.
	DescriptionSemanticScore float64
	// SemanticPass is true when at least one embedding field met the
	// similarity threshold.
	SemanticPass bool
	// SemanticScore is the average similarity over the fields that passed.
	SemanticScore float64
	// TagMatch is true when a confident label textually contains the query.
	TagMatch bool
	// TagScore is the best matching label confidence.
	TagScore float64

	// Signals counts how many distinct signal types matched.
	Signals int
	// Score is the final fused score.
	Score float64
}

// Options restricts a search before scoring. Zero value means no filtering.
type Options struct {
	// Labels requires each named label to be present on the item at or above
	// the display-confidence threshold.
	Labels []string
	// Filters is an optional metadata predicate.
	Filters *MetadataFilters
}
