package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-dev/lumeo/internal/caption"
	"github.com/lumeo-dev/lumeo/internal/config"
	"github.com/lumeo-dev/lumeo/internal/store"
)

// fixedEmbedder returns preset unit vectors per query text, so semantic
// similarities in tests are exact.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (f *fixedEmbedder) Dimensions() int                  { return 4 }
func (f *fixedEmbedder) ModelName() string                { return "fixed" }
func (f *fixedEmbedder) Available(_ context.Context) bool { return true }
func (f *fixedEmbedder) Close() error                     { return nil }

type rankerFixture struct {
	store  *store.SQLiteItemStore
	ranker *Ranker
}

func newRankerFixture(t *testing.T, queryVectors map[string][]float32) *rankerFixture {
	t.Helper()
	st, err := store.Open("", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gate := caption.NewGate(nil, &fixedEmbedder{vectors: queryVectors}, time.Second)
	return &rankerFixture{
		store:  st,
		ranker: NewRanker(st, gate, config.Default().Search),
	}
}

func (f *rankerFixture) putIndexed(t *testing.T, item *store.Item) *store.Item {
	t.Helper()
	item.Status = store.StatusIndexed
	item.LastStage = store.StageDone
	if item.ImportedAt.IsZero() {
		item.ImportedAt = item.CreatedAt
	}
	require.NoError(t, f.store.Put(context.Background(), item))
	return item
}

func TestSearchKeywordMatchOnOCRText(t *testing.T) {
	f := newRankerFixture(t, nil)

	hit := f.putIndexed(t, &store.Item{
		SourceRef: "/invoice.jpg",
		CreatedAt: time.Now(),
		OCRText:   "Invoice TOTAL due Friday",
	})
	f.putIndexed(t, &store.Item{
		SourceRef: "/cat.jpg",
		CreatedAt: time.Now(),
		OCRText:   "a note about cats",
	})

	results, err := f.ranker.Search(context.Background(), "total", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Item.ID)
	assert.True(t, results[0].KeywordMatch)
	assert.True(t, results[0].OCRKeywordMatch)
	assert.False(t, results[0].DescriptionKeywordMatch)
	assert.Equal(t, 1, results[0].Signals)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9, "single keyword signal scores keyword weight alone")
}

func TestSearchLabelFilterRestrictsResults(t *testing.T) {
	f := newRankerFixture(t, nil)

	confident := f.putIndexed(t, &store.Item{
		SourceRef: "/fruit.jpg",
		CreatedAt: time.Now(),
		Labels:    []store.Label{{Text: "Fruit", Confidence: 0.92}, {Text: "Food", Confidence: 0.80}},
	})
	f.putIndexed(t, &store.Item{
		SourceRef: "/maybe-fruit.jpg",
		CreatedAt: time.Now(),
		Labels:    []store.Label{{Text: "Fruit", Confidence: 0.40}},
	})
	f.putIndexed(t, &store.Item{
		SourceRef: "/car.jpg",
		CreatedAt: time.Now(),
		Labels:    []store.Label{{Text: "Vehicle", Confidence: 0.95}},
	})

	results, err := f.ranker.Search(context.Background(), "", Options{Labels: []string{"Fruit"}})
	require.NoError(t, err)
	require.Len(t, results, 1, "low-confidence and unrelated labels must not pass the filter")
	assert.Equal(t, confident.ID, results[0].Item.ID)
}

func TestSearchSemanticTopResultAndSubThresholdExclusion(t *testing.T) {
	query := "beach sunset"
	f := newRankerFixture(t, map[string][]float32{
		query: {1, 0, 0, 0},
	})

	near := f.putIndexed(t, &store.Item{
		SourceRef:     "/beach.jpg",
		CreatedAt:     time.Now(),
		TextEmbedding: []float32{1, 0, 0, 0},
	})
	// Orthogonal embedding: similarity 0, far below the 0.80 threshold.
	f.putIndexed(t, &store.Item{
		SourceRef:     "/spreadsheet.jpg",
		CreatedAt:     time.Now(),
		TextEmbedding: []float32{0, 1, 0, 0},
	})

	results, err := f.ranker.Search(context.Background(), query, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1, "sub-threshold semantic candidates are excluded entirely")
	assert.Equal(t, near.ID, results[0].Item.ID)
	assert.True(t, results[0].SemanticPass)
	assert.False(t, results[0].KeywordMatch)
	assert.InDelta(t, 1.0, results[0].SemanticScore, 1e-5)
	assert.InDelta(t, 1.0, results[0].OCRSemanticScore, 1e-5)
	assert.Zero(t, results[0].DescriptionSemanticScore, "no caption embedding on the item")
	assert.InDelta(t, 1.0, results[0].Score, 1e-5, "single semantic signal scores similarity alone")
}

func TestSearchCoverageBoostRewardsCorroboration(t *testing.T) {
	query := "apple"
	f := newRankerFixture(t, map[string][]float32{
		query: {0, 0, 1, 0},
	})

	all := f.putIndexed(t, &store.Item{
		SourceRef:     "/apple.jpg",
		CreatedAt:     time.Now(),
		OCRText:       "apple pie recipe",
		Labels:        []store.Label{{Text: "Apple", Confidence: 0.9}},
		TextEmbedding: []float32{0, 0, 1, 0},
	})
	keywordOnly := f.putIndexed(t, &store.Item{
		SourceRef: "/apple-note.jpg",
		CreatedAt: time.Now(),
		OCRText:   "buy apples",
	})

	results, err := f.ranker.Search(context.Background(), query, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, all.ID, results[0].Item.ID)
	assert.Equal(t, 3, results[0].Signals)
	// full boost 3.0 + keyword 0.8 + semantic 1.0 + tag 0.6*0.9
	assert.InDelta(t, 3.0+0.8+1.0+0.54, results[0].Score, 1e-5)

	assert.Equal(t, keywordOnly.ID, results[1].Item.ID)
	assert.Equal(t, 1, results[1].Signals)
}

func TestSearchPairBoostForTwoSignals(t *testing.T) {
	query := "receipt"
	f := newRankerFixture(t, map[string][]float32{
		query: {0, 1, 0, 0},
	})

	f.putIndexed(t, &store.Item{
		SourceRef:     "/receipt.jpg",
		CreatedAt:     time.Now(),
		OCRText:       "grocery receipt",
		TextEmbedding: []float32{0, 1, 0, 0},
	})

	results, err := f.ranker.Search(context.Background(), query, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Signals)
	assert.InDelta(t, 1.5+0.8+1.0, results[0].Score, 1e-5)
}

func TestSearchBlankQueryBrowsesAllIndexed(t *testing.T) {
	f := newRankerFixture(t, nil)

	old := f.putIndexed(t, &store.Item{SourceRef: "/old.jpg", CreatedAt: time.Now().Add(-time.Hour)})
	recent := f.putIndexed(t, &store.Item{SourceRef: "/recent.jpg", CreatedAt: time.Now()})

	// Queued items are not yet visible in results.
	queued := &store.Item{
		SourceRef:  "/pending.jpg",
		CreatedAt:  time.Now(),
		ImportedAt: time.Now(),
		Status:     store.StatusQueued,
	}
	require.NoError(t, f.store.Put(context.Background(), queued))

	results, err := f.ranker.Search(context.Background(), "  ", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, recent.ID, results[0].Item.ID)
	assert.Equal(t, old.ID, results[1].Item.ID)
	for _, res := range results {
		assert.Zero(t, res.Score)
		assert.Zero(t, res.Signals)
	}
}

func TestSearchExcludesNonIndexedCandidates(t *testing.T) {
	f := newRankerFixture(t, nil)

	queued := &store.Item{
		SourceRef:  "/partial.jpg",
		CreatedAt:  time.Now(),
		ImportedAt: time.Now(),
		Status:     store.StatusQueued,
		OCRText:    "contains total keyword",
	}
	require.NoError(t, f.store.Put(context.Background(), queued))

	results, err := f.ranker.Search(context.Background(), "total", Options{})
	require.NoError(t, err)
	assert.Empty(t, results, "partially indexed items never appear in results")
}

func TestSearchMissingQueryEmbeddingDegradesToKeyword(t *testing.T) {
	// Embedder knows no vectors, so every embed fails and the semantic
	// signal is absent rather than an error.
	f := newRankerFixture(t, map[string][]float32{})

	hit := f.putIndexed(t, &store.Item{
		SourceRef:     "/doc.jpg",
		CreatedAt:     time.Now(),
		OCRText:       "quarterly report",
		TextEmbedding: []float32{1, 0, 0, 0},
	})

	results, err := f.ranker.Search(context.Background(), "report", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Item.ID)
	assert.False(t, results[0].SemanticPass)
	assert.True(t, results[0].KeywordMatch)
}

func TestSearchOrderingIsDeterministic(t *testing.T) {
	f := newRankerFixture(t, nil)

	base := time.Now().Truncate(time.Millisecond)
	older := f.putIndexed(t, &store.Item{
		SourceRef: "/older.jpg",
		CreatedAt: base.Add(-time.Minute),
		OCRText:   "picnic lunch",
	})
	newer := f.putIndexed(t, &store.Item{
		SourceRef: "/newer.jpg",
		CreatedAt: base,
		OCRText:   "picnic dinner",
	})

	for i := 0; i < 5; i++ {
		results, err := f.ranker.Search(context.Background(), "picnic", Options{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, newer.ID, results[0].Item.ID, "equal scores tie-break on created_at descending")
		assert.Equal(t, older.ID, results[1].Item.ID)
	}
}

func TestAvailableLabelsListsConfidentDistinctSorted(t *testing.T) {
	f := newRankerFixture(t, nil)

	// Newest first in listing order, so "Fruit" is the casing that sticks.
	f.putIndexed(t, &store.Item{
		SourceRef: "/fruit.jpg",
		CreatedAt: time.Now(),
		Labels:    []store.Label{{Text: "Fruit", Confidence: 0.92}, {Text: "Blurry", Confidence: 0.30}},
	})
	f.putIndexed(t, &store.Item{
		SourceRef: "/market.jpg",
		CreatedAt: time.Now().Add(-time.Hour),
		Labels:    []store.Label{{Text: "fruit", Confidence: 0.85}, {Text: "Building", Confidence: 0.88}},
	})

	queued := &store.Item{
		SourceRef:  "/pending.jpg",
		CreatedAt:  time.Now(),
		ImportedAt: time.Now(),
		Status:     store.StatusQueued,
		Labels:     []store.Label{{Text: "Dog", Confidence: 0.99}},
	}
	require.NoError(t, f.store.Put(context.Background(), queued))

	labels, err := f.ranker.AvailableLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Building", "Fruit"}, labels,
		"case-insensitive dedupe, confidence cutoff, indexed items only")
}

func TestSearchMetadataFilterDropsBeforeScoring(t *testing.T) {
	f := newRankerFixture(t, nil)

	png := "image/png"
	jpg := "image/jpeg"
	f.putIndexed(t, &store.Item{
		SourceRef: "/a.png",
		CreatedAt: time.Now(),
		OCRText:   "shared term",
		Meta:      store.Metadata{MimeType: &png},
	})
	match := f.putIndexed(t, &store.Item{
		SourceRef: "/b.jpg",
		CreatedAt: time.Now(),
		OCRText:   "shared term",
		Meta:      store.Metadata{MimeType: &jpg},
	})

	results, err := f.ranker.Search(context.Background(), "shared", Options{
		Filters: &MetadataFilters{MimeTypeContains: "jpeg"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.ID, results[0].Item.ID)
}
