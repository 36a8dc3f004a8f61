package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/lumeo-dev/lumeo/internal/caption"
	"github.com/lumeo-dev/lumeo/internal/config"
	"github.com/lumeo-dev/lumeo/internal/store"
)

// Ranker runs hybrid search: substring keyword scans, ANN similarity over
// both embedding fields, and confident-label tag matching, fused into one
// score per item.
type Ranker struct {
	store store.ItemStore
	gate  *caption.Gate
	cfg   config.SearchConfig
}

// NewRanker creates a ranker using the gate for query embeddings.
func NewRanker(st store.ItemStore, gate *caption.Gate, cfg config.SearchConfig) *Ranker {
	return &Ranker{store: st, gate: gate, cfg: cfg}
}

// candidate accumulates per-signal evidence for one item during a query.
type candidate struct {
	item        *store.Item
	ocrKeyword  bool
	descKeyword bool
	textSim     float64
	textSeen    bool
	captionSim  float64
	captionSeen bool
}

// Search returns ranked results for the query. A blank query is the
// browse-all case: every indexed item, newest first, zero scores. Results
// are ordered by score, then created_at, then ID, all descending, so
// identical inputs always rank identically.
func (r *Ranker) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.browseAll(ctx, opts)
	}

	candidates := make(map[int64]*candidate)
	add := func(item *store.Item) *candidate {
		if c, ok := candidates[item.ID]; ok {
			return c
		}
		c := &candidate{item: item}
		candidates[item.ID] = c
		return c
	}

	// Keyword scans over OCR text and descriptions.
	ocrHits, err := r.store.ScanOCRContains(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, item := range ocrHits {
		add(item).ocrKeyword = true
	}

	descHits, err := r.store.ScanDescriptionContains(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, item := range descHits {
		add(item).descKeyword = true
	}

	// Semantic candidates. A missing embedder only removes this signal.
	if vec, ok := r.gate.EmbedText(ctx, query); ok {
		if err := r.collectNearest(ctx, store.FieldTextEmbedding, vec, candidates, add); err != nil {
			return nil, err
		}
		if err := r.collectNearest(ctx, store.FieldCaptionEmbedding, vec, candidates, add); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("query embedding unavailable, semantic signal absent")
	}

	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		if c.item.Status != store.StatusIndexed {
			continue
		}
		if !r.passesFilters(c.item, opts) {
			continue
		}
		if res := r.score(c, query); res != nil {
			results = append(results, res)
		}
	}

	sortResults(results)
	return results, nil
}

// browseAll returns all indexed items newest first with zero scores.
func (r *Ranker) browseAll(ctx context.Context, opts Options) ([]*Result, error) {
	items, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(items))
	for _, item := range items {
		if item.Status != store.StatusIndexed {
			continue
		}
		if !r.passesFilters(item, opts) {
			continue
		}
		results = append(results, &Result{Item: item})
	}
	return results, nil
}

// AvailableLabels lists the distinct confident labels across indexed items,
// sorted alphabetically. Drives label-filter pickers.
func (r *Ranker) AvailableLabels(ctx context.Context) ([]string, error) {
	items, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	for _, item := range items {
		if item.Status != store.StatusIndexed {
			continue
		}
		for _, label := range item.Labels {
			if label.Confidence < r.cfg.LabelConfidence {
				continue
			}
			key := strings.ToLower(label.Text)
			if _, ok := seen[key]; !ok {
				seen[key] = label.Text
			}
		}
	}

	labels := make([]string, 0, len(seen))
	for _, text := range seen {
		labels = append(labels, text)
	}
	sort.Strings(labels)
	return labels, nil
}

// collectNearest merges one ANN query into the candidate set.
func (r *Ranker) collectNearest(
	ctx context.Context,
	field store.VectorField,
	vec []float32,
	candidates map[int64]*candidate,
	add func(*store.Item) *candidate,
) error {
	matches, err := r.store.Nearest(ctx, field, vec, r.cfg.ANNLimit)
	if err != nil {
		return err
	}
	for _, m := range matches {
		sim := clamp01(1 - float64(m.Distance))

		c, ok := candidates[m.ID]
		if !ok {
			item, err := r.store.Get(ctx, m.ID)
			if err == store.ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			c = add(item)
		}

		switch field {
		case store.FieldTextEmbedding:
			c.textSim = sim
			c.textSeen = true
		case store.FieldCaptionEmbedding:
			c.captionSim = sim
			c.captionSeen = true
		}
	}
	return nil
}

// passesFilters applies the label and metadata filters.
func (r *Ranker) passesFilters(item *store.Item, opts Options) bool {
	for _, want := range opts.Labels {
		if !hasConfidentLabel(item, want, r.cfg.LabelConfidence) {
			return false
		}
	}
	if opts.Filters != nil && !opts.Filters.Matches(item) {
		return false
	}
	return true
}

// score fuses the candidate's signals. Returns nil when no signal matched;
// near-misses below the semantic threshold do not qualify on their own.
func (r *Ranker) score(c *candidate, query string) *Result {
	res := &Result{
		Item:                    c.item,
		OCRKeywordMatch:         c.ocrKeyword,
		DescriptionKeywordMatch: c.descKeyword,
		KeywordMatch:            c.ocrKeyword || c.descKeyword,
	}

	var passed []float64
	if c.textSeen {
		res.OCRSemanticScore = c.textSim
		if c.textSim >= r.cfg.SemanticThreshold {
			passed = append(passed, c.textSim)
		}
	}
	if c.captionSeen {
		res.DescriptionSemanticScore = c.captionSim
		if c.captionSim >= r.cfg.SemanticThreshold {
			passed = append(passed, c.captionSim)
		}
	}
	if len(passed) > 0 {
		res.SemanticPass = true
		var sum float64
		for _, s := range passed {
			sum += s
		}
		res.SemanticScore = sum / float64(len(passed))
	}

	lowered := strings.ToLower(query)
	for _, label := range c.item.Labels {
		if label.Confidence >= r.cfg.LabelConfidence &&
			strings.Contains(strings.ToLower(label.Text), lowered) {
			res.TagMatch = true
			if label.Confidence > res.TagScore {
				res.TagScore = label.Confidence
			}
		}
	}

	for _, hit := range []bool{res.KeywordMatch, res.SemanticPass, res.TagMatch} {
		if hit {
			res.Signals++
		}
	}
	if res.Signals == 0 {
		return nil
	}

	var boost float64
	switch res.Signals {
	case 3:
		boost = r.cfg.FullBoost
	case 2:
		boost = r.cfg.PairBoost
	}

	var keywordScore float64
	if res.KeywordMatch {
		keywordScore = 1.0
	}
	res.Score = boost +
		r.cfg.KeywordWeight*keywordScore +
		r.cfg.SemanticWeight*res.SemanticScore +
		r.cfg.TagWeight*res.TagScore
	return res
}

// hasConfidentLabel reports whether the item carries the named label at or
// above the confidence threshold.
func hasConfidentLabel(item *store.Item, name string, minConfidence float64) bool {
	for _, label := range item.Labels {
		if label.Confidence >= minConfidence && strings.EqualFold(label.Text, name) {
			return true
		}
	}
	return false
}

// sortResults orders by score, created_at, then ID, all descending.
func sortResults(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Item.CreatedAt.Equal(results[j].Item.CreatedAt) {
			return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
		}
		return results[i].Item.ID > results[j].Item.ID
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
