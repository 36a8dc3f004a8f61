// Package config handles Lumeo configuration loading and persistence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete module configuration. It is read once per pipeline
// run; a toggle change takes effect on the next run and never retroactively
// re-triggers stages already marked complete (re-queue the item for that).
type Config struct {
	Features   FeaturesConfig   `yaml:"features"`
	Search     SearchConfig     `yaml:"search"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Caption    CaptionConfig    `yaml:"caption"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// FeaturesConfig holds the per-stage feature toggles. Disabling a feature
// does not block later stages: the stage still completes with an empty
// result.
type FeaturesConfig struct {
	OCREnabled            bool `yaml:"ocr_enabled"`
	TextEmbeddingsEnabled bool `yaml:"text_embeddings_enabled"`
	LabelingEnabled       bool `yaml:"labeling_enabled"`
	CaptioningEnabled     bool `yaml:"captioning_enabled"`
}

// SearchConfig holds the ranking constants. The weights, boosts, and
// thresholds are product-tuned values carried over as-is; they are exposed
// here for tuning rather than re-derived.
type SearchConfig struct {
	// KeywordWeight scales the keyword-match signal (default: 0.8).
	KeywordWeight float64 `yaml:"keyword_weight"`
	// SemanticWeight scales the averaged semantic similarity (default: 1.0).
	SemanticWeight float64 `yaml:"semantic_weight"`
	// TagWeight scales the best matching label confidence (default: 0.6).
	TagWeight float64 `yaml:"tag_weight"`
	// PairBoost is added when exactly two signal types agree (default: 1.5).
	PairBoost float64 `yaml:"pair_boost"`
	// FullBoost is added when all three signal types agree (default: 3.0).
	FullBoost float64 `yaml:"full_boost"`
	// SemanticThreshold is the minimum similarity for a semantic pass
	// (default: 0.80).
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	// LabelConfidence is the display threshold for labels (default: 0.70).
	LabelConfidence float64 `yaml:"label_confidence"`
	// ANNLimit caps each nearest-neighbor query (default: 50).
	ANNLimit int `yaml:"ann_limit"`
}

// IndexingConfig configures the extraction pipeline.
type IndexingConfig struct {
	// ThumbnailMaxPx clamps the thumbnail's long edge (default: 256).
	ThumbnailMaxPx int `yaml:"thumbnail_max_px"`
	// MaxLabels caps labeling results per image (default: 10).
	MaxLabels int `yaml:"max_labels"`
}

// CaptionConfig configures the caption generator.
type CaptionConfig struct {
	// Timeout bounds one caption generation; exceeding it yields no caption,
	// not an error (default: 8s).
	Timeout time.Duration `yaml:"timeout"`
	// ModelPath points at the caption model asset. Empty or missing means
	// captioning is unavailable and degrades gracefully.
	ModelPath string `yaml:"model_path"`
}

// EmbeddingsConfig configures the text embedder.
type EmbeddingsConfig struct {
	// Dimensions is the embedding vector length (default: 100, fixed by the
	// model; changing it requires a full reindex).
	Dimensions int `yaml:"dimensions"`
	// ModelPath points at an ONNX embedding model. Empty falls back to the
	// static hash embedder.
	ModelPath string `yaml:"model_path"`
	// CacheSize is the query-embedding LRU size (default: 1000).
	CacheSize int `yaml:"cache_size"`
}

// Default returns the configuration with all product defaults applied.
func Default() *Config {
	return &Config{
		Features: FeaturesConfig{
			OCREnabled:            true,
			TextEmbeddingsEnabled: true,
			LabelingEnabled:       true,
			CaptioningEnabled:     false,
		},
		Search: SearchConfig{
			KeywordWeight:     0.8,
			SemanticWeight:    1.0,
			TagWeight:         0.6,
			PairBoost:         1.5,
			FullBoost:         3.0,
			SemanticThreshold: 0.80,
			LabelConfidence:   0.70,
			ANNLimit:          50,
		},
		Indexing: IndexingConfig{
			ThumbnailMaxPx: 256,
			MaxLabels:      10,
		},
		Caption: CaptionConfig{
			Timeout: 8 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Dimensions: 100,
			CacheSize:  1000,
		},
	}
}

// Load reads configuration from path, filling omitted fields with defaults.
// A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename).
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Validate checks ranges on the tuned constants.
func (c *Config) Validate() error {
	if c.Search.SemanticThreshold < 0 || c.Search.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be in [0,1], got %v", c.Search.SemanticThreshold)
	}
	if c.Search.LabelConfidence < 0 || c.Search.LabelConfidence > 1 {
		return fmt.Errorf("label_confidence must be in [0,1], got %v", c.Search.LabelConfidence)
	}
	if c.Search.ANNLimit <= 0 {
		return fmt.Errorf("ann_limit must be positive, got %d", c.Search.ANNLimit)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Indexing.ThumbnailMaxPx <= 0 {
		return fmt.Errorf("thumbnail_max_px must be positive, got %d", c.Indexing.ThumbnailMaxPx)
	}
	if c.Caption.Timeout <= 0 {
		return fmt.Errorf("caption timeout must be positive, got %v", c.Caption.Timeout)
	}
	return nil
}
