// Package embed turns text into fixed-length vectors for semantic search.
// Two implementations exist: a deterministic hash-based embedder that always
// works, and an ONNX model embedder available when built with cgo.
package embed

import (
	"context"
	"math"
)

// Embedder generates vector embeddings from text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// Embed generates an embedding for a single text. Blank input yields the
	// zero vector, not an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector dimension.
	Dimensions() int

	// ModelName returns the model identifier for cache keying.
	ModelName() string

	// Available checks if the embedder is ready to use.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// New builds the configured embedder chain: ONNX model when modelPath is set
// and usable, static hash embedder otherwise, wrapped in an LRU cache.
func New(modelPath string, dims, cacheSize int) (Embedder, error) {
	var inner Embedder
	if modelPath != "" {
		onnx, err := NewONNXEmbedder(modelPath, dims, defaultMaxTokens)
		if err != nil {
			return nil, err
		}
		inner = onnx
	} else {
		inner = NewStaticEmbedder(dims)
	}
	return NewCachedEmbedder(inner, cacheSize), nil
}

const defaultMaxTokens = 256

// normalizeVector scales a vector to unit L2 norm in place and returns it.
func normalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
