package store

import (
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex maintains one HNSW graph per embedding field. Graphs live in
// memory for the process lifetime; SQLite holds the durable embeddings and
// the graphs are rebuilt from it on open.
type VectorIndex struct {
	mu     sync.RWMutex
	dims   int
	graphs map[VectorField]*graphState
}

// graphState pairs a graph with its ID mappings. Item IDs map to internal
// keys so that replacing a vector can use lazy deletion (coder/hnsw breaks
// when the last node is removed from the graph).
type graphState struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[int64]uint64
	keyMap  map[uint64]int64
	nextKey uint64
}

// NewVectorIndex creates an index for the given embedding dimension.
func NewVectorIndex(dims int) *VectorIndex {
	v := &VectorIndex{
		dims:   dims,
		graphs: make(map[VectorField]*graphState, 2),
	}
	for _, field := range []VectorField{FieldTextEmbedding, FieldCaptionEmbedding} {
		g := hnsw.NewGraph[uint64]()
		g.Distance = hnsw.CosineDistance
		g.M = 16
		g.EfSearch = 20
		g.Ml = 0.25
		v.graphs[field] = &graphState{
			graph:  g,
			idMap:  make(map[int64]uint64),
			keyMap: make(map[uint64]int64),
		}
	}
	return v
}

// Dimensions returns the embedding dimension.
func (v *VectorIndex) Dimensions() int { return v.dims }

// Upsert inserts or replaces the vector for an item. A nil vector removes
// the item from the field's graph.
func (v *VectorIndex) Upsert(field VectorField, id int64, vec []float32) error {
	if vec == nil {
		v.Delete(field, id)
		return nil
	}
	if len(vec) != v.dims {
		return ErrDimensionMismatch{Expected: v.dims, Got: len(vec)}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	gs := v.graphs[field]
	if existing, ok := gs.idMap[id]; ok {
		// Lazy delete: orphan the old key rather than mutating the graph.
		delete(gs.keyMap, existing)
		delete(gs.idMap, id)
	}

	key := gs.nextKey
	gs.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	gs.graph.Add(hnsw.MakeNode(key, normalized))
	gs.idMap[id] = key
	gs.keyMap[key] = id
	return nil
}

// Delete removes an item's vector from the field's graph (lazily).
func (v *VectorIndex) Delete(field VectorField, id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	gs := v.graphs[field]
	if key, ok := gs.idMap[id]; ok {
		delete(gs.keyMap, key)
		delete(gs.idMap, id)
	}
}

// Search returns up to k nearest neighbors by cosine distance.
func (v *VectorIndex) Search(field VectorField, query []float32, k int) ([]*VectorMatch, error) {
	if len(query) != v.dims {
		return nil, ErrDimensionMismatch{Expected: v.dims, Got: len(query)}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	gs := v.graphs[field]
	if gs.graph.Len() == 0 {
		return []*VectorMatch{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := gs.graph.Search(normalized, k)
	matches := make([]*VectorMatch, 0, len(nodes))
	for _, node := range nodes {
		id, ok := gs.keyMap[node.Key]
		if !ok {
			// Lazily deleted node still present in the graph.
			continue
		}
		matches = append(matches, &VectorMatch{
			ID:       id,
			Distance: gs.graph.Distance(normalized, node.Value),
		})
	}
	return matches, nil
}

// Count returns the number of live vectors in the field's graph.
func (v *VectorIndex) Count(field VectorField) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.graphs[field].idMap)
}

// normalizeInPlace scales a vector to unit length for cosine distance.
func normalizeInPlace(vec []float32) {
	var sumSquares float64
	for _, val := range vec {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= inv
	}
}
