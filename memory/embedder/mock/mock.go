package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Embedder is a deterministic embedder for testing and offline runs.
// It generates embeddings from a hash of the text, so equal texts always
// map to equal vectors. Specific texts can be pinned to chosen vectors.
type Embedder struct {
	dimensions int

	mu     sync.Mutex
	pinned map[string][]float32
	calls  int
}

// New creates a new mock embedder with the given vector size.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384 // Match all-MiniLM-L6-v2 dimensions
	}
	return &Embedder{
		dimensions: dimensions,
		pinned:     make(map[string][]float32),
	}
}

// Pin makes Embed return vec for text.
func (m *Embedder) Pin(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[text] = vec
}

// Calls returns how many times Embed has been called.
func (m *Embedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embed creates a deterministic embedding from text.
// Uses hash-based generation for consistent results.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	pinned, ok := m.pinned[text]
	m.mu.Unlock()
	if ok {
		return pinned, nil
	}

	// Hash the text
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Simple LCG (Linear Congruential Generator)
		seed = seed*6364136223846793005 + 1442695040888963407
		// Convert to [-1, 1] range
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
