// Package hnsw provides the default memory.Index, an approximate
// nearest-neighbor graph built on github.com/coder/hnsw.
package hnsw

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/coder/hnsw"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/memory"
)

// Config holds graph parameters.
type Config struct {
	// M is the maximum number of neighbors per node.
	M int

	// EfSearch is the candidate list size used while searching.
	EfSearch int
}

// DefaultConfig matches the parameters the server has always used.
var DefaultConfig = Config{
	M:        16,
	EfSearch: 200,
}

// Index is an HNSW graph keyed by ordinal id, ranked by cosine similarity.
type Index struct {
	graph     *hnsw.Graph[uint32]
	cfg       Config
	dimension int
	capacity  int
	logger    *log.Logger
}

// New creates an empty index.
func New(dimension, capacity int, cfg Config) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", dimension)
	}
	if capacity <= 0 || capacity > math.MaxUint32 {
		return nil, fmt.Errorf("hnsw: invalid capacity %d", capacity)
	}
	if cfg.M <= 0 {
		cfg.M = DefaultConfig.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultConfig.EfSearch
	}

	return &Index{
		graph:     newGraph(cfg),
		cfg:       cfg,
		dimension: dimension,
		capacity:  capacity,
		logger:    log.Default().WithPrefix("hnsw"),
	}, nil
}

// Factory returns a memory.IndexFactory producing indexes with cfg.
func Factory(cfg Config) memory.IndexFactory {
	return func(dimension, capacity int) (memory.Index, error) {
		return New(dimension, capacity, cfg)
	}
}

func newGraph(cfg Config) *hnsw.Graph[uint32] {
	g := hnsw.NewGraph[uint32]()
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Insert implements memory.Index.
func (x *Index) Insert(ctx context.Context, vector []float32, id int) (err error) {
	if len(vector) != x.dimension {
		return fmt.Errorf("%w: %w: expected %d, got %d", core.ErrCapacity, core.ErrDimensionMismatch, x.dimension, len(vector))
	}
	if x.graph.Len() >= x.capacity {
		return fmt.Errorf("%w: %d elements", core.ErrCapacity, x.capacity)
	}
	if id < 0 || id > math.MaxUint32 {
		return fmt.Errorf("%w: id %d out of range", core.ErrCapacity, id)
	}
	key := uint32(id)
	if _, exists := x.graph.Lookup(key); exists {
		return fmt.Errorf("%w: id %d already indexed", core.ErrCapacity, id)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", core.ErrCapacity, r)
		}
	}()

	vec := make([]float32, len(vector))
	copy(vec, vector)
	x.graph.Add(hnsw.MakeNode(key, vec))
	return nil
}

// Query implements memory.Index.
func (x *Index) Query(ctx context.Context, vector []float32, k int) (matches []memory.Match, err error) {
	if k <= 0 || x.graph.Len() == 0 {
		return nil, nil
	}
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, x.dimension, len(vector))
	}

	defer func() {
		if r := recover(); r != nil {
			matches, err = nil, fmt.Errorf("hnsw search: %v", r)
		}
	}()

	nodes := x.graph.Search(vector, k)
	matches = make([]memory.Match, 0, len(nodes))
	for _, n := range nodes {
		matches = append(matches, memory.Match{
			ID:    int(n.Key),
			Score: 1 - hnsw.CosineDistance(vector, n.Value),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// Len implements memory.Index.
func (x *Index) Len() int {
	return x.graph.Len()
}

// Save implements memory.Index.
func (x *Index) Save(w io.Writer) error {
	return x.graph.Export(w)
}

// Load implements memory.Index.
func (x *Index) Load(r io.Reader) error {
	g := newGraph(x.cfg)
	if err := g.Import(r); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	if g.Len() > 0 && g.Dims() != x.dimension {
		return fmt.Errorf("%w: snapshot has %d dimensions, expected %d", core.ErrDimensionMismatch, g.Dims(), x.dimension)
	}
	if g.Len() > x.capacity {
		return fmt.Errorf("%w: snapshot holds %d elements, capacity is %d", core.ErrCapacity, g.Len(), x.capacity)
	}

	// Search parameters are configuration, not part of the snapshot.
	g.EfSearch = x.cfg.EfSearch
	x.graph = g
	x.logger.Debug("loaded graph", "nodes", g.Len())
	return nil
}
