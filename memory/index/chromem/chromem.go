// Package chromem provides an exact-search memory.Index backed by chromem-go,
// a pure Go, embedded vector database.
package chromem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/memory"
)

const collectionName = "memories"

// Index wraps a single chromem-go collection. Documents are keyed by the
// decimal ordinal id; similarity is cosine, computed exhaustively.
type Index struct {
	db        *chromem.DB
	col       *chromem.Collection
	dimension int
	capacity  int
	logger    *log.Logger
}

// New creates an empty index.
func New(dimension, capacity int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("chromem: dimension must be positive, got %d", dimension)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("chromem: capacity must be positive, got %d", capacity)
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection(
		collectionName,
		nil, // No metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Index{
		db:        db,
		col:       col,
		dimension: dimension,
		capacity:  capacity,
		logger:    log.Default().WithPrefix("chromem"),
	}, nil
}

// Factory is a memory.IndexFactory for chromem indexes.
func Factory(dimension, capacity int) (memory.Index, error) {
	return New(dimension, capacity)
}

// Insert implements memory.Index.
func (x *Index) Insert(ctx context.Context, vector []float32, id int) error {
	if len(vector) != x.dimension {
		return fmt.Errorf("%w: %w: expected %d, got %d", core.ErrCapacity, core.ErrDimensionMismatch, x.dimension, len(vector))
	}
	if x.col.Count() >= x.capacity {
		return fmt.Errorf("%w: %d elements", core.ErrCapacity, x.capacity)
	}

	// chromem normalizes in place, so hand it a copy.
	vec := make([]float32, len(vector))
	copy(vec, vector)

	doc := chromem.Document{
		ID:        strconv.Itoa(id),
		Embedding: vec,
		Metadata:  map[string]string{"ordinal": strconv.Itoa(id)},
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: add document: %v", core.ErrCapacity, err)
	}
	return nil
}

// Query implements memory.Index.
func (x *Index) Query(ctx context.Context, vector []float32, k int) ([]memory.Match, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, x.dimension, len(vector))
	}

	// chromem-go requires nResults <= collection size
	k = min(k, x.col.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := x.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.Match, 0, len(results))
	for i, result := range results {
		id, err := strconv.Atoi(result.ID)
		if err != nil {
			x.logger.Warn("skipping result with non-ordinal id", "rank", i+1, "id", result.ID)
			continue
		}
		matches = append(matches, memory.Match{ID: id, Score: result.Similarity})
	}
	return matches, nil
}

// Len implements memory.Index.
func (x *Index) Len() int {
	return x.col.Count()
}

// Save implements memory.Index. The blob is chromem's gob export, gzipped.
func (x *Index) Save(w io.Writer) error {
	return x.db.ExportToWriter(w, true, "", collectionName)
}

// Load implements memory.Index.
func (x *Index) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	db := chromem.NewDB()
	if err := db.ImportFromReader(bytes.NewReader(data), ""); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	col := db.GetCollection(collectionName, nil)
	if col == nil {
		return fmt.Errorf("import: collection %q not found", collectionName)
	}
	if col.Count() > x.capacity {
		return fmt.Errorf("%w: snapshot holds %d elements, capacity is %d", core.ErrCapacity, col.Count(), x.capacity)
	}

	x.db = db
	x.col = col
	return nil
}
