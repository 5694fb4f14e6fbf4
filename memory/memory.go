package memory

import (
	"context"
	"io"

	"github.com/solus-ai/solus/core"
)

// Match is one candidate returned by an Index query.
type Match struct {
	ID    int
	Score float32 // similarity, higher is closer
}

// Index is the vector insert/query capability backing a Store.
// Implementations: hnsw.Index (approximate, default), chromem.Index (exact).
//
// Index implementations need not be safe for concurrent use; the Store
// serializes every call.
type Index interface {
	// Insert adds vector under id. Returns an error wrapping core.ErrCapacity
	// when the index is full or refuses the vector.
	Insert(ctx context.Context, vector []float32, id int) error

	// Query returns up to k matches ordered best first.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Len returns the number of vectors held.
	Len() int

	// Save writes the index in its own binary format.
	Save(w io.Writer) error

	// Load replaces the index contents with a blob written by Save.
	Load(r io.Reader) error
}

// IndexFactory allocates an empty index for vectors of the given dimension,
// holding at most capacity elements.
type IndexFactory func(dimension, capacity int) (Index, error)

// EntryCodec persists the entry log. Position i of the slice is ordinal id i.
// Implementations: JSONCodec (default), sqlite.Codec.
type EntryCodec interface {
	// FileName is the file written under the store path, e.g. "entries.json".
	FileName() string

	Write(ctx context.Context, path string, entries []core.Entry) error
	Read(ctx context.Context, path string) ([]core.Entry, error)
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), onnx.Embedder (local),
// ollama.Client and openai.Client (remote), cache.Embedder (decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
