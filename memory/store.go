package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/solus-ai/solus/core"
)

// OverFetch is the factor by which Search asks the index for more candidates
// than requested, to absorb losses from tenant filtering.
const OverFetch = 2

// IndexFileName is the name of the index blob under the store path.
const IndexFileName = "index.bin"

var errNotInitialized = errors.New("memory store not initialized")

// Config holds Store configuration.
type Config struct {
	// Path is the directory holding the snapshot files.
	Path string

	// Dimension is the embedding size. Fixed for the store's lifetime.
	Dimension int

	// Capacity is the maximum number of entries the index can hold.
	Capacity int
}

// DefaultConfig returns the defaults used by the server. Dimension has no
// default; it comes from the embedder.
var DefaultConfig = Config{
	Path:     "./memory_db",
	Capacity: 1000,
}

// Option configures a Store.
type Option func(*Store)

// WithIndexFactory sets how the store allocates its vector index.
func WithIndexFactory(f IndexFactory) Option {
	return func(s *Store) {
		s.newIndex = f
	}
}

// WithCodec sets the entry log persistence format.
func WithCodec(c EntryCodec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store is the tenant-scoped semantic memory.
//
// The entry log and the vector index are guarded by one mutex and are only
// mutated together, so for every id i in the index entries[i] exists and is
// the memory that was inserted under i.
type Store struct {
	cfg      Config
	newIndex IndexFactory
	codec    EntryCodec
	logger   *log.Logger

	mu      sync.Mutex
	index   Index // nil until Initialize
	entries []core.Entry
}

// New creates a store. Call Initialize before use.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("memory: path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("memory: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("memory: capacity must be positive, got %d", cfg.Capacity)
	}

	s := &Store{
		cfg:   cfg,
		codec: JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newIndex == nil {
		return nil, fmt.Errorf("memory: no index factory configured")
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("memory")
	}
	return s, nil
}

// Initialize loads the snapshot under the store path if one exists, and
// otherwise starts empty. A snapshot that cannot be loaded is renamed to
// *.rejected-<unix> so later saves cannot overwrite it, and the store starts
// empty; only failing to create the store directory or an empty
// index is an error.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Path, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", core.ErrSnapshot, s.cfg.Path, err)
	}

	if fileExists(s.indexPath()) && fileExists(s.entriesPath()) {
		s.logger.Info("loading existing memory index", "path", s.cfg.Path)
		err := s.Load(ctx)
		if err == nil {
			s.logger.Info("memory database initialized", "entries", s.Count())
			return nil
		}
		s.logger.Error("failed to load memory database, starting empty", "error", err)
		s.reject()
	} else {
		s.logger.Info("creating new memory index", "path", s.cfg.Path)
	}

	idx, err := s.newIndex(s.cfg.Dimension, s.cfg.Capacity)
	if err != nil {
		return fmt.Errorf("allocate index: %w", err)
	}

	s.mu.Lock()
	s.index = idx
	s.entries = nil
	s.mu.Unlock()

	s.logger.Info("memory database initialized", "entries", 0)
	return nil
}

// Add stores entry under the next ordinal id and returns that id.
//
// A vector of the wrong dimension is rejected with core.ErrDimensionMismatch
// and nothing is stored. If the index refuses the vector the log append is
// rolled back and the error (wrapping core.ErrCapacity) is returned; the
// entry count is unchanged in both cases.
func (s *Store) Add(ctx context.Context, entry core.Entry, embedding []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return -1, errNotInitialized
	}
	if len(embedding) != s.cfg.Dimension {
		s.logger.Warn("embedding dimension mismatch", "expected", s.cfg.Dimension, "got", len(embedding))
		return -1, fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, s.cfg.Dimension, len(embedding))
	}
	if err := entry.Validate(); err != nil {
		return -1, err
	}

	id := len(s.entries)
	s.entries = append(s.entries, entry)
	if err := s.index.Insert(ctx, embedding, id); err != nil {
		s.entries[id] = core.Entry{}
		s.entries = s.entries[:id]
		s.logger.Error("failed to add memory to index", "id", id, "error", err)
		return -1, fmt.Errorf("insert memory %d: %w", id, err)
	}
	return id, nil
}

// Search returns up to k entries owned by tenantID, best match first.
//
// The index is asked for min(OverFetch*k, Count()) neighbors and candidates
// owned by other tenants are dropped, so fewer than k entries may come back.
// An empty store returns no entries and no error.
func (s *Store) Search(ctx context.Context, query []float32, tenantID string, k int) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil || len(s.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != s.cfg.Dimension {
		s.logger.Warn("query embedding dimension mismatch", "expected", s.cfg.Dimension, "got", len(query))
		return nil, fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, s.cfg.Dimension, len(query))
	}

	fetch := min(OverFetch*k, len(s.entries))
	matches, err := s.index.Query(ctx, query, fetch)
	if err != nil {
		s.logger.Error("memory search failed", "error", err)
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]core.Entry, 0, k)
	for _, m := range matches {
		if len(results) == k {
			break
		}
		if m.ID < 0 || m.ID >= len(s.entries) {
			continue
		}
		if e := s.entries[m.ID]; e.TenantID == tenantID {
			results = append(results, e)
		}
	}
	return results, nil
}

// Save writes the index blob and the entry log under the store path. Both
// files are written to temporaries first and renamed into place. Saving an
// empty or uninitialized store is a no-op.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil || len(s.entries) == 0 {
		return nil
	}

	s.logger.Info("saving memory database", "path", s.cfg.Path)

	indexTmp, err := writeTemp(s.indexPath(), func(w io.Writer) error {
		return s.index.Save(w)
	})
	if err != nil {
		s.logger.Error("failed to save memory index", "error", err)
		return fmt.Errorf("%w: write index: %v", core.ErrSnapshot, err)
	}

	entriesTmp := s.entriesPath() + ".tmp"
	if err := s.codec.Write(ctx, entriesTmp, s.entries); err != nil {
		os.Remove(indexTmp)
		os.Remove(entriesTmp)
		s.logger.Error("failed to save memory entries", "error", err)
		return fmt.Errorf("%w: write entries: %v", core.ErrSnapshot, err)
	}

	// The log goes first. If the index rename then fails the pair on disk
	// disagrees and the next Initialize moves it aside.
	if err := os.Rename(entriesTmp, s.entriesPath()); err != nil {
		os.Remove(indexTmp)
		os.Remove(entriesTmp)
		return fmt.Errorf("%w: %v", core.ErrSnapshot, err)
	}
	if err := os.Rename(indexTmp, s.indexPath()); err != nil {
		os.Remove(indexTmp)
		s.logger.Error("memory snapshot half written: entry log is new, index is stale", "path", s.cfg.Path, "error", err)
		return fmt.Errorf("%w: %v", core.ErrSnapshot, err)
	}

	s.logger.Info("memory database saved", "entries", len(s.entries))
	return nil
}

// Load replaces the store contents with the snapshot under the store path.
// The index blob and the entry log are loaded as a pair and must agree on
// the number of ids; on any failure the current contents are kept.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.newIndex(s.cfg.Dimension, s.cfg.Capacity)
	if err != nil {
		return fmt.Errorf("allocate index: %w", err)
	}

	f, err := os.Open(s.indexPath())
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSnapshot, err)
	}
	err = idx.Load(bufio.NewReader(f))
	f.Close()
	if err != nil {
		return fmt.Errorf("%w: read index: %v", core.ErrSnapshot, err)
	}

	entries, err := s.codec.Read(ctx, s.entriesPath())
	if err != nil {
		return fmt.Errorf("%w: read entries: %v", core.ErrSnapshot, err)
	}

	if idx.Len() != len(entries) {
		return fmt.Errorf("%w: index holds %d vectors, log holds %d entries",
			core.ErrSnapshotMismatch, idx.Len(), len(entries))
	}

	s.index = idx
	s.entries = entries
	s.logger.Info("loaded memory entries", "entries", len(entries))
	return nil
}

// Close flushes the store to disk.
func (s *Store) Close(ctx context.Context) error {
	return s.Save(ctx)
}

// Count returns the number of stored entries.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Dimension returns the embedding size the store accepts.
func (s *Store) Dimension() int {
	return s.cfg.Dimension
}

// Tenants returns the number of entries owned by each tenant.
func (s *Store) Tenants() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.TenantID]++
	}
	return counts
}

func (s *Store) indexPath() string {
	return filepath.Join(s.cfg.Path, IndexFileName)
}

func (s *Store) entriesPath() string {
	return filepath.Join(s.cfg.Path, s.codec.FileName())
}

// reject moves an inconsistent snapshot aside so that the next save does not
// overwrite it.
func (s *Store) reject() {
	suffix := fmt.Sprintf(".rejected-%d", time.Now().Unix())
	for _, path := range []string{s.indexPath(), s.entriesPath()} {
		if err := os.Rename(path, path+suffix); err != nil {
			s.logger.Warn("failed to move rejected snapshot", "path", path, "error", err)
			continue
		}
		s.logger.Warn("moved rejected snapshot aside", "path", path+suffix)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeTemp writes a sibling temporary of path and returns its name.
func writeTemp(path string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
