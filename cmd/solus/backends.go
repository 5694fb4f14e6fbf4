package main

import (
	"fmt"

	"github.com/solus-ai/solus/config"
	"github.com/solus-ai/solus/llm"
	"github.com/solus-ai/solus/llm/anthropic"
	"github.com/solus-ai/solus/llm/mock"
	"github.com/solus-ai/solus/llm/ollama"
	"github.com/solus-ai/solus/llm/openai"
	"github.com/solus-ai/solus/memory"
	"github.com/solus-ai/solus/memory/embedder/cache"
	embedmock "github.com/solus-ai/solus/memory/embedder/mock"
	"github.com/solus-ai/solus/memory/embedder/onnx"
	"github.com/solus-ai/solus/memory/entries/sqlite"
	"github.com/solus-ai/solus/memory/index/chromem"
	"github.com/solus-ai/solus/memory/index/hnsw"
)

// mockDimension is the embedding size of the mock embedder when
// memory.dimension is unset.
const mockDimension = 384

// backends holds everything built from config that needs releasing.
type backends struct {
	runtime  *llm.Runtime
	embedder memory.Embedder
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func newGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.Model.Backend {
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:     cfg.Model.BaseURL,
			Model:       cfg.Model.Name,
			ContextSize: cfg.Model.ContextSize,
			Threads:     cfg.Model.Threads,
			GPULayers:   cfg.Model.GPULayers,
		}, nil)
	case "openai":
		return openai.New(openai.Config{
			BaseURL: cfg.Model.BaseURL,
			APIKey:  cfg.Model.APIKey,
			Model:   cfg.Model.Name,
		}, nil)
	case "anthropic":
		return anthropic.New(anthropic.Config{
			BaseURL: cfg.Model.BaseURL,
			APIKey:  cfg.Model.APIKey,
			Model:   cfg.Model.Name,
		}, nil), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Model.Backend)
	}
}

// newEmbedder builds the embedding backend. Remote backends default to the
// generation model's server and name.
func newEmbedder(cfg *config.Config) (memory.Embedder, func(), error) {
	noop := func() {}

	baseURL := cfg.Embedding.BaseURL
	if baseURL == "" && cfg.Embedding.Backend == cfg.Model.Backend {
		baseURL = cfg.Model.BaseURL
	}
	model := cfg.Embedding.Model
	if model == "" && cfg.Embedding.Backend == cfg.Model.Backend {
		model = cfg.Model.Name
	}

	switch cfg.Embedding.Backend {
	case "ollama":
		c, err := ollama.New(ollama.Config{BaseURL: baseURL, Model: model, EmbeddingModel: model}, nil)
		return c, noop, err
	case "openai":
		apiKey := cfg.Embedding.APIKey
		if apiKey == "" {
			apiKey = cfg.Model.APIKey
		}
		c, err := openai.New(openai.Config{BaseURL: baseURL, APIKey: apiKey, Model: model, EmbeddingModel: model}, nil)
		return c, noop, err
	case "onnx":
		ocfg := onnx.DefaultConfig
		ocfg.ModelPath = cfg.Embedding.ONNXModelPath
		ocfg.TokenizerPath = cfg.Embedding.ONNXTokenizerPath
		ocfg.LibraryPath = cfg.Embedding.ONNXLibraryPath
		if cfg.Memory.Dimension > 0 {
			ocfg.Dimensions = cfg.Memory.Dimension
		}
		e, err := onnx.New(ocfg)
		if err != nil {
			return nil, noop, err
		}
		return e, func() { _ = e.Close() }, nil
	case "mock":
		dim := cfg.Memory.Dimension
		if dim == 0 {
			dim = mockDimension
		}
		return embedmock.New(dim), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown embedding backend %q", cfg.Embedding.Backend)
	}
}

// newBackends wires generator and embedder behind one Runtime, with the
// embedding cache in front of it when enabled.
func newBackends(cfg *config.Config) (*backends, error) {
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	emb, closeEmb, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	b := &backends{closers: []func(){closeEmb}}
	b.runtime = llm.NewRuntime(gen, emb, llm.WithContextWindow(cfg.Model.ContextSize, cfg.Model.CharsPerToken))
	b.embedder = b.runtime

	if cfg.Embedding.CacheSize > 0 {
		c, err := cache.New(b.runtime, cfg.Embedding.CacheSize)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		b.embedder = c
		b.closers = append(b.closers, c.Close)
	}
	return b, nil
}

func newIndexFactory(cfg *config.Config) memory.IndexFactory {
	if cfg.Memory.Index == "chromem" {
		return chromem.Factory
	}
	return hnsw.Factory(hnsw.Config{M: cfg.Memory.HNSWM, EfSearch: cfg.Memory.HNSWEfSearch})
}

func newCodec(cfg *config.Config) memory.EntryCodec {
	if cfg.Memory.Entries == "sqlite" {
		return sqlite.Codec{}
	}
	return memory.JSONCodec{}
}
