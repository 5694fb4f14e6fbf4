package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/memory"
)

// Defaults for the context-window check.
const (
	DefaultContextSize   = 4096
	DefaultCharsPerToken = 4
)

// warmupText is embedded once at startup to check the backend is reachable
// and to learn the embedding dimension.
const warmupText = "warmup"

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithContextWindow sets the context size in tokens and the characters per
// token used to estimate a prompt's length.
func WithContextWindow(size, charsPerToken int) RuntimeOption {
	return func(r *Runtime) {
		if size > 0 {
			r.contextSize = size
		}
		if charsPerToken > 0 {
			r.charsPerToken = charsPerToken
		}
	}
}

// WithRuntimeLogger sets the logger.
func WithRuntimeLogger(l *log.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// Runtime is the single entry point to the model backends.
//
// Every Embed and Generate call holds one shared slot for its full duration,
// so at most one backend call is in flight at a time. Waiting for the slot
// honors ctx; once acquired the backend call runs to completion regardless
// of ctx.
type Runtime struct {
	gen    Generator
	emb    memory.Embedder
	slot   chan struct{}
	logger *log.Logger

	contextSize   int
	charsPerToken int

	loaded    atomic.Bool
	dimension atomic.Int64
}

// NewRuntime serializes gen and emb behind one slot.
func NewRuntime(gen Generator, emb memory.Embedder, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		gen:           gen,
		emb:           emb,
		slot:          make(chan struct{}, 1),
		contextSize:   DefaultContextSize,
		charsPerToken: DefaultCharsPerToken,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.Default().WithPrefix("llm")
	}
	return r
}

// Embed implements memory.Embedder. A failed or empty embedding is reported
// as core.ErrEmbedding.
func (r *Runtime) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", core.ErrEmbedding)
	}
	r.dimension.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}

// Generate implements Generator. A prompt whose estimated length reaches the
// context window fails with core.ErrPromptTooLong before the backend is
// called; a failed or empty reply is reported as core.ErrGeneration.
func (r *Runtime) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	if tokens := r.EstimateTokens(prompt.Text); tokens >= r.contextSize {
		r.logger.Warn("prompt too long", "tokens", tokens, "max", r.contextSize)
		return "", fmt.Errorf("%w: ~%d tokens, max %d", core.ErrPromptTooLong, tokens, r.contextSize)
	}

	out, err := r.generate(ctx, prompt, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty response from model", core.ErrGeneration)
	}
	return out, nil
}

// EstimateTokens approximates the token count of text.
func (r *Runtime) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + r.charsPerToken - 1) / r.charsPerToken
}

// Dimensions implements memory.Embedder. It prefers the dimension observed
// from a real embedding over the backend's declared one.
func (r *Runtime) Dimensions() int {
	if d := r.dimension.Load(); d > 0 {
		return int(d)
	}
	return r.emb.Dimensions()
}

// Warmup embeds a probe text and marks the runtime loaded on success.
// It returns the embedding dimension.
func (r *Runtime) Warmup(ctx context.Context) (int, error) {
	vec, err := r.Embed(ctx, warmupText)
	if err != nil {
		r.logger.Error("model warmup failed", "error", err)
		return 0, err
	}
	r.loaded.Store(true)
	r.logger.Info("model loaded", "embedding_dim", len(vec), "context_size", r.contextSize)
	return len(vec), nil
}

// Loaded reports whether Warmup has succeeded.
func (r *Runtime) Loaded() bool {
	return r.loaded.Load()
}

// embed and generate hold the slot for one backend call. The slot is released
// even if the backend panics.
func (r *Runtime) embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()
	return r.emb.Embed(context.WithoutCancel(ctx), text)
}

func (r *Runtime) generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()
	return r.gen.Generate(context.WithoutCancel(ctx), prompt, params)
}

func (r *Runtime) acquire(ctx context.Context) error {
	select {
	case r.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) release() {
	<-r.slot
}
