package llm_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/llm"
	"github.com/solus-ai/solus/llm/mock"
	embedmock "github.com/solus-ai/solus/memory/embedder/mock"
)

func TestRuntime_Generate(t *testing.T) {
	gen := mock.New("hello there")
	r := llm.NewRuntime(gen, embedmock.New(8))

	out, err := r.Generate(context.Background(), llm.Prompt{Text: "hi"}, llm.DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	require.Len(t, gen.Params(), 1)
	assert.Equal(t, llm.DefaultParams, gen.Params()[0])
}

func TestRuntime_EmptyReplyIsGenerationError(t *testing.T) {
	r := llm.NewRuntime(mock.New("  \n"), embedmock.New(8))
	_, err := r.Generate(context.Background(), llm.Prompt{Text: "hi"}, llm.DefaultParams)
	assert.ErrorIs(t, err, core.ErrGeneration)
}

func TestRuntime_BackendErrorIsGenerationError(t *testing.T) {
	gen := mock.New()
	gen.FailWith(errors.New("connection refused"))
	r := llm.NewRuntime(gen, embedmock.New(8))

	_, err := r.Generate(context.Background(), llm.Prompt{Text: "hi"}, llm.DefaultParams)
	assert.ErrorIs(t, err, core.ErrGeneration)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRuntime_PromptTooLong(t *testing.T) {
	gen := mock.New("never")
	r := llm.NewRuntime(gen, embedmock.New(8), llm.WithContextWindow(10, 4))

	// 40 chars at 4 chars/token is exactly the window.
	_, err := r.Generate(context.Background(), llm.Prompt{Text: strings.Repeat("a", 40)}, llm.DefaultParams)
	assert.ErrorIs(t, err, core.ErrPromptTooLong)
	assert.Empty(t, gen.Prompts())

	out, err := r.Generate(context.Background(), llm.Prompt{Text: strings.Repeat("a", 36)}, llm.DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "never", out)
}

type emptyEmbedder struct{}

func (emptyEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }
func (emptyEmbedder) Dimensions() int                                  { return 0 }

func TestRuntime_EmptyEmbeddingIsEmbeddingError(t *testing.T) {
	r := llm.NewRuntime(mock.New(), emptyEmbedder{})
	_, err := r.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, core.ErrEmbedding)

	_, err = r.Warmup(context.Background())
	assert.Error(t, err)
	assert.False(t, r.Loaded())
}

func TestRuntime_WarmupProbesDimension(t *testing.T) {
	r := llm.NewRuntime(mock.New(), embedmock.New(12))
	assert.False(t, r.Loaded())

	dim, err := r.Warmup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, dim)
	assert.Equal(t, 12, r.Dimensions())
	assert.True(t, r.Loaded())
}

// blockingGenerator tracks how many calls overlap.
type blockingGenerator struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (g *blockingGenerator) Generate(ctx context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
	n := g.active.Add(1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	g.active.Add(-1)
	return "ok", nil
}

func TestRuntime_SerializesCalls(t *testing.T) {
	gen := &blockingGenerator{}
	r := llm.NewRuntime(gen, embedmock.New(8))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Generate(context.Background(), llm.Prompt{Text: "x"}, llm.DefaultParams)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), gen.maxSeen.Load())
}

func TestRuntime_InFlightIgnoresCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := llm.GeneratorFunc(func(ctx context.Context, _ llm.Prompt, _ llm.Params) (string, error) {
		cancel()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "finished", nil
	})
	r := llm.NewRuntime(gen, embedmock.New(8))

	out, err := r.Generate(ctx, llm.Prompt{Text: "x"}, llm.DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "finished", out)
}

func TestRuntime_EstimateTokens(t *testing.T) {
	r := llm.NewRuntime(mock.New(), embedmock.New(8), llm.WithContextWindow(0, 2))
	assert.Equal(t, 0, r.EstimateTokens(""))
	assert.Equal(t, 2, r.EstimateTokens("abc"))
	assert.Equal(t, 1, r.EstimateTokens("é"))
}

func TestRuntime_PanicReleasesSlot(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
		if calls.Add(1) == 1 {
			panic("backend crashed")
		}
		return "recovered", nil
	})
	r := llm.NewRuntime(gen, embedmock.New(8))

	assert.Panics(t, func() {
		_, _ = r.Generate(context.Background(), llm.Prompt{Text: "hi"}, llm.DefaultParams)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out, err := r.Generate(ctx, llm.Prompt{Text: "hi"}, llm.DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)

	vec, err := r.Embed(ctx, "hi")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}
