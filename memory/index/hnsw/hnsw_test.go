package hnsw_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/memory/index/hnsw"
)

func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i%dim] = 1
	return v
}

func TestIndex_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx, err := hnsw.New(4, 10, hnsw.DefaultConfig)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, idx.Insert(ctx, axis(4, i), i))
	}
	assert.Equal(t, 4, idx.Len())

	matches, err := idx.Query(ctx, []float32{0.1, 0.9, 0.2, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, 1, matches[0].ID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestIndex_Rejections(t *testing.T) {
	ctx := context.Background()
	idx, err := hnsw.New(3, 2, hnsw.DefaultConfig)
	require.NoError(t, err)

	err = idx.Insert(ctx, []float32{1, 0}, 0)
	assert.ErrorIs(t, err, core.ErrCapacity)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	require.NoError(t, idx.Insert(ctx, axis(3, 0), 0))
	assert.ErrorIs(t, idx.Insert(ctx, axis(3, 1), 0), core.ErrCapacity, "duplicate id")
	require.NoError(t, idx.Insert(ctx, axis(3, 1), 1))
	assert.ErrorIs(t, idx.Insert(ctx, axis(3, 2), 2), core.ErrCapacity, "full")
	assert.Equal(t, 2, idx.Len())

	_, err = idx.Query(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestIndex_QueryEmpty(t *testing.T) {
	idx, err := hnsw.New(3, 2, hnsw.DefaultConfig)
	require.NoError(t, err)

	matches, err := idx.Query(context.Background(), axis(3, 0), 5)
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	idx, err := hnsw.New(4, 10, hnsw.DefaultConfig)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, idx.Insert(ctx, axis(4, i), i))
	}

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))
	blob := buf.Bytes()

	restored, err := hnsw.New(4, 10, hnsw.DefaultConfig)
	require.NoError(t, err)
	require.NoError(t, restored.Load(bytes.NewReader(blob)))
	assert.Equal(t, 4, restored.Len())

	before, err := idx.Query(ctx, axis(4, 2), 1)
	require.NoError(t, err)
	after, err := restored.Query(ctx, axis(4, 2), 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	wrongDim, err := hnsw.New(8, 10, hnsw.DefaultConfig)
	require.NoError(t, err)
	assert.ErrorIs(t, wrongDim.Load(bytes.NewReader(blob)), core.ErrDimensionMismatch)

	tooSmall, err := hnsw.New(4, 2, hnsw.DefaultConfig)
	require.NoError(t, err)
	assert.ErrorIs(t, tooSmall.Load(bytes.NewReader(blob)), core.ErrCapacity)
}
