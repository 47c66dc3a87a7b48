package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls [][]string
	fail  error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.fail != nil {
		return nil, e.fail
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder_OnlyMissesReachProvider(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, NewVectorCache(10, time.Minute))
	ctx := context.Background()

	_, err := e.Embed(ctx, []string{"laches"})
	require.NoError(t, err)

	vecs, err := e.Embed(ctx, []string{"estoppel", "laches"})
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 1}, vecs[0])
	assert.Equal(t, []float32{6, 1}, vecs[1])

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"estoppel"}, inner.calls[1])
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{fail: errors.New("provider down")}
	e := NewCachedEmbedder(inner, NewVectorCache(10, time.Minute))

	_, err := e.Embed(context.Background(), []string{"q"})
	require.Error(t, err)

	inner.fail = nil
	_, err = e.Embed(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}

func TestVectorCache_LRUEviction(t *testing.T) {
	c := NewVectorCache(2, time.Minute)
	c.Put("m", "a", []float32{1})
	c.Put("m", "b", []float32{2})

	_, ok := c.Get("m", "a")
	require.True(t, ok)

	c.Put("m", "c", []float32{3})
	assert.Equal(t, 2, c.Size())

	_, ok = c.Get("m", "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("m", "a")
	assert.True(t, ok)
}

func TestVectorCache_TTLAndModelKeying(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewVectorCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("model-a", "q", []float32{1})
	_, ok := c.Get("model-b", "q")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("model-a", "q")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestVectorCache_Invalidate(t *testing.T) {
	c := NewVectorCache(10, time.Minute)
	c.Put("m", "q", []float32{1})
	c.Invalidate()
	assert.Zero(t, c.Size())
}
