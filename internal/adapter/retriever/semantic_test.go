package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/adapter/embedding"
	"legalrag/internal/adapter/memstore"
	"legalrag/internal/domain"
)

type stubEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int    { return len(e.vec) }
func (e *stubEmbedder) ModelName() string { return "stub" }

func seededStore(t *testing.T, embedder *embedding.HashEmbedder, texts map[string]string) *memstore.MemoryStore {
	t.Helper()
	store := memstore.NewMemoryStore(embedder.Dimension())
	for docID, text := range texts {
		vecs, err := embedder.Embed(context.Background(), []string{text})
		require.NoError(t, err)
		require.NoError(t, store.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: docID}, []domain.VectorEntry{{
			Chunk:  domain.Chunk{ID: domain.ChunkID(docID, 0), DocID: docID, Text: text},
			Vector: vecs[0],
		}}))
	}
	return store
}

func TestSemanticSearcher_FindsExactText(t *testing.T) {
	e := embedding.NewHashEmbedder(128)
	store := seededStore(t, e, map[string]string{
		"motion": "defendant moves to dismiss for lack of personal jurisdiction",
		"order":  "the court grants summary judgment on the contract claim",
	})

	results, err := NewSemanticSearcher(store, e).Search(context.Background(),
		"the court grants summary judgment on the contract claim", 1, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "order", results[0].Chunk.DocID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSemanticSearcher_InvalidQueryBeforeIO(t *testing.T) {
	stub := &stubEmbedder{vec: []float32{1, 0}}
	s := NewSemanticSearcher(memstore.NewMemoryStore(2), stub)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := s.Search(context.Background(), q, 3, domain.Filter{})
		assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	}
	assert.Zero(t, stub.calls)
}

func TestSemanticSearcher_EmbeddingFailure(t *testing.T) {
	stub := &stubEmbedder{err: &domain.EmbeddingError{Op: "embed", Transient: true, Err: errors.New("503")}}
	_, err := NewSemanticSearcher(memstore.NewMemoryStore(2), stub).Search(context.Background(), "laches", 3, domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.True(t, domain.IsTransient(err))
}

func TestSemanticSearcher_DimensionMismatchIsEmbeddingFailure(t *testing.T) {
	store := memstore.NewMemoryStore(2)
	require.NoError(t, store.Upsert(context.Background(), []domain.VectorEntry{{
		Chunk:  domain.Chunk{ID: "a:00000", DocID: "a"},
		Vector: []float32{1, 0},
	}}))

	stub := &stubEmbedder{vec: []float32{1, 0, 0}}
	_, err := NewSemanticSearcher(store, stub).Search(context.Background(), "laches", 3, domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSemanticSearcher_EmptyStore(t *testing.T) {
	stub := &stubEmbedder{vec: []float32{1, 0}}
	_, err := NewSemanticSearcher(memstore.NewMemoryStore(0), stub).Search(context.Background(), "laches", 3, domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrEmptyStore)
}
