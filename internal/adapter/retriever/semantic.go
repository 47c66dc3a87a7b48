package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"legalrag/internal/domain"
	"legalrag/internal/port"
)

var _ port.Searcher = (*SemanticSearcher)(nil)

// SemanticSearcher embeds a query and asks the vector store for its nearest
// chunks. It is the only query path; retrieval and inspection both use it.
type SemanticSearcher struct {
	store    port.VectorStore
	embedder port.Embedder
}

func NewSemanticSearcher(store port.VectorStore, embedder port.Embedder) *SemanticSearcher {
	return &SemanticSearcher{
		store:    store,
		embedder: embedder,
	}
}

// Search validates the query before any I/O. A query vector whose length
// disagrees with the store is reported as an embedding failure: the
// configured model is not the one the index was built with.
func (s *SemanticSearcher) Search(ctx context.Context, query string, k int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidQuery, k)
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, &domain.EmbeddingError{
			Op:  "embed query",
			Err: fmt.Errorf("embedder returned %d vectors for one query", len(vecs)),
		}
	}

	if dim := s.store.Dimension(); dim > 0 && len(vecs[0]) != dim {
		return nil, &domain.EmbeddingError{
			Op:  "embed query with " + s.embedder.ModelName(),
			Err: &domain.DimensionMismatchError{Expected: dim, Got: len(vecs[0])},
		}
	}

	results, err := s.store.Search(ctx, vecs[0], k, filter)
	if err != nil {
		var dm *domain.DimensionMismatchError
		if errors.As(err, &dm) && !dm.Corrupt {
			return nil, &domain.EmbeddingError{Op: "embed query with " + s.embedder.ModelName(), Err: err}
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}
