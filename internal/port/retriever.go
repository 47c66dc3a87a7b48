package port

import (
	"context"

	"legalrag/internal/domain"
)

// Searcher runs the query path shared by retrieval and inspection.
type Searcher interface {
	// Search embeds the query and returns up to k candidates by similarity.
	Search(ctx context.Context, query string, k int, filter domain.Filter) ([]domain.ScoredChunk, error)
}
