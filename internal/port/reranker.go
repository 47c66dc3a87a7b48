package port

import "legalrag/internal/domain"

// Reranker applies a secondary ordering policy on top of raw similarity.
type Reranker interface {
	Rerank(query string, chunks []domain.ScoredChunk, k int) []domain.ScoredChunk
}
