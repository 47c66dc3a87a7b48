package port

import "legalrag/internal/domain"

// Chunker splits a document into chunks covering its normalised text.
type Chunker interface {
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}
