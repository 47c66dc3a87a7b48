package port

import (
	"context"

	"legalrag/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores chunk vectors and answers nearest-neighbour queries.
type VectorStore interface {
	// ReplaceDocument atomically swaps the committed generation of a document
	// for the given entries. Readers see either the old or the new set.
	ReplaceDocument(ctx context.Context, doc domain.IndexedDocument, entries []domain.VectorEntry) error

	// Upsert adds or overwrites entries by chunk ID. Entries are committed
	// atomically per document.
	Upsert(ctx context.Context, entries []domain.VectorEntry) error

	// DeleteDocument removes every entry of the document. No-op if none exist.
	DeleteDocument(ctx context.Context, docID string) error

	// Search returns the topK entries most similar to query among those
	// matching filter. It fails with domain.ErrEmptyStore when nothing matches.
	Search(ctx context.Context, query []float32, topK int, filter domain.Filter) ([]domain.ScoredChunk, error)

	// GetDocument returns the committed record of a document.
	GetDocument(docID string) (domain.IndexedDocument, error)

	// ListDocuments returns every committed document, ordered by ID.
	ListDocuments() ([]domain.IndexedDocument, error)

	// Count returns the number of stored entries.
	Count() int

	// Dimension returns the established vector dimension, 0 if not yet known.
	Dimension() int
}
