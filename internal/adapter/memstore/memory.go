// Package memstore provides a non-persistent VectorStore for tests and
// one-shot runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"legalrag/internal/adapter/similarity"
	"legalrag/internal/domain"
	"legalrag/internal/port"
)

var _ port.VectorStore = (*MemoryStore)(nil)

type memEntry struct {
	chunk domain.Chunk
	raw   []float32
	unit  []float32
	gen   string
}

type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]memEntry
	docChunks map[string][]string
	docs      map[string]domain.IndexedDocument
}

// NewMemoryStore creates an empty store. A zero dimension is fixed by the
// first write.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		entries:   make(map[string]memEntry),
		docChunks: make(map[string][]string),
		docs:      make(map[string]domain.IndexedDocument),
	}
}

func (s *MemoryStore) checkDimension(entries []domain.VectorEntry) (int, error) {
	dim := s.dimension
	if dim == 0 && len(entries) > 0 {
		dim = len(entries[0].Vector)
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return 0, &domain.DimensionMismatchError{Expected: dim, Got: len(e.Vector), ChunkID: e.Chunk.ID}
		}
	}
	return dim, nil
}

func (s *MemoryStore) put(e domain.VectorEntry, gen string) {
	raw := make([]float32, len(e.Vector))
	copy(raw, e.Vector)
	s.entries[e.Chunk.ID] = memEntry{chunk: e.Chunk, raw: raw, unit: similarity.Normalize(raw), gen: gen}
}

// ReplaceDocument swaps a document's entries under the write lock.
func (s *MemoryStore) ReplaceDocument(ctx context.Context, doc domain.IndexedDocument, entries []domain.VectorEntry) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	for _, e := range entries {
		if e.Chunk.DocID != doc.ID {
			return fmt.Errorf("entry %s belongs to document %q, not %q", e.Chunk.ID, e.Chunk.DocID, doc.ID)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.checkDimension(entries)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		s.dimension = dim
	}

	if doc.Generation == "" {
		doc.Generation = uuid.NewString()
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	doc.ChunkCount = len(entries)

	for _, id := range s.docChunks[doc.ID] {
		delete(s.entries, id)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		s.put(e, doc.Generation)
		ids[i] = e.Chunk.ID
	}
	s.docChunks[doc.ID] = ids
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.checkDimension(entries)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		s.dimension = dim
	}

	touched := make(map[string]bool)
	for _, e := range entries {
		doc, ok := s.docs[e.Chunk.DocID]
		if !ok {
			doc = domain.IndexedDocument{ID: e.Chunk.DocID, Generation: uuid.NewString()}
		}
		if _, exists := s.entries[e.Chunk.ID]; !exists {
			s.docChunks[doc.ID] = append(s.docChunks[doc.ID], e.Chunk.ID)
		}
		s.put(e, doc.Generation)
		s.docs[doc.ID] = doc
		touched[doc.ID] = true
	}

	for docID := range touched {
		ids := s.docChunks[docID]
		sort.Strings(ids)
		doc := s.docs[docID]
		doc.ChunkCount = len(ids)
		doc.IndexedAt = time.Now().UTC()
		s.docs[docID] = doc
	}
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.docChunks[docID] {
		delete(s.entries, id)
	}
	delete(s.docChunks, docID)
	delete(s.docs, docID)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, topK int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidQuery, topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension > 0 && len(query) != s.dimension {
		return nil, &domain.DimensionMismatchError{Expected: s.dimension, Got: len(query)}
	}

	ranking := similarity.NewRanking(query)
	for _, e := range s.entries {
		if filter.Matches(e.chunk) {
			ranking.Add(e.chunk, e.unit)
		}
	}
	if ranking.Len() == 0 {
		return nil, fmt.Errorf("search over %d entries: %w", len(s.entries), domain.ErrEmptyStore)
	}
	return ranking.Top(topK), nil
}

func (s *MemoryStore) GetDocument(docID string) (domain.IndexedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return domain.IndexedDocument{}, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) ListDocuments() ([]domain.IndexedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.IndexedDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// DocumentEntries returns a document's entries in chunk order.
func (s *MemoryStore) DocumentEntries(docID string) ([]domain.VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.docChunks[docID]
	entries := make([]domain.VectorEntry, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		entries = append(entries, domain.VectorEntry{Chunk: e.chunk, Vector: e.raw, Generation: e.gen})
	}
	return entries, nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *MemoryStore) Close() error {
	return nil
}
