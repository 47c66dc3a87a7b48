package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"legalrag/internal/adapter/similarity"
	"legalrag/internal/domain"
	"legalrag/internal/port"
)

var _ port.VectorStore = (*BoltVectorStore)(nil)

// BoltVectorStore implements VectorStore using BoltDB for persistence.
// Every write is a single bolt transaction; the in-memory snapshot used by
// Search is swapped only after the transaction commits, so readers never see
// half of a document's generation. Search is brute force over unit vectors.
type BoltVectorStore struct {
	db         *bbolt.DB
	configured int
	locks      docLocks

	mu        sync.RWMutex
	dimension int
	entries   map[string]cachedEntry
	docChunks map[string][]string
	docs      map[string]domain.IndexedDocument
}

type cachedEntry struct {
	chunk domain.Chunk
	unit  []float32
}

// Open opens or creates a vector store at path. A positive dimension must
// agree with the dimension already recorded in the store; zero adopts it.
func Open(path string, dimension int) (*BoltVectorStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &BoltVectorStore{
		db:         db,
		configured: dimension,
		entries:    make(map[string]cachedEntry),
		docChunks:  make(map[string][]string),
		docs:       make(map[string]domain.IndexedDocument),
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	if dimension > 0 && s.dimension > 0 && dimension != s.dimension {
		db.Close()
		return nil, &domain.DimensionMismatchError{Expected: s.dimension, Got: dimension}
	}

	return s, nil
}

// load reads every committed entry into memory and verifies its dimension.
func (s *BoltVectorStore) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		dim, err := readDimension(tx)
		if err != nil {
			return err
		}

		err = tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			entry, err := decodeEntry(string(k), v)
			if err != nil {
				return err
			}
			if dim == 0 {
				dim = len(entry.Vector)
			}
			if len(entry.Vector) != dim {
				return &domain.DimensionMismatchError{
					Expected: dim,
					Got:      len(entry.Vector),
					ChunkID:  entry.Chunk.ID,
					Corrupt:  true,
				}
			}
			s.entries[entry.Chunk.ID] = cachedEntry{
				chunk: entry.Chunk,
				unit:  similarity.Normalize(entry.Vector),
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.dimension = dim

		err = tx.Bucket(bucketDocChunks).ForEach(func(k, _ []byte) error {
			ids, err := getChunkIDs(tx, string(k))
			if err != nil {
				return err
			}
			s.docChunks[string(k)] = ids
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketDocs).ForEach(func(k, _ []byte) error {
			doc, _, err := getDoc(tx, string(k))
			if err != nil {
				return err
			}
			s.docs[doc.ID] = doc
			return nil
		})
	})
}

// establishDimension returns the dimension the entries must have, validating
// them against it. The first write into an empty store fixes the dimension.
func (s *BoltVectorStore) establishDimension(tx *bbolt.Tx, entries []domain.VectorEntry) (int, error) {
	dim, err := readDimension(tx)
	if err != nil {
		return 0, err
	}
	stored := dim
	if dim == 0 {
		dim = s.configured
	}
	if dim == 0 && len(entries) > 0 {
		dim = len(entries[0].Vector)
	}

	for _, e := range entries {
		if len(e.Vector) != dim {
			return 0, &domain.DimensionMismatchError{Expected: dim, Got: len(e.Vector), ChunkID: e.Chunk.ID}
		}
	}

	if stored == 0 && dim > 0 && len(entries) > 0 {
		if err := writeDimension(tx, dim); err != nil {
			return 0, err
		}
	}
	return dim, nil
}

// ReplaceDocument atomically swaps a document's committed generation.
func (s *BoltVectorStore) ReplaceDocument(ctx context.Context, doc domain.IndexedDocument, entries []domain.VectorEntry) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	ids := make([]string, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Chunk.DocID != doc.ID {
			return fmt.Errorf("entry %s belongs to document %q, not %q", e.Chunk.ID, e.Chunk.DocID, doc.ID)
		}
		if _, dup := seen[e.Chunk.ID]; dup {
			return fmt.Errorf("duplicate chunk id %s", e.Chunk.ID)
		}
		seen[e.Chunk.ID] = struct{}{}
		ids[i] = e.Chunk.ID
	}

	unlock := s.locks.lock(doc.ID)
	defer unlock()

	// A cancelled run discards its staged entries without touching the store.
	if err := ctx.Err(); err != nil {
		return err
	}

	if doc.Generation == "" {
		doc.Generation = uuid.NewString()
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	doc.ChunkCount = len(entries)

	var dim int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if dim, err = s.establishDimension(tx, entries); err != nil {
			return err
		}
		if _, err := deleteDocEntries(tx, doc.ID); err != nil {
			return fmt.Errorf("purge previous generation: %w", err)
		}

		b := tx.Bucket(bucketEntries)
		for _, e := range entries {
			e.Generation = doc.Generation
			data, err := encodeEntry(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.Chunk.ID), data); err != nil {
				return err
			}
		}
		if err := putChunkIDs(tx, doc.ID, ids); err != nil {
			return err
		}
		return putDoc(tx, doc)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dim
	s.dropDocLocked(doc.ID)
	for _, e := range entries {
		s.entries[e.Chunk.ID] = cachedEntry{chunk: e.Chunk, unit: similarity.Normalize(e.Vector)}
	}
	s.docChunks[doc.ID] = ids
	s.docs[doc.ID] = doc
	return nil
}

// Upsert adds or overwrites entries by chunk ID, one transaction per document.
// Chunks of the same document that are not in the batch are kept.
func (s *BoltVectorStore) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	for _, group := range groupByDoc(entries) {
		if err := s.upsertDoc(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltVectorStore) upsertDoc(ctx context.Context, entries []domain.VectorEntry) error {
	docID := entries[0].Chunk.DocID

	unlock := s.locks.lock(docID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		dim    int
		doc    domain.IndexedDocument
		merged []string
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if dim, err = s.establishDimension(tx, entries); err != nil {
			return err
		}

		existing, err := getChunkIDs(tx, docID)
		if err != nil {
			return err
		}
		var found bool
		if doc, found, err = getDoc(tx, docID); err != nil {
			return err
		}
		if !found {
			doc = domain.IndexedDocument{ID: docID, Generation: uuid.NewString()}
		}

		b := tx.Bucket(bucketEntries)
		for _, e := range entries {
			e.Generation = doc.Generation
			data, err := encodeEntry(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.Chunk.ID), data); err != nil {
				return err
			}
		}

		merged = mergeIDs(existing, entries)
		doc.ChunkCount = len(merged)
		doc.IndexedAt = time.Now().UTC()
		if err := putChunkIDs(tx, docID, merged); err != nil {
			return err
		}
		return putDoc(tx, doc)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dim
	for _, e := range entries {
		s.entries[e.Chunk.ID] = cachedEntry{chunk: e.Chunk, unit: similarity.Normalize(e.Vector)}
	}
	s.docChunks[docID] = merged
	s.docs[docID] = doc
	return nil
}

// DeleteDocument removes every entry of a document.
func (s *BoltVectorStore) DeleteDocument(ctx context.Context, docID string) error {
	unlock := s.locks.lock(docID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := deleteDocEntries(tx, docID)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropDocLocked(docID)
	delete(s.docChunks, docID)
	delete(s.docs, docID)
	return nil
}

// dropDocLocked removes a document's entries from the snapshot. Caller holds mu.
func (s *BoltVectorStore) dropDocLocked(docID string) {
	for _, id := range s.docChunks[docID] {
		delete(s.entries, id)
	}
}

// Search finds the topK entries nearest to query using cosine similarity.
func (s *BoltVectorStore) Search(ctx context.Context, query []float32, topK int, filter domain.Filter) ([]domain.ScoredChunk, error) {
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
	score := func(e cachedEntry) {
		if filter.Matches(e.chunk) {
			ranking.Add(e.chunk, e.unit)
		}
	}

	if len(filter.DocumentIDs) > 0 {
		visited := make(map[string]struct{}, len(filter.DocumentIDs))
		for _, docID := range filter.DocumentIDs {
			if _, dup := visited[docID]; dup {
				continue
			}
			visited[docID] = struct{}{}
			for _, id := range s.docChunks[docID] {
				if e, ok := s.entries[id]; ok {
					score(e)
				}
			}
		}
	} else {
		for _, e := range s.entries {
			score(e)
		}
	}

	if ranking.Len() == 0 {
		return nil, fmt.Errorf("search over %d entries: %w", len(s.entries), domain.ErrEmptyStore)
	}
	return ranking.Top(topK), nil
}

// GetDocument returns the committed record of a document.
func (s *BoltVectorStore) GetDocument(docID string) (domain.IndexedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return domain.IndexedDocument{}, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	return doc, nil
}

// ListDocuments returns every committed document ordered by ID.
func (s *BoltVectorStore) ListDocuments() ([]domain.IndexedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.IndexedDocument, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// DocumentEntries reads a document's persisted entries in chunk order.
func (s *BoltVectorStore) DocumentEntries(docID string) ([]domain.VectorEntry, error) {
	var entries []domain.VectorEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		ids, err := getChunkIDs(tx, docID)
		if err != nil {
			return err
		}
		b := tx.Bucket(bucketEntries)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("entry %s listed for %s but missing", id, docID)
			}
			e, err := decodeEntry(id, data)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Count returns the number of vectors in the store.
func (s *BoltVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the established vector dimension, or the configured one
// while the store is empty.
func (s *BoltVectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return s.configured
	}
	return s.dimension
}

func (s *BoltVectorStore) Close() error {
	return s.db.Close()
}

func groupByDoc(entries []domain.VectorEntry) [][]domain.VectorEntry {
	var order []string
	groups := make(map[string][]domain.VectorEntry)
	for _, e := range entries {
		if _, ok := groups[e.Chunk.DocID]; !ok {
			order = append(order, e.Chunk.DocID)
		}
		groups[e.Chunk.DocID] = append(groups[e.Chunk.DocID], e)
	}
	out := make([][]domain.VectorEntry, len(order))
	for i, id := range order {
		out[i] = groups[id]
	}
	return out
}

// mergeIDs unions existing chunk IDs with the batch, in chunk ID order.
func mergeIDs(existing []string, entries []domain.VectorEntry) []string {
	set := make(map[string]struct{}, len(existing)+len(entries))
	for _, id := range existing {
		set[id] = struct{}{}
	}
	for _, e := range entries {
		set[e.Chunk.ID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
