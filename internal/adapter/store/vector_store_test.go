package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/config"
	"legalrag/internal/domain"
)

func openTestStore(t *testing.T, dim int) (*BoltVectorStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, dim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func entry(docID string, seq int, vec ...float32) domain.VectorEntry {
	return domain.VectorEntry{
		Chunk: domain.Chunk{
			ID:    domain.ChunkID(docID, seq),
			DocID: docID,
			Seq:   seq,
			Start: seq * 10,
			End:   seq*10 + 10,
			Text:  fmt.Sprintf("%s chunk %d", docID, seq),
		},
		Vector: vec,
	}
}

func replace(t *testing.T, s *BoltVectorStore, docID string, entries ...domain.VectorEntry) {
	t.Helper()
	require.NoError(t, s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: docID}, entries))
}

func TestSearch_SelfRetrieval(t *testing.T) {
	s, _ := openTestStore(t, 3)
	replace(t, s, "motion",
		entry("motion", 0, 1, 0, 0),
		entry("motion", 1, 0, 1, 0),
		entry("motion", 2, 0, 0, 1),
	)

	results, err := s.Search(context.Background(), []float32{0, 2, 0}, 1, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "motion:00001", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearch_TopKLargerThanStore(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "a", entry("a", 0, 1, 0), entry("a", 1, 1, 1))

	results, err := s.Search(context.Background(), []float32{1, 0}, 10, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_TieBreakByChunkID(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "b", entry("b", 0, 1, 0))
	replace(t, s, "a", entry("a", 1, 1, 0), entry("a", 0, 1, 0))

	results, err := s.Search(context.Background(), []float32{1, 0}, 3, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a:00000", results[0].Chunk.ID)
	assert.Equal(t, "a:00001", results[1].Chunk.ID)
	assert.Equal(t, "b:00000", results[2].Chunk.ID)
}

func TestSearch_EmptyStore(t *testing.T) {
	s, _ := openTestStore(t, 2)

	_, err := s.Search(context.Background(), []float32{1, 0}, 3, domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrEmptyStore)
}

func TestSearch_FilterExcludesEverything(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "a", entry("a", 0, 1, 0))

	_, err := s.Search(context.Background(), []float32{1, 0}, 3, domain.Filter{DocumentIDs: []string{"missing"}})
	assert.ErrorIs(t, err, domain.ErrEmptyStore)
}

func TestSearch_Filters(t *testing.T) {
	s, _ := openTestStore(t, 2)
	brief := entry("brief", 0, 1, 0)
	brief.Chunk.Metadata = domain.Metadata{CaseName: "Doe v. Roe", DocumentType: "brief"}
	order := entry("order", 0, 1, 0)
	order.Chunk.Metadata = domain.Metadata{CaseName: "Doe v. Roe", DocumentType: "order"}
	replace(t, s, "brief", brief)
	replace(t, s, "order", order)

	results, err := s.Search(context.Background(), []float32{1, 0}, 5, domain.Filter{DocumentType: "order"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "order", results[0].Chunk.DocID)

	results, err = s.Search(context.Background(), []float32{1, 0}, 5, domain.Filter{CaseName: "Doe v. Roe"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.Search(context.Background(), []float32{1, 0}, 5, domain.Filter{DocumentIDs: []string{"brief"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "brief", results[0].Chunk.DocID)
}

func TestSearch_RepeatedDocumentIDScoresOnce(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "motion", entry("motion", 0, 1, 0), entry("motion", 1, 1, 1))

	results, err := s.Search(context.Background(), []float32{1, 0}, 3, domain.Filter{DocumentIDs: []string{"motion", "motion"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "motion:00000", results[0].Chunk.ID)
	assert.Equal(t, "motion:00001", results[1].Chunk.ID)
}

func TestSearch_InvalidTopK(t *testing.T) {
	s, _ := openTestStore(t, 2)
	_, err := s.Search(context.Background(), []float32{1, 0}, 0, domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "a", entry("a", 0, 1, 0))

	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 1, domain.Filter{})
	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Got)
}

func TestReplaceDocument_DimensionMismatchLeavesStoreUntouched(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "a", entry("a", 0, 1, 0))

	err := s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: "a"}, []domain.VectorEntry{
		entry("a", 0, 0, 1),
		entry("a", 1, 0, 1, 0),
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	entries, err := s.DocumentEntries("a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []float32{1, 0}, entries[0].Vector)
	assert.Equal(t, 1, s.Count())
}

func TestReplaceDocument_DropsPreviousGeneration(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "a", entry("a", 0, 1, 0), entry("a", 1, 0, 1), entry("a", 2, 1, 1))
	first, err := s.GetDocument("a")
	require.NoError(t, err)

	replace(t, s, "a", entry("a", 0, 0, 1))
	second, err := s.GetDocument("a")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 1, second.ChunkCount)
	assert.NotEqual(t, first.Generation, second.Generation)

	entries, err := s.DocumentEntries("a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.Generation, entries[0].Generation)
}

func TestReplaceDocument_RejectsForeignEntry(t *testing.T) {
	s, _ := openTestStore(t, 2)
	err := s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: "a"}, []domain.VectorEntry{entry("b", 0, 1, 0)})
	assert.Error(t, err)
	assert.Zero(t, s.Count())
}

func TestReplaceDocument_CancelledContext(t *testing.T) {
	s, _ := openTestStore(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.ReplaceDocument(ctx, domain.IndexedDocument{ID: "a"}, []domain.VectorEntry{entry("a", 0, 1, 0)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Count())
	_, err = s.GetDocument("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsert_MergesChunks(t *testing.T) {
	s, _ := openTestStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []domain.VectorEntry{entry("a", 1, 0, 1), entry("b", 0, 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.VectorEntry{entry("a", 0, 1, 0), entry("a", 1, 1, 1)}))

	assert.Equal(t, 3, s.Count())
	doc, err := s.GetDocument("a")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)

	entries, err := s.DocumentEntries("a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a:00000", entries[0].Chunk.ID)
	assert.Equal(t, []float32{1, 1}, entries[1].Vector)
}

func TestUpsert_EstablishesDimension(t *testing.T) {
	s, _ := openTestStore(t, 0)
	assert.Zero(t, s.Dimension())

	require.NoError(t, s.Upsert(context.Background(), []domain.VectorEntry{entry("a", 0, 1, 2, 3)}))
	assert.Equal(t, 3, s.Dimension())

	err := s.Upsert(context.Background(), []domain.VectorEntry{entry("b", 0, 1, 2)})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestDeleteDocument(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "a", entry("a", 0, 1, 0))
	replace(t, s, "b", entry("b", 0, 0, 1))

	require.NoError(t, s.DeleteDocument(context.Background(), "a"))

	results, err := s.Search(context.Background(), []float32{1, 0}, 5, domain.Filter{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.Chunk.DocID)
	}
	_, err = s.GetDocument("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting an absent document is a no-op.
	assert.NoError(t, s.DeleteDocument(context.Background(), "a"))
	assert.NoError(t, s.DeleteDocument(context.Background(), "never-indexed"))
	assert.Equal(t, 1, s.Count())
}

func TestDurability_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, 2)
	require.NoError(t, err)
	meta := domain.Metadata{CaseName: "Doe v. Roe", DocumentType: "motion", Extra: map[string]string{"court": "S.D.N.Y."}}
	e := entry("motion", 0, 3, 4)
	e.Chunk.Metadata = meta
	require.NoError(t, s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: "motion", ContentHash: "abc"}, []domain.VectorEntry{e}))
	require.NoError(t, s.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Dimension())
	assert.Equal(t, 1, reopened.Count())

	doc, err := reopened.GetDocument("motion")
	require.NoError(t, err)
	assert.Equal(t, "abc", doc.ContentHash)

	entries, err := reopened.DocumentEntries("motion")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []float32{3, 4}, entries[0].Vector)
	assert.Equal(t, meta, entries[0].Chunk.Metadata)

	results, err := reopened.Search(context.Background(), []float32{3, 4}, 1, domain.Filter{CaseName: "Doe v. Roe"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestOpen_ConfiguredDimensionDisagrees(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: "a"}, []domain.VectorEntry{entry("a", 0, 1, 0)}))
	require.NoError(t, s.Close())

	_, err = Open(path, 768)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestListDocuments_Ordered(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "reply_brief", entry("reply_brief", 0, 1, 0))
	replace(t, s, "motion_to_dismiss", entry("motion_to_dismiss", 0, 0, 1))

	docs, err := s.ListDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "motion_to_dismiss", docs[0].ID)
	assert.Equal(t, "reply_brief", docs[1].ID)
}

// Readers running alongside a replacement see either the old or the new
// generation of a document, never a mix.
func TestConcurrentSearchDuringReplace(t *testing.T) {
	s, _ := openTestStore(t, 2)
	replace(t, s, "stable", entry("stable", 0, 0, 1))

	const chunks = 8
	gen := func(v float32) []domain.VectorEntry {
		entries := make([]domain.VectorEntry, chunks)
		for i := range entries {
			entries[i] = entry("churn", i, v, 1)
		}
		return entries
	}
	replace(t, s, "churn", gen(1)...)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 50; i++ {
			v := float32(i%2 + 1)
			if err := s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: "churn"}, gen(v)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	var failures []string
	var mu sync.Mutex
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				results, err := s.Search(context.Background(), []float32{1, 1}, 20, domain.Filter{DocumentIDs: []string{"churn"}})
				if err != nil && !errors.Is(err, domain.ErrEmptyStore) {
					mu.Lock()
					failures = append(failures, err.Error())
					mu.Unlock()
					return
				}
				if len(results) != chunks {
					mu.Lock()
					failures = append(failures, fmt.Sprintf("saw %d chunks", len(results)))
					mu.Unlock()
					return
				}
				first := results[0].Score
				for _, res := range results {
					if res.Score != first {
						mu.Lock()
						failures = append(failures, "mixed generations")
						mu.Unlock()
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Empty(t, failures)
}

// Writers racing on one document leave it as exactly one writer's generation
// (or absent after a delete), and the snapshot agrees with what is on disk.
func TestConcurrentWritersSameDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, 2)
	require.NoError(t, err)

	const writers = 6
	gen := func(w int) []domain.VectorEntry {
		entries := make([]domain.VectorEntry, w+1)
		for i := range entries {
			entries[i] = entry("motion", i, float32(w+1), 1)
		}
		return entries
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := s.ReplaceDocument(context.Background(), domain.IndexedDocument{ID: "motion"}, gen(w)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if err := s.DeleteDocument(context.Background(), "motion"); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	count := s.Count()
	entries, err := s.DocumentEntries("motion")
	require.NoError(t, err)
	require.Len(t, entries, count)

	var chunkIDs []string
	if count > 0 {
		doc, err := s.GetDocument("motion")
		require.NoError(t, err)
		assert.Equal(t, count, doc.ChunkCount)
		for _, e := range entries {
			assert.Equal(t, entries[0].Vector, e.Vector, "mixed generations")
			assert.Equal(t, doc.Generation, e.Generation)
			chunkIDs = append(chunkIDs, e.Chunk.ID)
		}
		assert.Equal(t, float32(count), entries[0].Vector[0])

		results, err := s.Search(context.Background(), []float32{1, 1}, 20, domain.Filter{})
		require.NoError(t, err)
		assert.Len(t, results, count)
	} else {
		_, err := s.GetDocument("motion")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	require.NoError(t, s.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, count, reopened.Count())
	persisted, err := reopened.DocumentEntries("motion")
	require.NoError(t, err)
	var persistedIDs []string
	for _, e := range persisted {
		persistedIDs = append(persistedIDs, e.Chunk.ID)
	}
	assert.Equal(t, chunkIDs, persistedIDs)
	if count == 0 {
		_, err := reopened.GetDocument("motion")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestCheckMigration(t *testing.T) {
	s, _ := openTestStore(t, 2)
	cfg := config.DefaultConfig()

	result, err := s.CheckMigration(cfg)
	require.NoError(t, err)
	assert.True(t, result.NeedsMigration)
	assert.False(t, result.NeedsRebuild)

	require.NoError(t, s.Migrate(cfg))
	result, err = s.CheckMigration(cfg)
	require.NoError(t, err)
	assert.False(t, result.NeedsMigration)
	assert.False(t, result.NeedsRebuild)

	cfg.Index.ChunkSize = 500
	rebuild, reason, err := s.NeedsRebuild(cfg)
	require.NoError(t, err)
	assert.True(t, rebuild)
	assert.Equal(t, "index configuration changed", reason)
}

func TestComputeConfigHash_IgnoresRetrievalSettings(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	b.Retrieve.TopK = 20
	b.Retrieve.MMRLambda = 0.5
	assert.Equal(t, ComputeConfigHash(a), ComputeConfigHash(b))

	b.Embedding.Model = "text-embedding-3-small"
	assert.NotEqual(t, ComputeConfigHash(a), ComputeConfigHash(b))
}

func TestClear(t *testing.T) {
	s, _ := openTestStore(t, 0)
	require.NoError(t, s.Migrate(config.DefaultConfig()))
	replace(t, s, "a", entry("a", 0, 1, 0))

	require.NoError(t, s.Clear())
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Dimension())

	// A cleared store accepts a new dimension.
	replace(t, s, "a", entry("a", 0, 1, 0, 0))
	assert.Equal(t, 3, s.Dimension())

	info, err := s.GetSchemaInfo()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, info.Version)
}
