package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/port"
)

// IndexOptions tunes an IndexUseCase.
type IndexOptions struct {
	BatchSize     int
	Concurrency   int
	MinChunkChars int    // chunks with less trimmed text are not embedded; 0 disables
	ConfigHash    string // folded into content hashes so a config change reindexes
}

// IndexUseCase turns source documents into committed store generations.
type IndexUseCase struct {
	source   port.DocumentSource
	chunker  port.Chunker
	embedder port.Embedder
	store    port.VectorStore
	opts     IndexOptions

	// OnDocument, if set, is called after each listed document is handled.
	OnDocument func(ref port.DocumentRef, total int)
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	source port.DocumentSource,
	chunker port.Chunker,
	embedder port.Embedder,
	store port.VectorStore,
	opts IndexOptions,
) *IndexUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &IndexUseCase{
		source:   source,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		opts:     opts,
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	DocsIndexed   int
	DocsSkipped   int
	DocsDeleted   int
	ChunksCreated int
	ChunksSkipped int
	Errors        []string
}

// Index brings the store in line with the source. Unchanged documents are
// skipped, and documents gone from the source are deleted. A chunking or
// dimension error stops the run, since every later document would hit it
// too; other per-document failures are collected and the run continues.
func (u *IndexUseCase) Index(ctx context.Context) (*IndexResult, error) {
	result := &IndexResult{}

	refs, err := u.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	existing, err := u.store.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed documents: %w", err)
	}
	existingMap := make(map[string]domain.IndexedDocument, len(existing))
	for _, d := range existing {
		existingMap[d.ID] = d
	}

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		seen[ref.ID] = true

		err := u.indexRef(ctx, ref, existingMap, result)
		if u.OnDocument != nil {
			u.OnDocument(ref, len(refs))
		}
		if err == nil {
			continue
		}
		if isFatal(err) || ctx.Err() != nil {
			return result, fmt.Errorf("indexing %s: %w", ref.ID, err)
		}
		logger.Warn("skipping %s: %v", ref.ID, err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ref.ID, err))
	}

	for id := range existingMap {
		if seen[id] {
			continue
		}
		if err := u.store.DeleteDocument(ctx, id); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s: %v", id, err))
			continue
		}
		logger.Debug("deleted vanished document %s", id)
		result.DocsDeleted++
	}

	return result, nil
}

func (u *IndexUseCase) indexRef(ctx context.Context, ref port.DocumentRef, existing map[string]domain.IndexedDocument, result *IndexResult) error {
	doc, err := u.source.Load(ctx, ref)
	if err != nil {
		return err
	}

	hash := u.contentHash(doc)
	if prev, ok := existing[doc.ID]; ok && prev.ContentHash == hash {
		logger.Debug("unchanged %s", doc.ID)
		result.DocsSkipped++
		return nil
	}

	dr, err := u.indexDocument(ctx, doc, hash)
	if err != nil {
		return err
	}
	result.DocsIndexed++
	result.ChunksCreated += dr.Chunks
	result.ChunksSkipped += dr.Skipped
	return nil
}

// DocumentResult reports what indexing one document produced.
type DocumentResult struct {
	Chunks     int
	Skipped    int
	Generation string
}

// IndexDocument chunks, embeds and commits one document, replacing any
// previous generation. On error the store is left as it was.
func (u *IndexUseCase) IndexDocument(ctx context.Context, doc domain.Document) (DocumentResult, error) {
	return u.indexDocument(ctx, doc, u.contentHash(doc))
}

func (u *IndexUseCase) indexDocument(ctx context.Context, doc domain.Document, hash string) (DocumentResult, error) {
	chunks, err := u.chunker.Chunk(doc)
	if err != nil {
		return DocumentResult{}, err
	}

	kept := chunks[:0:0]
	for _, c := range chunks {
		if isJunk(c.Text, u.opts.MinChunkChars) {
			continue
		}
		kept = append(kept, c)
	}
	skipped := len(chunks) - len(kept)

	ids := make([]string, len(kept))
	texts := make([]string, len(kept))
	for i, c := range kept {
		ids[i] = c.ID
		texts[i] = c.Text
	}
	vecs, err := u.embedAll(ctx, ids, texts)
	if err != nil {
		return DocumentResult{}, err
	}

	record := domain.IndexedDocument{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Metadata:    doc.Metadata,
		ContentHash: hash,
		Generation:  uuid.NewString(),
		ModTime:     doc.ModTime,
		IndexedAt:   time.Now().UTC(),
	}
	entries := make([]domain.VectorEntry, len(kept))
	for i, c := range kept {
		entries[i] = domain.VectorEntry{Chunk: c, Vector: vecs[i], Generation: record.Generation}
	}

	if err := u.store.ReplaceDocument(ctx, record, entries); err != nil {
		return DocumentResult{}, err
	}
	logger.Debug("indexed %s: %d chunks (%d skipped), generation %s", doc.ID, len(entries), skipped, record.Generation)

	return DocumentResult{Chunks: len(entries), Skipped: skipped, Generation: record.Generation}, nil
}

// embedAll embeds texts in batches, at most Concurrency batches in flight.
// Results land at their input positions, so output order is chunk order
// however the batches complete. The first failure cancels the rest. A vector
// whose length differs from the embedder's declared dimension is rejected.
func (u *IndexUseCase) embedAll(ctx context.Context, ids, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Concurrency)

	for start := 0; start < len(texts); start += u.opts.BatchSize {
		if gctx.Err() != nil {
			break
		}
		end := min(start+u.opts.BatchSize, len(texts))
		lo := start
		g.Go(func() error {
			out, err := u.embedder.Embed(gctx, texts[lo:end])
			if err != nil {
				return err
			}
			if len(out) != end-lo {
				return &domain.EmbeddingError{
					Op:  "embed batch",
					Err: fmt.Errorf("embedder returned %d vectors for %d texts", len(out), end-lo),
				}
			}
			if want := u.embedder.Dimension(); want > 0 {
				for i, v := range out {
					if len(v) != want {
						return &domain.DimensionMismatchError{Expected: want, Got: len(v), ChunkID: ids[lo+i]}
					}
				}
			}
			copy(vecs[lo:end], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (u *IndexUseCase) contentHash(doc domain.Document) string {
	meta, _ := json.Marshal(doc.Metadata)
	h := sha256.New()
	h.Write([]byte(u.opts.ConfigHash))
	h.Write([]byte{0})
	h.Write(meta)
	h.Write([]byte{0})
	h.Write([]byte(doc.Text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

var pageArtifact = regexp.MustCompile(`^\(Page: [^)]*\)$`)

// isJunk reports whether a chunk carries too little text to be worth a
// vector: shorter than minChars once trimmed, or only a page-number marker.
func isJunk(text string, minChars int) bool {
	trimmed := strings.TrimSpace(text)
	if minChars > 0 && len([]rune(trimmed)) < minChars {
		return true
	}
	return pageArtifact.MatchString(trimmed)
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrChunking) || errors.Is(err, domain.ErrDimensionMismatch)
}
