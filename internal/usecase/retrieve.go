package usecase

import (
	"context"
	"fmt"
	"strings"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/port"
)

// DocumentLookup resolves a document ID to its committed record.
type DocumentLookup interface {
	GetDocument(docID string) (domain.IndexedDocument, error)
}

// RetrieveUseCase answers queries with ranked passages.
type RetrieveUseCase struct {
	searcher            port.Searcher
	reranker            port.Reranker
	tokenizer           port.Tokenizer
	documents           DocumentLookup
	candidateMultiplier int
}

// NewRetrieveUseCase creates a new retrieve use case. reranker may be nil,
// in which case store order is kept. documents may be nil; passages then
// carry only chunk-level provenance.
func NewRetrieveUseCase(
	searcher port.Searcher,
	reranker port.Reranker,
	tokenizer port.Tokenizer,
	documents DocumentLookup,
	candidateMultiplier int,
) *RetrieveUseCase {
	if candidateMultiplier < 1 {
		candidateMultiplier = 1
	}
	return &RetrieveUseCase{
		searcher:            searcher,
		reranker:            reranker,
		tokenizer:           tokenizer,
		documents:           documents,
		candidateMultiplier: candidateMultiplier,
	}
}

// Retrieve returns the topK passages for query as a context bundle. Each
// passage carries the full chunk text and where it came from.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int, filter domain.Filter) (*domain.ContextBundle, error) {
	ranked, err := u.rank(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	bundle := &domain.ContextBundle{
		Query:    query,
		Passages: make([]domain.Passage, 0, len(ranked)),
	}
	records := make(map[string]domain.IndexedDocument)

	var sb strings.Builder
	for _, r := range ranked {
		p := u.passage(r, records)
		bundle.Passages = append(bundle.Passages, p)

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(passageHeader(p))
		sb.WriteByte('\n')
		sb.WriteString(p.Text)
	}
	bundle.Text = sb.String()
	if u.tokenizer != nil {
		bundle.TokenEstimate = u.tokenizer.CountTokens(bundle.Text)
	}

	return bundle, nil
}

// Inspect runs the same ranking as Retrieve and returns each result with
// its raw similarity, final score and rank.
func (u *RetrieveUseCase) Inspect(ctx context.Context, query string, topK int, filter domain.Filter) ([]domain.Inspection, error) {
	return u.rank(ctx, query, topK, filter)
}

// rank is the single query path. With a reranker, a wider candidate pool is
// fetched so reranking has something to choose from.
func (u *RetrieveUseCase) rank(ctx context.Context, query string, topK int, filter domain.Filter) ([]domain.Inspection, error) {
	pool := topK
	if u.reranker != nil && topK > 0 {
		pool = topK * u.candidateMultiplier
	}

	candidates, err := u.searcher.Search(ctx, query, pool, filter)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		raw[c.Chunk.ID] = c.Score
	}

	results := candidates
	if u.reranker != nil {
		results = u.reranker.Rerank(query, candidates, topK)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("all %d candidates removed by reranking: %w", len(candidates), domain.ErrEmptyStore)
	}
	logger.Debug("query %q: %d candidates, %d results", query, len(candidates), len(results))

	out := make([]domain.Inspection, len(results))
	for i, r := range results {
		out[i] = domain.Inspection{
			Rank:     i + 1,
			Chunk:    r.Chunk,
			RawScore: raw[r.Chunk.ID],
			Score:    r.Score,
		}
	}
	return out, nil
}

func (u *RetrieveUseCase) passage(r domain.Inspection, records map[string]domain.IndexedDocument) domain.Passage {
	c := r.Chunk
	p := domain.Passage{
		Rank:     r.Rank,
		ChunkID:  c.ID,
		DocID:    c.DocID,
		CaseName: c.Metadata.CaseName,
		Page:     c.Metadata.Page,
		Start:    c.Start,
		End:      c.End,
		Score:    r.Score,
		Text:     c.Text,
	}

	if u.documents == nil {
		return p
	}
	rec, ok := records[c.DocID]
	if !ok {
		var err error
		rec, err = u.documents.GetDocument(c.DocID)
		if err != nil {
			logger.Debug("no record for %s: %v", c.DocID, err)
		}
		records[c.DocID] = rec
	}
	p.Filename = rec.Filename
	if p.CaseName == "" {
		p.CaseName = rec.Metadata.CaseName
	}
	return p
}

func passageHeader(p domain.Passage) string {
	source := p.Filename
	if source == "" {
		source = p.DocID
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", p.Rank, source)
	if p.CaseName != "" {
		fmt.Fprintf(&sb, " (%s)", p.CaseName)
	}
	if p.Page > 0 {
		fmt.Fprintf(&sb, ", p. %d", p.Page)
	}
	fmt.Fprintf(&sb, ", chars %d-%d, score %.4f", p.Start, p.End, p.Score)
	return sb.String()
}
