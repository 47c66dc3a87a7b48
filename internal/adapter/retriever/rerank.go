package retriever

import (
	"math"
	"time"

	"legalrag/config"
	"legalrag/internal/adapter/similarity"
	"legalrag/internal/domain"
	"legalrag/internal/port"
)

// DocumentCap keeps at most Max passages from any one document so a single
// long filing cannot crowd out the rest.
type DocumentCap struct {
	Max int
}

func (r DocumentCap) Rerank(_ string, chunks []domain.ScoredChunk, k int) []domain.ScoredChunk {
	perDoc := make(map[string]int)
	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(out) == k {
			break
		}
		if perDoc[c.Chunk.DocID] >= r.Max {
			continue
		}
		perDoc[c.Chunk.DocID]++
		out = append(out, c)
	}
	return out
}

// RecencyBoost adds Weight/(1+age in years) to each dated passage and
// re-sorts. Undated passages are left as they are.
type RecencyBoost struct {
	Weight float64
	Now    func() time.Time
}

func (r RecencyBoost) Rerank(_ string, chunks []domain.ScoredChunk, k int) []domain.ScoredChunk {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	out := make([]domain.ScoredChunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		date := out[i].Chunk.Metadata.Date
		if date.IsZero() {
			continue
		}
		years := math.Max(0, now.Sub(date).Hours()/(24*365.25))
		out[i].Score += r.Weight / (1 + years)
	}
	return similarity.TopK(out, k)
}

// MinScore drops passages scoring below Threshold.
type MinScore struct {
	Threshold float64
}

func (r MinScore) Rerank(_ string, chunks []domain.ScoredChunk, k int) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(out) == k {
			break
		}
		if c.Score >= r.Threshold {
			out = append(out, c)
		}
	}
	return out
}

// Chain applies rerankers in order. Intermediate stages see the whole
// candidate pool; only the last one trims to k.
type Chain []port.Reranker

func (c Chain) Rerank(query string, chunks []domain.ScoredChunk, k int) []domain.ScoredChunk {
	for i, r := range c {
		limit := len(chunks)
		if i == len(c)-1 {
			limit = k
		}
		chunks = r.Rerank(query, chunks, limit)
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks
}

// NewReranker assembles the rerankers enabled in cfg, or returns nil when
// none is, in which case store order is final.
func NewReranker(cfg config.RetrieveConfig, tokenizer port.Tokenizer) port.Reranker {
	var chain Chain
	if cfg.MinScoreThreshold > 0 {
		chain = append(chain, MinScore{Threshold: cfg.MinScoreThreshold})
	}
	if cfg.RecencyBoost > 0 {
		chain = append(chain, RecencyBoost{Weight: cfg.RecencyBoost})
	}
	if cfg.MaxPerDocument > 0 {
		chain = append(chain, DocumentCap{Max: cfg.MaxPerDocument})
	}
	if cfg.MMRLambda > 0 {
		chain = append(chain, NewMMRReranker(cfg.MMRLambda, 0.9, tokenizer))
	}

	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return chain
}
