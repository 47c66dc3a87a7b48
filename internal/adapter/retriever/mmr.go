package retriever

import (
	"legalrag/internal/domain"
	"legalrag/internal/port"
)

// MMRReranker implements Maximal Marginal Relevance over lexical overlap, so
// near-duplicate passages (boilerplate repeated across filings) give way to
// passages that add something.
type MMRReranker struct {
	lambda       float64
	dedupJaccard float64
	tokenizer    port.Tokenizer
}

// NewMMRReranker creates an MMR reranker. Candidates whose Jaccard overlap
// with an already selected passage exceeds dedupJaccard are dropped.
func NewMMRReranker(lambda, dedupJaccard float64, tokenizer port.Tokenizer) *MMRReranker {
	return &MMRReranker{
		lambda:       lambda,
		dedupJaccard: dedupJaccard,
		tokenizer:    tokenizer,
	}
}

// Rerank applies MMR to diversify the results.
// MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected)
func (r *MMRReranker) Rerank(_ string, candidates []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	// Scores are cosines in [-1, 1]; shift to [0, 1] before mixing with overlap.
	relevance := func(c domain.ScoredChunk) float64 { return (c.Score + 1) / 2 }

	tokens := make(map[string][]string, len(candidates))
	for _, c := range candidates {
		tokens[c.Chunk.ID] = r.tokenizer.Tokenize(c.Chunk.Text)
	}

	selected := make([]domain.ScoredChunk, 0, k)
	remaining := make([]domain.ScoredChunk, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := -1e9

		for i, candidate := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				sim := jaccardSimilarity(tokens[candidate.Chunk.ID], tokens[sel.Chunk.ID])
				if sim > maxSim {
					maxSim = sim
				}
			}
			if len(selected) > 0 && maxSim > r.dedupJaccard {
				continue
			}

			mmr := r.lambda*relevance(candidate) - (1-r.lambda)*maxSim
			// Strict comparison keeps the earlier (better ranked) candidate on ties.
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// jaccardSimilarity computes the Jaccard similarity between two token sets.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, exists := setB[t]; exists {
			intersection++
		}
	}
	return float64(intersection) / float64(len(setA)+len(setB)-intersection)
}
