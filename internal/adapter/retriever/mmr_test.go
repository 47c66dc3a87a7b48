package retriever

import (
	"testing"

	"legalrag/internal/adapter/analyzer"
	"legalrag/internal/domain"
)

func scored(id, text string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: id, DocID: id, Text: text},
		Score: score,
	}
}

func TestMMRReranking(t *testing.T) {
	reranker := NewMMRReranker(0.7, 0.9, analyzer.NewTokenizer())

	candidates := []domain.ScoredChunk{
		scored("c1", "statute limitations breach contract accrual", 0.9),
		scored("c2", "statute limitations breach contract tolling", 0.85),
		scored("c3", "personal jurisdiction minimum contacts forum", 0.8),
		scored("c4", "statute limitations discovery rule fraud", 0.7),
	}

	results := reranker.Rerank("limitations", candidates, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("expected c1 as first result, got %s", results[0].Chunk.ID)
	}

	c2Idx, c3Idx := -1, -1
	for i, r := range results {
		switch r.Chunk.ID {
		case "c2":
			c2Idx = i
		case "c3":
			c3Idx = i
		}
	}
	if c3Idx == -1 || (c2Idx != -1 && c2Idx < c3Idx) {
		t.Errorf("expected diverse c3 ahead of near-duplicate c2, got %v", ids(results))
	}
}

func TestMMRDeduplication(t *testing.T) {
	reranker := NewMMRReranker(0.5, 0.3, analyzer.NewTokenizer())

	candidates := []domain.ScoredChunk{
		scored("c1", "motion dismiss granted prejudice", 0.9),
		scored("c2", "motion dismiss granted prejudice", 0.8),
	}

	results := reranker.Rerank("", candidates, 2)
	if len(results) != 1 {
		t.Fatalf("expected 1 result after dedup, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("expected c1 (highest score), got %s", results[0].Chunk.ID)
	}
}

func TestMMREmptyCandidates(t *testing.T) {
	reranker := NewMMRReranker(0.7, 0.8, analyzer.NewTokenizer())

	if results := reranker.Rerank("q", nil, 10); results != nil {
		t.Errorf("expected nil for empty candidates, got %v", results)
	}
	if results := reranker.Rerank("q", []domain.ScoredChunk{}, 10); results != nil {
		t.Errorf("expected nil for empty slice, got %v", results)
	}
}

func TestMMRKeepsDistinctTokenlessPassages(t *testing.T) {
	reranker := NewMMRReranker(0.7, 0.9, analyzer.NewTokenizer())
	candidates := []domain.ScoredChunk{
		scored("c1", "x y z", 0.9),
		scored("c2", "1 2 3", 0.8),
		scored("c3", "q r", 0.7),
	}

	results := reranker.Rerank("q", candidates, 3)
	if len(results) != 3 {
		t.Fatalf("expected all 3 passages without tokens to survive, got %v", ids(results))
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected float64
	}{
		{"identical", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"no overlap", []string{"a", "b", "c"}, []string{"d", "e", "f"}, 0.0},
		{"half overlap", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"empty a", []string{}, []string{"a", "b"}, 0.0},
		{"empty b", []string{"a", "b"}, []string{}, 0.0},
		{"both empty", []string{}, []string{}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := jaccardSimilarity(tc.a, tc.b)
			if !floatEquals(result, tc.expected, 0.001) {
				t.Errorf("jaccardSimilarity(%v, %v) = %f, expected %f", tc.a, tc.b, result, tc.expected)
			}
		})
	}
}

func floatEquals(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}

func ids(chunks []domain.ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Chunk.ID
	}
	return out
}
