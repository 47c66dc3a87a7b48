// Package similarity holds the vector math shared by the vector stores.
package similarity

import (
	"math"
	"sort"

	"legalrag/internal/domain"
)

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the dot product of two unit vectors, clamped to [-1, 1] so that
// float32 rounding never yields a cosine outside its range.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return math.Max(-1, math.Min(1, sum))
}

// Cosine calculates the cosine similarity between two arbitrary vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return math.Max(-1, math.Min(1, dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))))
}

// Ranking scores candidates against one normalised query.
type Ranking struct {
	query  []float32
	scored []domain.ScoredChunk
}

// NewRanking prepares a ranking for the given (not necessarily normalised) query.
func NewRanking(query []float32) *Ranking {
	return &Ranking{query: Normalize(query)}
}

// Add scores a candidate whose vector is already unit length.
func (r *Ranking) Add(chunk domain.Chunk, unit []float32) {
	r.scored = append(r.scored, domain.ScoredChunk{
		Chunk: chunk,
		Score: Dot(r.query, unit),
	})
}

// Len returns the number of candidates added.
func (r *Ranking) Len() int {
	return len(r.scored)
}

// Top returns the k best candidates.
func (r *Ranking) Top(k int) []domain.ScoredChunk {
	return TopK(r.scored, k)
}

// TopK sorts by descending score, breaking ties by ascending chunk ID, and
// keeps the first k. The input slice is reordered.
func TopK(scored []domain.ScoredChunk, k int) []domain.ScoredChunk {
	SortScored(scored)
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

// SortScored orders by descending score, ties by ascending chunk ID.
func SortScored(scored []domain.ScoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
}
