package domain

import (
	"fmt"
	"time"
)

// Document is one logical source document, identified by a stable ID.
// Text is expected to be extracted already; the chunker normalises it.
type Document struct {
	ID       string
	Filename string
	Text     string
	Metadata Metadata
	ModTime  time.Time
}

// Metadata is the case metadata attached to a document and inherited by its chunks.
type Metadata struct {
	CaseName     string            `json:"case_name,omitempty" yaml:"case_name,omitempty"`
	Date         time.Time         `json:"date,omitempty" yaml:"-"`
	DocumentType string            `json:"document_type,omitempty" yaml:"document_type,omitempty"`
	Page         int               `json:"page,omitempty" yaml:"page,omitempty"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Chunk is a contiguous span [Start, End) of a document's normalised text.
// Offsets count runes.
type Chunk struct {
	ID       string
	DocID    string
	Seq      int
	Start    int
	End      int
	Text     string
	Metadata Metadata
}

// ChunkID derives the chunk identifier from a document ID and sequence index.
// The zero padding keeps lexical order equal to chunking order.
func ChunkID(docID string, seq int) string {
	return fmt.Sprintf("%s:%05d", docID, seq)
}

// VectorEntry is what the vector store persists per chunk.
type VectorEntry struct {
	Chunk      Chunk
	Vector     []float32
	Generation string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Filter restricts a search. Zero-valued fields do not restrict.
type Filter struct {
	DocumentIDs  []string
	DocumentType string
	CaseName     string
}

// Matches reports whether the chunk passes the filter.
func (f Filter) Matches(c Chunk) bool {
	if len(f.DocumentIDs) > 0 {
		found := false
		for _, id := range f.DocumentIDs {
			if id == c.DocID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DocumentType != "" && f.DocumentType != c.Metadata.DocumentType {
		return false
	}
	if f.CaseName != "" && f.CaseName != c.Metadata.CaseName {
		return false
	}
	return true
}

// IndexedDocument records the committed generation of a document in the store.
type IndexedDocument struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Metadata    Metadata  `json:"metadata"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	Generation  string    `json:"generation"`
	ModTime     time.Time `json:"mod_time"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// Passage is one ranked chunk inside a ContextBundle.
type Passage struct {
	Rank     int     `json:"rank"`
	ChunkID  string  `json:"chunk_id"`
	DocID    string  `json:"document_id"`
	Filename string  `json:"filename,omitempty"`
	CaseName string  `json:"case_name,omitempty"`
	Page     int     `json:"page,omitempty"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// ContextBundle is the ordered context handed to answer generation.
type ContextBundle struct {
	Query    string    `json:"query"`
	Passages []Passage `json:"passages"`
	Text     string    `json:"text"`

	// TokenEstimate approximates the model tokens Text occupies.
	TokenEstimate int `json:"token_estimate"`
}

// Inspection is a debug view of one ranked candidate.
type Inspection struct {
	Rank     int     `json:"rank"`
	Chunk    Chunk   `json:"chunk"`
	RawScore float64 `json:"raw_score"`
	Score    float64 `json:"score"`
}
