package chunker

import (
	"fmt"
	"strings"

	"legalrag/internal/domain"
	"legalrag/internal/port"
)

const (
	StrategyWindow    = "window"
	StrategyParagraph = "paragraph"
)

// New returns the chunker for the named strategy. Invalid window/overlap
// values are rejected here rather than clamped.
func New(strategy string, window, overlap int) (port.Chunker, error) {
	if err := validate(window, overlap); err != nil {
		return nil, err
	}
	switch strategy {
	case StrategyWindow, "":
		return NewWindowChunker(window, overlap), nil
	case StrategyParagraph:
		return NewParagraphChunker(window, overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
}

func validate(window, overlap int) error {
	switch {
	case window <= 0:
		return &domain.ChunkingError{Window: window, Overlap: overlap, Reason: "window must be positive"}
	case overlap < 0:
		return &domain.ChunkingError{Window: window, Overlap: overlap, Reason: "overlap must not be negative"}
	case overlap >= window:
		return &domain.ChunkingError{Window: window, Overlap: overlap, Reason: "overlap must be smaller than window"}
	}
	return nil
}

// Normalize canonicalises line endings and strips characters that carry no
// text. Chunk offsets refer to the normalised form.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimRightFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n'
	})
}
