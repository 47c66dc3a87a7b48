package chunker

import (
	"legalrag/internal/domain"
)

// WindowChunker slides a fixed-size window of runes over the normalised text.
// Consecutive windows start Window-Overlap runes apart; the last one may be shorter.
type WindowChunker struct {
	window  int
	overlap int
}

func NewWindowChunker(window, overlap int) *WindowChunker {
	return &WindowChunker{
		window:  window,
		overlap: overlap,
	}
}

func (c *WindowChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if err := validate(c.window, c.overlap); err != nil {
		return nil, err
	}

	runes := []rune(Normalize(doc.Text))
	pages := newPageIndex(runes)
	if len(runes) == 0 {
		return nil, nil
	}

	step := c.window - c.overlap
	chunks := make([]domain.Chunk, 0, len(runes)/step+1)

	for start := 0; ; start += step {
		end := start + c.window
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, newChunk(doc, len(chunks), runes, start, end, pages))
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}
