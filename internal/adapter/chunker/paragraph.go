package chunker

import (
	"legalrag/internal/domain"
)

// ParagraphChunker prefers to cut at blank-line boundaries. Each chunk packs
// as many whole paragraphs as fit in the window; a paragraph longer than the
// window is split like WindowChunker does.
type ParagraphChunker struct {
	window  int
	overlap int
}

func NewParagraphChunker(window, overlap int) *ParagraphChunker {
	return &ParagraphChunker{
		window:  window,
		overlap: overlap,
	}
}

func (c *ParagraphChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if err := validate(c.window, c.overlap); err != nil {
		return nil, err
	}

	runes := []rune(Normalize(doc.Text))
	pages := newPageIndex(runes)
	if len(runes) == 0 {
		return nil, nil
	}

	boundaries := paragraphBoundaries(runes)

	var chunks []domain.Chunk
	start, covered := 0, 0
	for {
		end := -1
		for _, b := range boundaries {
			if b <= covered {
				continue
			}
			if b-start > c.window {
				break
			}
			end = b
		}
		if end == -1 {
			end = start + c.window
			if end > len(runes) {
				end = len(runes)
			}
		}

		chunks = append(chunks, newChunk(doc, len(chunks), runes, start, end, pages))
		if end == len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start, covered = next, end
	}

	return chunks, nil
}

// paragraphBoundaries returns the rune offsets where paragraphs end, in
// ascending order. A paragraph owns the blank lines that follow it, so the
// paragraphs tile the text. The last boundary is always len(runes).
func paragraphBoundaries(runes []rune) []int {
	var boundaries []int
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\n' {
			continue
		}
		j, newlines := i, 0
		for j < len(runes) && isBlank(runes[j]) {
			if runes[j] == '\n' {
				newlines++
			}
			j++
		}
		if newlines >= 2 && j < len(runes) {
			boundaries = append(boundaries, j)
		}
		i = j - 1
	}
	return append(boundaries, len(runes))
}

func isBlank(r rune) bool {
	return r == '\n' || r == ' ' || r == '\t'
}
