package chunker

import (
	"sort"

	"legalrag/internal/domain"
)

// pageIndex holds the rune offsets of form feeds, which text extractors such
// as pdftotext emit between pages.
type pageIndex []int

func newPageIndex(runes []rune) pageIndex {
	var p pageIndex
	for i, r := range runes {
		if r == '\f' {
			p = append(p, i)
		}
	}
	return p
}

// pageOf returns the 1-based page holding offset, or 0 when the text has no
// page breaks.
func (p pageIndex) pageOf(offset int) int {
	if len(p) == 0 {
		return 0
	}
	return 1 + sort.SearchInts(p, offset)
}

func newChunk(doc domain.Document, seq int, runes []rune, start, end int, pages pageIndex) domain.Chunk {
	meta := doc.Metadata
	if page := pages.pageOf(start); page > 0 {
		meta.Page = page
	}
	return domain.Chunk{
		ID:       domain.ChunkID(doc.ID, seq),
		DocID:    doc.ID,
		Seq:      seq,
		Start:    start,
		End:      end,
		Text:     string(runes[start:end]),
		Metadata: meta,
	}
}
