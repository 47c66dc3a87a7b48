package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"legalrag/internal/domain"
)

func TestPassageSource(t *testing.T) {
	assert.Equal(t, "reply_brief.txt, Doe v. Acme Corp., p. 4", passageSource(domain.Passage{
		DocID: "reply_brief", Filename: "reply_brief.txt", CaseName: "Doe v. Acme Corp.", Page: 4,
	}))
	assert.Equal(t, "orders/2021-03-02", passageSource(domain.Passage{DocID: "orders/2021-03-02"}))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", preview("short\n\n  text", 20))

	long := strings.Repeat("a", 30)
	got := preview(long, 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestWriteBundle_PrintsFullText(t *testing.T) {
	text := strings.Repeat("The court lacks personal jurisdiction. ", 40)
	var buf bytes.Buffer
	writeBundle(&buf, &domain.ContextBundle{
		Query: "jurisdiction",
		Passages: []domain.Passage{{
			Rank: 1, ChunkID: "motion:00000", DocID: "motion", Filename: "motion.txt", Text: text,
		}},
	})
	assert.Contains(t, buf.String(), text)
	assert.Contains(t, buf.String(), "Found 1 passages for: jurisdiction")
}

func TestInspectionTable(t *testing.T) {
	out := inspectionTable([]domain.Inspection{{
		Rank:     1,
		Chunk:    domain.Chunk{ID: "motion:00002", Start: 200, End: 300, Text: "standard of review"},
		RawScore: 0.81234,
		Score:    0.9,
	}})
	assert.Contains(t, out, "motion:00002")
	assert.Contains(t, out, "0.8123")
	assert.Contains(t, out, "200-300")
}
