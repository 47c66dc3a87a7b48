package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"legalrag/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// writeBundle prints every passage in full under a provenance header.
func writeBundle(w io.Writer, bundle *domain.ContextBundle) {
	fmt.Fprintf(w, "Found %d passages for: %s\n\n", len(bundle.Passages), bundle.Query)
	for _, p := range bundle.Passages {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("--- [%d] %s ---", p.Rank, passageSource(p))))
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s  chars %d-%d  score %.4f", p.ChunkID, p.Start, p.End, p.Score)))
		fmt.Fprintln(w, p.Text)
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("~%d tokens", bundle.TokenEstimate)))
}

func passageSource(p domain.Passage) string {
	parts := []string{p.Filename}
	if p.Filename == "" {
		parts[0] = p.DocID
	}
	if p.CaseName != "" {
		parts = append(parts, p.CaseName)
	}
	if p.Page > 0 {
		parts = append(parts, "p. "+strconv.Itoa(p.Page))
	}
	return strings.Join(parts, ", ")
}

// inspectionTable renders ranked candidates with their raw similarity.
func inspectionTable(results []domain.Inspection) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("RANK", "CHUNK", "RAW", "SCORE", "SPAN", "PREVIEW")
	for _, r := range results {
		t.Row(
			strconv.Itoa(r.Rank),
			r.Chunk.ID,
			fmt.Sprintf("%.4f", r.RawScore),
			fmt.Sprintf("%.4f", r.Score),
			fmt.Sprintf("%d-%d", r.Chunk.Start, r.Chunk.End),
			preview(r.Chunk.Text, 60),
		)
	}
	return t.String()
}

// preview flattens whitespace and cuts text to n runes for table display.
func preview(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n-1]) + "…"
}
