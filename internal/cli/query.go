package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"legalrag/internal/adapter/analyzer"
	"legalrag/internal/adapter/retriever"
	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/usecase"
)

var (
	queryText  string
	queryTopK  int
	queryJSON  bool
	queryDebug bool
	queryDocs  []string
	queryType  string
	queryCase  string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve passages relevant to a question",
	Long: `Embed the question, rank the indexed passages by cosine similarity and
apply the configured re-ranking. Each passage is printed in full with the
document, case and page it came from.

With --debug, the ranked candidates are shown as a table with their raw
similarity next to their final score.

Examples:
  legalrag query -q "personal jurisdiction over the defendant"
  legalrag query -q "standard of review" --top-k 10 --json
  legalrag query -q "damages" --doc motion_to_dismiss --doc reply_brief
  legalrag query -q "spoliation" --type order --debug`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question to retrieve passages for (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of passages (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryDebug, "debug", false, "show ranked candidates with raw scores")
	queryCmd.Flags().StringArrayVar(&queryDocs, "doc", nil, "restrict to a document ID (repeatable)")
	queryCmd.Flags().StringVar(&queryType, "type", "", "restrict to a document type")
	queryCmd.Flags().StringVar(&queryCase, "case", "", "restrict to a case name")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	st, err := openStore(cfg, GetRootDir(), false)
	if err != nil {
		return err
	}
	defer st.Close()

	if stale, reason, err := st.NeedsRebuild(cfg); err == nil && stale {
		logger.Warn("index is stale (%s); run 'legalrag index' to rebuild", reason)
	}

	embedder, err := newQueryEmbedder(cfg)
	if err != nil {
		return err
	}

	tokenizer := analyzer.NewTokenizer()
	retrieveUC := usecase.NewRetrieveUseCase(
		retriever.NewSemanticSearcher(st, embedder),
		retriever.NewReranker(cfg.Retrieve, tokenizer),
		tokenizer,
		st,
		cfg.Retrieve.CandidateMultiplier,
	)

	topK := cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}
	filter := domain.Filter{
		DocumentIDs:  queryDocs,
		DocumentType: queryType,
		CaseName:     queryCase,
	}

	out := cmd.OutOrStdout()
	if queryDebug {
		results, err := retrieveUC.Inspect(cmd.Context(), queryText, topK, filter)
		if err != nil {
			return queryError(out, err, emptyJSON(queryJSON, []domain.Inspection{}))
		}
		if queryJSON {
			return writeJSON(out, results)
		}
		fmt.Fprintln(out, inspectionTable(results))
		return nil
	}

	bundle, err := retrieveUC.Retrieve(cmd.Context(), queryText, topK, filter)
	if err != nil {
		return queryError(out, err, emptyJSON(queryJSON, &domain.ContextBundle{Query: queryText, Passages: []domain.Passage{}}))
	}
	if queryJSON {
		return writeJSON(out, bundle)
	}
	writeBundle(out, bundle)
	return nil
}

// queryError maps "no results" to an empty answer and passes failures
// through. A non-nil empty is written as JSON; otherwise a message is printed.
func queryError(w io.Writer, err error, empty any) error {
	if errors.Is(err, domain.ErrEmptyStore) {
		if empty != nil {
			return writeJSON(w, empty)
		}
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return fmt.Errorf("%w\nthe configured embedding model does not match the index; run 'legalrag index' to rebuild", err)
	}
	return fmt.Errorf("search failed: %w", err)
}

// emptyJSON returns v when JSON output is on, nil otherwise.
func emptyJSON(on bool, v any) any {
	if !on {
		return nil
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
