package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"legalrag/internal/adapter/chunker"
	"legalrag/internal/adapter/embedding"
	"legalrag/internal/adapter/fs"
	"legalrag/internal/adapter/store"
	"legalrag/internal/logger"
	"legalrag/internal/port"
	"legalrag/internal/usecase"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents for retrieval",
	Long: `Index the documents in the specified directory for later retrieval.
Plain text, Markdown and JSON element files are read; a sibling
<file>.meta.yaml supplies case name, date and document type.
The index is stored in .legalrag/index.db within the target directory.

Unchanged documents are skipped, and documents removed from the directory
are removed from the index.

Examples:
  legalrag index .                # Index current directory
  legalrag index /path/to/case    # Index specific directory
  legalrag index . --rebuild      # Discard the index and start over`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "clear the index before indexing")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()

	st, err := openStore(cfg, path, true)
	if err != nil {
		return err
	}
	defer st.Close()

	migrationResult, err := st.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	switch {
	case indexRebuild:
		fmt.Println("Clearing existing index...")
		if err := st.Clear(); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	case migrationResult.NeedsRebuild:
		fmt.Printf("Index rebuild required: %s\n", migrationResult.Reason)
		fmt.Println("Clearing existing index...")
		if err := st.Clear(); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	case migrationResult.NeedsMigration:
		logger.Debug("schema migration: %s", migrationResult.Reason)
	}
	if err := st.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}

	chk, err := chunker.New(cfg.Index.Strategy, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return err
	}
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	source := fs.NewDirectorySource(path, cfg.Index.Includes, cfg.Index.Excludes)

	indexUC := usecase.NewIndexUseCase(source, chk, embedder, st, usecase.IndexOptions{
		BatchSize:     cfg.Embedding.BatchSize,
		Concurrency:   cfg.Embedding.Concurrency,
		MinChunkChars: cfg.Index.MinChunkChars,
		ConfigHash:    store.ComputeConfigHash(cfg),
	})

	fmt.Printf("Scanning %s...\n", path)
	logger.Debug("embedding with %s (%s, dimension %d)", cfg.Embedding.Provider, embedder.ModelName(), embedder.Dimension())

	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
		processed int
	)
	indexUC.OnDocument = func(ref port.DocumentRef, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}

		processed++
		bar.Set(processed)

		elapsed := time.Since(startTime)
		if rate := float64(processed) / elapsed.Seconds(); rate > 0 {
			eta := time.Duration(float64(total-processed)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
		}
	}

	result, err := indexUC.Index(cmd.Context())
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Documents indexed: %d\n", result.DocsIndexed)
	fmt.Printf("  Documents skipped: %d (unchanged)\n", result.DocsSkipped)
	fmt.Printf("  Documents deleted: %d (removed)\n", result.DocsDeleted)
	fmt.Printf("  Chunks created:    %d\n", result.ChunksCreated)
	if result.ChunksSkipped > 0 {
		fmt.Printf("  Chunks skipped:    %d (too short)\n", result.ChunksSkipped)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nIndex stored at: %s\n", cfg.StorePath(path))
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
