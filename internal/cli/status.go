package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"legalrag/internal/adapter/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is indexed",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	path := cfg.StorePath(GetRootDir())

	st, err := openStore(cfg, GetRootDir(), false)
	if err != nil {
		return err
	}
	defer st.Close()

	docs, err := st.ListDocuments()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index:     %s", path)
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, " (%s)", humanize.Bytes(uint64(info.Size())))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Documents: %s\n", humanize.Comma(int64(len(docs))))
	fmt.Fprintf(out, "Passages:  %s\n", humanize.Comma(int64(st.Count())))
	fmt.Fprintf(out, "Dimension: %d\n", st.Dimension())

	if stale, reason, err := st.NeedsRebuild(cfg); err == nil && stale {
		fmt.Fprintf(out, "Stale:     %s\n", reason)
	} else if info, err := st.GetSchemaInfo(); err == nil && info.Version != store.CurrentSchemaVersion {
		fmt.Fprintf(out, "Schema:    v%d (current v%d)\n", info.Version, store.CurrentSchemaVersion)
	}

	if len(docs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tCASE\tTYPE\tCHUNKS\tINDEXED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			d.ID, d.Metadata.CaseName, d.Metadata.DocumentType, d.ChunkCount, humanize.Time(d.IndexedAt))
	}
	return tw.Flush()
}
