package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document_id>",
	Short: "Remove a document from the index",
	Long: `Remove every passage of a document from the index. Deleting a document
that is not indexed does nothing.

Example:
  legalrag delete exhibits/deposition_smith`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore(GetConfig(), GetRootDir(), false)
	if err != nil {
		return err
	}
	defer st.Close()

	before := st.Count()
	if err := st.DeleteDocument(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d passages)\n", args[0], before-st.Count())
	return nil
}
