package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pooledinv/internal/ingest"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <source-id>",
	Short: "Delete one source and its observations (under the database lock)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := ResolveDB()
		if err != nil {
			return err
		}
		dp := &ingest.Dispatcher{Log: log, Exclusive: true}
		summary, err := dp.Delete(cmd.Context(), path, args[0])
		if err != nil {
			return err
		}
		if summary.SourcesDeleted == 0 {
			fmt.Printf("No source with id %s\n", args[0])
			return nil
		}
		fmt.Printf("Deleted source %s and %d observation(s)\n", args[0], summary.ObservationsDeleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
