package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pooledinv/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database file and schema (safe to re-run)",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := ResolveDB()
		if err != nil {
			return err
		}
		d, err := db.CreateDB(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer d.Close()

		log.Infow("schema applied", "db", path)
		fmt.Printf("Database ready: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
