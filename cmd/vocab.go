package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pooledinv/internal/vocab"
)

var vocabForce bool

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Work with mapping_list.xlsx without touching the database",
}

var vocabCheckCmd = &cobra.Command{
	Use:   "check <mapping_list.xlsx>",
	Short: "Validate a vocabulary workbook and report its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := vocab.ReadWorkbook(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("OK: %d furniture_class, %d items, %d rooms\n", len(set.Classes), len(set.Items), len(set.Rooms))
		return nil
	},
}

var vocabTemplateCmd = &cobra.Command{
	Use:   "template <path>",
	Short: "Write an empty mapping_list.xlsx with the required sheets and headers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err == nil && !vocabForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", args[0])
		}
		if err := vocab.WriteTemplate(args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote template: %s\n", args[0])
		return nil
	},
}

func init() {
	vocabTemplateCmd.Flags().BoolVar(&vocabForce, "force", false, "Overwrite an existing file")
	vocabCmd.AddCommand(vocabCheckCmd, vocabTemplateCmd)
	rootCmd.AddCommand(vocabCmd)
}
