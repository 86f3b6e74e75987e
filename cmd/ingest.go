package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pooledinv/internal/ingest"
	"pooledinv/internal/report"
	"pooledinv/internal/vocab"
)

var (
	ingestType     string
	ingestScan     bool
	ingestFile     string
	ingestPrune    bool
	ingestApply    bool
	ingestMode     string
	ingestRaw      string
	ingestAdvisory bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Plan, and with --apply perform, ingestion of raw files for one source type",
	Long: `Compares the raw directory (or a single --file) with the database and
reports which inputs are new. With --prune, also lists sources whose raw file
has been removed. Nothing is written unless --apply is given; writes happen
under the database lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := vocab.ParseMode(ingestMode)
		if err != nil {
			return err
		}
		if _, err := ingest.New(ingestType, ingest.Options{}); err != nil {
			return err
		}

		paths, err := ResolvePaths(ingestType, ingestRaw)
		if err != nil {
			return err
		}
		report.Paths(os.Stdout, ingestType, paths)

		dp := &ingest.Dispatcher{
			Log:       log,
			Exclusive: !ingestAdvisory,
			OnPlan: func(r *ingest.Result) {
				report.Plan(os.Stdout, r, ingestFile != "", ingestPrune, ingestApply)
			},
		}
		start := time.Now()
		res, err := dp.Run(cmd.Context(), ingest.Request{
			Type:   ingestType,
			DBPath: paths.DBPath,
			RawDir: paths.RawDir,
			File:   ingestFile,
			Prune:  ingestPrune,
			Apply:  ingestApply,
			Mode:   mode,
		})
		if err != nil {
			return err
		}
		report.Applied(os.Stdout, res, time.Since(start).Milliseconds())
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestType, "type", "", fmt.Sprintf("Raw data type to ingest (%s)", strings.Join(ingest.Types(), ", ")))
	ingestCmd.Flags().BoolVar(&ingestScan, "scan", false, "Scan the raw directory and ingest all new files")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "Ingest a single file (full path)")
	ingestCmd.Flags().BoolVar(&ingestPrune, "prune", false, "Find sources whose raw file is missing from the raw folder (delete with --apply)")
	ingestCmd.Flags().BoolVar(&ingestApply, "apply", false, "Apply pruning and ingestion; without it the run is a dry run")
	ingestCmd.Flags().StringVar(&ingestMode, "mode", string(vocab.ModeReplaceAll), "Vocabulary write mode: replace_all or upsert")
	ingestCmd.Flags().StringVar(&ingestRaw, "raw", "", "Raw directory; overrides the profile's paths.<type>.rel_raw")
	ingestCmd.Flags().BoolVar(&ingestAdvisory, "advisory-lock", false, "Write the lock marker without an exclusive create")
	ingestCmd.MarkFlagRequired("type")
	ingestCmd.MarkFlagsMutuallyExclusive("scan", "file")
	ingestCmd.MarkFlagsOneRequired("scan", "file")
	rootCmd.AddCommand(ingestCmd)
}
