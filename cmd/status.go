package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pooledinv/internal/db"
	"pooledinv/internal/ingest"
	"pooledinv/internal/lock"
)

var (
	statusJSON bool
	statusRuns int
)

type statusReport struct {
	Path   string        `json:"path"`
	Size   int64         `json:"size_bytes"`
	Tables []tableStatus `json:"tables"`
	Lock   *lockStatus   `json:"lock,omitempty"`
	Runs   []db.LogRow   `json:"recent_runs,omitempty"`
}

type tableStatus struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
	Error string `json:"error,omitempty"`
}

type lockStatus struct {
	Holder  string    `json:"holder"`
	Locked  time.Time `json:"locked_utc"`
	Purpose string    `json:"purpose,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database size, per-table row counts, the lock holder and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := ResolveDB()
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ingest.ErrDatabaseMissing, path)
		}
		if err != nil {
			return err
		}

		d, err := db.OpenDB(path)
		if err != nil {
			return err
		}
		defer d.Close()

		rep := statusReport{Path: path, Size: info.Size()}
		counts, err := d.Counts(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range counts {
			ts := tableStatus{Table: c.Table, Rows: c.Rows}
			if c.Err != nil {
				ts.Error = c.Err.Error()
			}
			rep.Tables = append(rep.Tables, ts)
		}

		marker, held, err := lock.Read(lock.DefaultPath(path))
		if err != nil {
			return err
		}
		if held {
			rep.Lock = &lockStatus{Holder: marker.Holder, Locked: marker.Locked, Purpose: marker.Purpose}
		}

		if statusRuns > 0 {
			if ok, _ := d.HasColumn(cmd.Context(), "ingest_log", "finished_utc"); ok {
				rep.Runs, err = d.RecentRuns(cmd.Context(), statusRuns)
				if err != nil {
					log.Warnw("could not read ingest_log", "error", err)
				}
			}
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		printStatus(rep)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent ingest_log entries to show")
	rootCmd.AddCommand(statusCmd)
}

func printStatus(rep statusReport) {
	fmt.Printf("DB path: %s\n", rep.Path)
	fmt.Printf("DB size: %s\n", humanize.IBytes(uint64(rep.Size)))

	fmt.Println("\nRow counts:")
	for _, t := range rep.Tables {
		if t.Error != "" {
			fmt.Printf("  %s: (could not count) %s\n", t.Table, t.Error)
			continue
		}
		fmt.Printf("  %s: %s\n", t.Table, humanize.Comma(t.Rows))
	}

	if rep.Lock != nil {
		fmt.Printf("\nLocked by %s", rep.Lock.Holder)
		if !rep.Lock.Locked.IsZero() {
			fmt.Printf(" (%s)", humanize.Time(rep.Lock.Locked))
		}
		if rep.Lock.Purpose != "" {
			fmt.Printf(": %s", rep.Lock.Purpose)
		}
		fmt.Println()
	} else {
		fmt.Println("\nNot locked")
	}

	if len(rep.Runs) > 0 {
		fmt.Println("\nRecent runs:")
		for _, r := range rep.Runs {
			fmt.Printf("  #%d %-7s %-8s %-9s %s  %s\n", r.IngestID, deref(r.Action), deref(r.DataSourceType),
				deref(r.Status), deref(r.FinishedUTC), deref(r.Message))
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
