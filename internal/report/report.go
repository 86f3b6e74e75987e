// Package report prints ingest plans and outcomes for the console.
package report

import (
	"fmt"
	"io"

	"pooledinv/internal/config"
	"pooledinv/internal/ingest"
)

// ListLimit is how many entries List prints before summarising the rest.
const ListLimit = 20

// FormatDurationShort formats milliseconds into a compact human-readable string.
//
//	<1000ms  -> "0.Xs"
//	<60000ms -> "X.Xs"
//	<3600000 -> "XmYs"
//	else     -> "XhYm"
func FormatDurationShort(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("0.%ds", ms/100)
	case ms < 60000:
		return fmt.Sprintf("%d.%ds", ms/1000, (ms%1000)/100)
	case ms < 3600000:
		return fmt.Sprintf("%dm%ds", ms/60000, (ms%60000)/1000)
	default:
		return fmt.Sprintf("%dh%dm", ms/3600000, (ms%3600000)/60000)
	}
}

// TruncateMiddle shortens s by replacing the middle with "..." if it exceeds
// maxLen, keeping roughly equal portions of the start and end. Long paths
// stay recognisable by both their root and file name.
func TruncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	available := maxLen - 3
	firstHalf := (available + 1) / 2
	lastHalf := available / 2
	return s[:firstHalf] + "..." + s[len(s)-lastHalf:]
}

// List prints up to ListLimit items, indented, then "... (N more)".
func List[T any](w io.Writer, items []T) {
	for i, it := range items {
		if i == ListLimit {
			fmt.Fprintf(w, "  ... (%d more)\n", len(items)-ListLimit)
			return
		}
		fmt.Fprintf(w, "  %v\n", it)
	}
}

// Paths prints the resolved locations for a run.
func Paths(w io.Writer, sourceType string, p config.Paths) {
	fmt.Fprintln(w, "Resolved paths:")
	if p.Config != "" {
		fmt.Fprintf(w, "  CONFIG: %s\n", p.Config)
	}
	fmt.Fprintf(w, "  TYPE: %s\n", sourceType)
	fmt.Fprintf(w, "  DB:   %s\n", p.DBPath)
	fmt.Fprintf(w, "  RAW:  %s\n", p.RawDir)
}

// Plan prints what a run found and would do. It never reports writes.
func Plan(w io.Writer, res *ingest.Result, singleFile, prune, apply bool) {
	mode := "scan"
	if singleFile {
		mode = "single file"
	}
	fmt.Fprintf(w, "\nMode: %s\n", mode)
	fmt.Fprintf(w, "Found %d input file(s).\n", len(res.Inputs))

	fmt.Fprintf(w, "\nAlready ingested sources (%s): %d\n", res.Type, res.Plan.AlreadyIngested)
	fmt.Fprintf(w, "New files to ingest (%s): %d\n", res.Type, len(res.Plan.New))
	if len(res.Plan.New) > 0 {
		fmt.Fprintln(w, "\nWould ingest:")
		List(w, res.Plan.New)
	}

	if prune {
		fmt.Fprintf(w, "\nPrune candidates (missing raw file): %d\n", len(res.PruneCandidates))
		List(w, res.PruneCandidates)
		if len(res.PruneCandidates) > 0 && !apply {
			fmt.Fprintln(w, "\nDry-run: nothing deleted (use --prune --apply to delete).")
		}
	}
	if len(res.Plan.New) > 0 && !apply {
		fmt.Fprintln(w, "\nDry-run: ingestion not executed (use --apply to ingest).")
	}
}

// Applied prints the outcome of the write phase, if there was one.
func Applied(w io.Writer, res *ingest.Result, elapsedMS int64) {
	if res.Pruned != nil {
		p := res.Pruned
		if p.Note != "" {
			fmt.Fprintf(w, "\nPrune applied: %s\n", p.Note)
		} else {
			fmt.Fprintf(w, "\nPrune applied: %d source(s), %d observation(s) deleted\n",
				p.SourcesDeleted, p.ObservationsDeleted)
		}
	}
	if res.Ingested != nil {
		s := res.Ingested
		fmt.Fprint(w, "\nIngest applied: ")
		if s.Message != "" {
			fmt.Fprintln(w, s.Message)
		} else {
			fmt.Fprintf(w, "%d row(s)\n", s.RowsInserted)
		}
		var lines []string
		for _, f := range s.Files {
			line := fmt.Sprintf("%-40s %6d row(s)", TruncateMiddle(f.Path, 40), f.RowsInserted)
			if f.Skipped != "" {
				line = fmt.Sprintf("%-40s skipped: %s", TruncateMiddle(f.Path, 40), f.Skipped)
			}
			lines = append(lines, line)
		}
		List(w, lines)
	}
	if res.NeedsWrite {
		fmt.Fprintf(w, "\nRun %s finished in %s\n", shortID(res.RunID), FormatDurationShort(elapsedMS))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
