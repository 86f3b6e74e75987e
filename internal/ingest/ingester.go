// Package ingest plans and applies ingestion of raw files into the shared
// inventory database. Each source type is an Ingester; the Dispatcher runs
// the plan/prune/apply sequence for one of them under the database lock.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pooledinv/internal/db"
	"pooledinv/internal/vocab"
)

var (
	// ErrDatabaseMissing is returned when the database file does not exist.
	ErrDatabaseMissing = errors.New("database file does not exist")
	// ErrInvalidInput is returned for unusable input files or an unknown source type.
	ErrInvalidInput = errors.New("invalid input")
)

// Plan is the read-only outcome of comparing inputs with the database.
type Plan struct {
	New []string `json:"new"`
	// AlreadyIngested counts inputs whose identity is already registered.
	// For vocabulary it is the current total vocabulary row count.
	AlreadyIngested int64 `json:"already_ingested"`
}

// PruneCandidate is a source whose raw file is no longer in the raw directory.
type PruneCandidate struct {
	SourceID        string `json:"source_id"`
	FileName        string `json:"file_name"`
	DateImportedUTC string `json:"date_imported_utc"`
}

func (c PruneCandidate) String() string {
	id := c.SourceID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s  %s  (imported %s)", id, c.FileName, c.DateImportedUTC)
}

// PruneSummary totals a prune apply.
type PruneSummary struct {
	Deleted             []db.DeleteSummary `json:"deleted"`
	SourcesDeleted      int64              `json:"sources_deleted"`
	ObservationsDeleted int64              `json:"observations_deleted"`
	Note                string             `json:"note,omitempty"`
}

// RowsDeleted is sources plus observations removed.
func (s PruneSummary) RowsDeleted() int64 { return s.SourcesDeleted + s.ObservationsDeleted }

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Path         string `json:"path"`
	SourceID     string `json:"source_id"`
	RowsInserted int64  `json:"rows_inserted"`
	Skipped      string `json:"skipped,omitempty"` // reason the file was not written
}

// ApplySummary totals an ingest apply.
type ApplySummary struct {
	Files        []FileResult    `json:"files"`
	RowsInserted int64           `json:"rows_inserted"`
	Mode         vocab.Mode      `json:"mode,omitempty"`
	Vocab        *db.VocabCounts `json:"vocab_counts,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// Ingester is implemented by every source type.
type Ingester interface {
	Type() string
	// Scan lists candidate input files in rawDir.
	Scan(rawDir string) ([]string, error)
	// Plan decides which inputs are new. It never writes.
	Plan(ctx context.Context, d *db.DB, rawDir string, inputs []string) (Plan, error)
	// PrunePreview lists sources whose raw file has gone. It never writes.
	PrunePreview(ctx context.Context, d *db.DB, rawDir string) ([]PruneCandidate, error)
	// PruneApply deletes the sources PrunePreview reports.
	PruneApply(ctx context.Context, d *db.DB, rawDir string) (PruneSummary, error)
	// Apply ingests files. On error the summary covers what was written before the failure.
	Apply(ctx context.Context, d *db.DB, rawDir string, files []string) (ApplySummary, error)
}

// Options configures a constructed Ingester.
type Options struct {
	Mode vocab.Mode // vocabulary write mode; replace_all when empty
	Log  *zap.SugaredLogger
}

type factory func(Options) Ingester

var registry = map[string]factory{
	VocabType: func(o Options) Ingester { return newVocabIngester(o) },
	"showroom": func(o Options) Ingester {
		return newInventoryIngester("showroom", []string{".xlsx"}, o)
	},
	"survey": func(o Options) Ingester {
		return newInventoryIngester("survey", []string{".xlsx", ".csv"}, o)
	},
}

// Types returns the registered source types, sorted.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New constructs the Ingester for sourceType.
func New(sourceType string, opts Options) (Ingester, error) {
	f, ok := registry[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown source type '%s' (choose from %s): %w",
			sourceType, strings.Join(Types(), ", "), ErrInvalidInput)
	}
	return f(opts), nil
}
