package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestDB creates a file-backed SQLite database with the full schema.
// A file is used rather than :memory: so every pooled connection sees the same data.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := CreateDB(context.Background(), filepath.Join(t.TempDir(), "pooled_inventory.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// setupBareDB opens an empty database and runs ddl instead of Schema.
func setupBareDB(t *testing.T, ddl string) *DB {
	t.Helper()
	d, err := OpenDB(filepath.Join(t.TempDir(), "bare.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if ddl != "" {
		if _, err := d.conn.Exec(ddl); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func insertSource(t *testing.T, d *DB, id, sourceType string, nObs int) {
	t.Helper()
	obs := make([]Observation, nObs)
	for i := range obs {
		obs[i] = Observation{
			ItemDescription: fmt.Sprintf("item %d", i),
			Count:           Ptr(1.0),
		}
	}
	n, err := d.InsertSourceWithObservations(context.Background(), Source{
		SourceID:        id,
		DataSourceType:  sourceType,
		FileName:        id + ".xlsx",
		FilePath:        "/raw/" + id + ".xlsx",
		DateImportedUTC: UTCNow(),
	}, obs)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(nObs) {
		t.Fatalf("inserted %d observations, want %d", n, nObs)
	}
}

func countRows(t *testing.T, d *DB, table string) int64 {
	t.Helper()
	var n int64
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestDeleteBySourceID_CountsAndIdempotent(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	insertSource(t, d, "aaa", "showroom", 4)
	insertSource(t, d, "bbb", "showroom", 2)

	got, err := d.DeleteBySourceID(ctx, "aaa")
	if err != nil {
		t.Fatal(err)
	}
	if got.ObservationsDeleted != 4 || got.SourcesDeleted != 1 {
		t.Errorf("first delete = %+v, want 4 observations and 1 source", got)
	}

	again, err := d.DeleteBySourceID(ctx, "aaa")
	if err != nil {
		t.Fatal(err)
	}
	if again.ObservationsDeleted != 0 || again.SourcesDeleted != 0 {
		t.Errorf("second delete = %+v, want zero counts", again)
	}

	if n := countRows(t, d, "inventory_observations"); n != 2 {
		t.Errorf("other source's observations touched: %d left, want 2", n)
	}
}

func TestDeleteBySourceID_KeepsIngestLog(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	insertSource(t, d, "aaa", "survey", 1)
	if err := d.RecordRun(ctx, IngestLogEntry{SourceID: Ptr("aaa"), Action: Ptr(ActionIngest)}); err != nil {
		t.Fatal(err)
	}

	if _, err := d.DeleteBySourceID(ctx, "aaa"); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, d, "ingest_log"); n != 1 {
		t.Errorf("ingest_log rows = %d, want 1", n)
	}
}

func TestForeignKeyCascade(t *testing.T) {
	d := setupTestDB(t)
	insertSource(t, d, "aaa", "survey", 3)

	if _, err := d.conn.Exec("DELETE FROM sources WHERE source_id = 'aaa'"); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, d, "inventory_observations"); n != 0 {
		t.Errorf("cascade left %d observations", n)
	}
}

func TestInsertSourceWithObservations_RollsBackOnFailure(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	insertSource(t, d, "aaa", "survey", 1)

	// Re-inserting the same source_id violates the primary key.
	_, err := d.InsertSourceWithObservations(ctx, Source{
		SourceID: "aaa", DataSourceType: "survey", DateImportedUTC: UTCNow(),
	}, []Observation{{ItemDescription: "x"}})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
	if n := countRows(t, d, "inventory_observations"); n != 1 {
		t.Errorf("observations = %d after failed insert, want 1", n)
	}
}

func TestExistingSourceIDs_ByType(t *testing.T) {
	d := setupTestDB(t)
	insertSource(t, d, "s1", "showroom", 0)
	insertSource(t, d, "s2", "showroom", 0)
	insertSource(t, d, "v1", "survey", 0)

	ids, err := d.ExistingSourceIDs(context.Background(), "showroom")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || !ids["s1"] || !ids["s2"] || ids["v1"] {
		t.Errorf("got %v, want s1 and s2 only", ids)
	}

	sources, err := d.SourcesByType(context.Background(), "survey")
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || sources[0].FilePath != "/raw/v1.xlsx" {
		t.Errorf("SourcesByType(survey) = %+v", sources)
	}
}

func TestGetSource(t *testing.T) {
	d := setupTestDB(t)
	insertSource(t, d, "s1", "showroom", 2)

	s, err := d.GetSource(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || s.FileName != "s1.xlsx" || s.Notes != nil {
		t.Errorf("GetSource(s1) = %+v", s)
	}

	missing, err := d.GetSource(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Errorf("GetSource(nope) = %v, %v; want nil, nil", missing, err)
	}

	obs, err := d.ObservationsForSource(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 || obs[0].Count == nil || *obs[0].Count != 1.0 {
		t.Errorf("ObservationsForSource = %+v", obs)
	}
}

func TestRecordRun_CurrentSchema(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	err := d.RecordRun(ctx, IngestLogEntry{
		RunID:        Ptr("run-1"),
		SourceID:     Ptr("abc"),
		Action:       Ptr(ActionIngest),
		Status:       Ptr(StatusSuccess),
		FileName:     Ptr("a.xlsx"), // no such column; ignored
		RowsInserted: Ptr(int64(12)),
	})
	if err != nil {
		t.Fatal(err)
	}

	runs, err := d.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || *runs[0].Action != ActionIngest || *runs[0].SourceID != "abc" {
		t.Errorf("RecentRuns = %+v", runs)
	}
	var runID string
	if err := d.conn.QueryRow("SELECT run_id FROM ingest_log").Scan(&runID); err != nil || runID != "run-1" {
		t.Errorf("run_id = %q, %v", runID, err)
	}
}

func TestRecordRun_OlderSchemaWithoutRunID(t *testing.T) {
	d := setupBareDB(t, `CREATE TABLE ingest_log (
		ingest_id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT, action TEXT, status TEXT, message TEXT
	)`)
	err := d.RecordRun(context.Background(), IngestLogEntry{
		RunID:   Ptr("run-1"),
		Action:  Ptr(ActionPrune),
		Status:  Ptr(StatusSuccess),
		Message: Ptr("pruned 2"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, d, "ingest_log"); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestRecordRun_AlternateColumnNames(t *testing.T) {
	d := setupBareDB(t, `CREATE TABLE ingest_log (date_started_utc TEXT, notes TEXT)`)
	err := d.RecordRun(context.Background(), IngestLogEntry{
		StartedUTC: Ptr("2026-10-16T09:00:00Z"),
		Message:    Ptr("hello"),
	})
	if err != nil {
		t.Fatal(err)
	}
	var started, notes string
	if err := d.conn.QueryRow("SELECT date_started_utc, notes FROM ingest_log").Scan(&started, &notes); err != nil {
		t.Fatal(err)
	}
	if started != "2026-10-16T09:00:00Z" || notes != "hello" {
		t.Errorf("got %q, %q", started, notes)
	}
}

func TestRecordRun_SchemaMismatch(t *testing.T) {
	t.Run("missing table", func(t *testing.T) {
		d := setupBareDB(t, "")
		err := d.RecordRun(context.Background(), IngestLogEntry{Action: Ptr(ActionIngest)})
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("error should say table not found, got: %v", err)
		}
	})

	t.Run("no overlapping columns", func(t *testing.T) {
		d := setupBareDB(t, "CREATE TABLE ingest_log (something_else TEXT)")
		err := d.RecordRun(context.Background(), IngestLogEntry{Action: Ptr(ActionIngest)})
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
		if !strings.Contains(err.Error(), "something_else") {
			t.Errorf("error should list table columns, got: %v", err)
		}
	})

	t.Run("only nil values overlap", func(t *testing.T) {
		d := setupBareDB(t, "CREATE TABLE ingest_log (action TEXT)")
		err := d.RecordRun(context.Background(), IngestLogEntry{Status: Ptr(StatusFailed)})
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})
}

func TestHasColumn(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	tests := []struct {
		table, column string
		want          bool
	}{
		{"ingest_log", "run_id", true},
		{"ingest_log", "file_name", false},
		{"sources", "date_imported_utc", true},
		{"no_such_table", "x", false},
	}
	for _, tt := range tests {
		got, err := d.HasColumn(ctx, tt.table, tt.column)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("HasColumn(%s, %s) = %v, want %v", tt.table, tt.column, got, tt.want)
		}
	}
}

func TestCounts(t *testing.T) {
	d := setupTestDB(t)
	insertSource(t, d, "aaa", "survey", 3)

	counts, err := d.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	byTable := make(map[string]int64)
	for _, c := range counts {
		if c.Err != nil {
			t.Errorf("counting %s: %v", c.Table, c.Err)
		}
		byTable[c.Table] = c.Rows
	}
	if byTable["sources"] != 1 || byTable["inventory_observations"] != 3 || byTable["room_type"] != 0 {
		t.Errorf("counts = %v", byTable)
	}
}

func TestFormatUTC(t *testing.T) {
	got := UTCNow()
	if !strings.HasSuffix(got, "Z") || strings.Contains(got, ".") {
		t.Errorf("UTCNow() = %q, want second precision Z suffix", got)
	}
}

func journalMode(t *testing.T, d *DB) string {
	t.Helper()
	var mode string
	if err := d.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	return strings.ToLower(mode)
}

func TestOpenDB_LeavesJournalModeAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.sqlite")
	d, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.conn.Exec("CREATE TABLE sources (source_id TEXT PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	d.Close()

	d, err = OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if _, err := d.Counts(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := journalMode(t, d); got != "delete" {
		t.Errorf("journal_mode after open = %q, want delete", got)
	}
}

func TestCreateDB_UsesWAL(t *testing.T) {
	d := setupTestDB(t)
	if got := journalMode(t, d); got != "wal" {
		t.Errorf("journal_mode = %q, want wal", got)
	}
}
