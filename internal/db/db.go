package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSchemaMismatch is returned when a table is missing or shares no columns
// with the fields being written.
var ErrSchemaMismatch = errors.New("schema mismatch")

// DB wraps the shared SQLite database file. It is the single resource handle
// passed to every component; nothing in this module holds a global connection.
type DB struct {
	conn *sql.DB
	Path string

	mu      sync.Mutex
	columns map[string]map[string]bool // table -> column set, resolved once per handle
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenDB opens a SQLite database with foreign keys enabled. Foreign keys are
// set through the DSN so every pooled connection gets them. The journal mode
// is persistent in the file and is only changed by InitSchema.
func OpenDB(path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &DB{conn: conn, Path: path}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// withTx runs fn inside a transaction. Any error or panic rolls back every
// write made by fn; otherwise the transaction commits atomically.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// tableColumns returns the column set for table, querying PRAGMA table_info on
// first use and caching the result. A missing table yields an empty set.
func (d *DB) tableColumns(ctx context.Context, q querier, table string) (map[string]bool, error) {
	d.mu.Lock()
	cols, ok := d.columns[table]
	d.mu.Unlock()
	if ok {
		return cols, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("inspecting table %s: %w", table, err)
	}
	defer rows.Close()

	cols = make(map[string]bool)
	for rows.Next() {
		// cid, name, type, notnull, dflt_value, pk
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Only cache tables that exist, so a table created later in the same
	// process (InitSchema) is picked up.
	if len(cols) > 0 {
		d.mu.Lock()
		if d.columns == nil {
			d.columns = make(map[string]map[string]bool)
		}
		d.columns[table] = cols
		d.mu.Unlock()
	}
	return cols, nil
}

// HasColumn reports whether table currently has the named column.
func (d *DB) HasColumn(ctx context.Context, table, column string) (bool, error) {
	cols, err := d.tableColumns(ctx, d.conn, table)
	if err != nil {
		return false, err
	}
	return cols[column], nil
}

// field is one candidate column/value pair for a schema-tolerant insert.
// A nil value is never written.
type field struct {
	col string
	val any
}

// insertRow inserts only those fields whose column exists in table and whose
// value is non-nil. Extra fields are ignored so writers keep working as the
// schema evolves.
func (d *DB) insertRow(ctx context.Context, q querier, table string, fields []field) (sql.Result, error) {
	cols, err := d.tableColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table '%s' not found in database: %w", table, ErrSchemaMismatch)
	}

	var (
		names []string
		args  []any
	)
	for _, f := range fields {
		if !cols[f.col] || isNil(f.val) {
			continue
		}
		names = append(names, quoteIdent(f.col))
		args = append(args, f.val)
	}
	if len(names) == 0 {
		provided := make([]string, len(fields))
		for i, f := range fields {
			provided[i] = f.col
		}
		sort.Strings(provided)
		return nil, fmt.Errorf("table '%s' exists but none of the provided fields match its columns.\nProvided keys: %v\nTable columns: %v: %w",
			table, provided, sortedKeys(cols), ErrSchemaMismatch)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), placeholders)
	return q.ExecContext(ctx, stmt, args...)
}

func isNil(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *string:
		return x == nil
	case *int64:
		return x == nil
	case *float64:
		return x == nil
	}
	return false
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TableCount is the row count of one table.
type TableCount struct {
	Table string
	Rows  int64
	Err   error // set when the table could not be counted
}

// Counts returns every user table with its row count, ordered by name.
func (d *DB) Counts(ctx context.Context) ([]TableCount, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]TableCount, 0, len(tables))
	for _, t := range tables {
		tc := TableCount{Table: t}
		tc.Err = d.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(t))).Scan(&tc.Rows)
		result = append(result, tc)
	}
	return result, nil
}

// UTCNow returns the current time as an ISO-8601 UTC string with second
// precision, e.g. "2026-10-16T09:30:00Z".
func UTCNow() string {
	return FormatUTC(time.Now())
}

// FormatUTC formats t the way timestamps are stored in the database.
func FormatUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Ptr returns a pointer to the given value. Useful for optional struct fields.
func Ptr[T any](v T) *T {
	return &v
}
