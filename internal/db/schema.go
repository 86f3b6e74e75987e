package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Schema creates every table and index used by the ingesters. Statements are
// idempotent so InitSchema can run against an existing database.
const Schema = `
-- One row per ingested raw file; source_id is the SHA-256 of the file bytes
CREATE TABLE IF NOT EXISTS sources (
    source_id TEXT PRIMARY KEY,
    data_source_type TEXT NOT NULL,
    source_description TEXT,
    source_org TEXT,
    file_name TEXT,
    file_path TEXT,
    url TEXT,
    date_collected TEXT,
    date_imported_utc TEXT NOT NULL,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_sources_data_source_type ON sources (data_source_type);

-- Extracted line items; removed with their source
CREATE TABLE IF NOT EXISTS inventory_observations (
    obs_id INTEGER PRIMARY KEY,
    source_id TEXT NOT NULL,
    room_type TEXT,
    item_description TEXT NOT NULL,
    item_name TEXT,
    count REAL,
    furniture_class TEXT,
    notes TEXT,
    FOREIGN KEY (source_id) REFERENCES sources(source_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_inv_source ON inventory_observations (source_id);
CREATE INDEX IF NOT EXISTS idx_inv_room ON inventory_observations (room_type);
CREATE INDEX IF NOT EXISTS idx_inv_item_name ON inventory_observations (item_name);
CREATE INDEX IF NOT EXISTS idx_inv_furniture_class ON inventory_observations (furniture_class);

-- Controlled vocabulary, sheet "item_name" of mapping_list.xlsx
CREATE TABLE IF NOT EXISTS item_dictionary (
    item_name TEXT PRIMARY KEY,
    item_description TEXT NOT NULL,
    item_mass REAL,
    furniture_class TEXT,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_item_dict_furniture_class ON item_dictionary (furniture_class);

-- Controlled vocabulary, sheet "furniture_class"
CREATE TABLE IF NOT EXISTS furniture_class (
    furniture_class TEXT PRIMARY KEY,
    furniture_description TEXT,
    class_contains TEXT,
    kgC_kg REAL,
    ratio_fossil REAL,
    ratio_biog REAL,
    notes TEXT
);

-- Controlled vocabulary, sheet "room_type"
CREATE TABLE IF NOT EXISTS room_type (
    room_type TEXT PRIMARY KEY,
    notes TEXT
);

-- Append-only audit trail
CREATE TABLE IF NOT EXISTS ingest_log (
    ingest_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    source_id TEXT,
    data_source_type TEXT,
    action TEXT,
    status TEXT,
    message TEXT,
    started_utc TEXT,
    finished_utc TEXT,
    rows_inserted INTEGER,
    rows_deleted INTEGER
);
`

// InitSchema switches the file to WAL mode and applies Schema.
func (d *DB) InitSchema(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := d.conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// CreateDB creates the parent directories and a database file at path with
// the full schema, returning the open handle.
func CreateDB(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	d, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
