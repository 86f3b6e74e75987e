package db

import "context"

// RecordRun appends an ingest_log row. Only fields that match columns in the
// current ingest_log table are written, so older and newer log shapes both
// work. It fails with ErrSchemaMismatch only when the table is missing or
// none of the supplied fields match.
func (d *DB) RecordRun(ctx context.Context, e IngestLogEntry) error {
	_, err := d.insertRow(ctx, d.conn, "ingest_log", []field{
		{"run_id", e.RunID},
		{"source_id", e.SourceID},
		{"data_source_type", e.DataSourceType},
		{"action", e.Action},
		{"status", e.Status},
		{"message", e.Message},
		{"file_path", e.FilePath},
		{"file_name", e.FileName},
		{"started_utc", e.StartedUTC},
		{"finished_utc", e.FinishedUTC},
		{"rows_inserted", e.RowsInserted},
		{"rows_deleted", e.RowsDeleted},
		// Column names used by other revisions of the log table
		{"date_started_utc", e.StartedUTC},
		{"date_finished_utc", e.FinishedUTC},
		{"notes", e.Message},
	})
	return err
}

// LogRow is a stored ingest_log entry, read back for status reporting.
type LogRow struct {
	IngestID       int64   `json:"ingest_id"`
	SourceID       *string `json:"source_id"`
	DataSourceType *string `json:"data_source_type"`
	Action         *string `json:"action"`
	Status         *string `json:"status"`
	Message        *string `json:"message"`
	FinishedUTC    *string `json:"finished_utc"`
}

// RecentRuns returns the newest ingest_log rows, newest first. It expects the
// current schema's columns.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]LogRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT ingest_id, source_id, data_source_type, action, status, message, finished_utc
		FROM ingest_log ORDER BY ingest_id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LogRow
	for rows.Next() {
		var r LogRow
		if err := rows.Scan(&r.IngestID, &r.SourceID, &r.DataSourceType, &r.Action,
			&r.Status, &r.Message, &r.FinishedUTC); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
