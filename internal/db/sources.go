package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ExistingSourceIDs returns every source_id recorded for a data_source_type.
func (d *DB) ExistingSourceIDs(ctx context.Context, sourceType string) (map[string]bool, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT source_id FROM sources WHERE data_source_type = ?", sourceType)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (Source, error) {
	var (
		s        Source
		fileName sql.NullString
		filePath sql.NullString
	)
	err := scanner.Scan(
		&s.SourceID, &s.DataSourceType, &fileName, &filePath,
		&s.DateImportedUTC, &s.Description, &s.Org, &s.Notes,
	)
	s.FileName = fileName.String
	s.FilePath = filePath.String
	return s, err
}

// SourcesByType returns all sources of a data_source_type ordered by import time.
func (d *DB) SourcesByType(ctx context.Context, sourceType string) ([]Source, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT source_id, data_source_type, file_name, file_path,
		       date_imported_utc, source_description, source_org, notes
		FROM sources WHERE data_source_type = ?
		ORDER BY date_imported_utc, source_id
	`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// GetSource returns a single source by ID, or nil if not found
func (d *DB) GetSource(ctx context.Context, id string) (*Source, error) {
	row := d.conn.QueryRowContext(ctx, `
		SELECT source_id, data_source_type, file_name, file_path,
		       date_imported_utc, source_description, source_org, notes
		FROM sources WHERE source_id = ?
	`, id)
	s, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSourceWithObservations writes a source row and its observations in
// one transaction and returns the number of observations inserted. Nothing is
// written if any insert fails.
func (d *DB) InsertSourceWithObservations(ctx context.Context, src Source, obs []Observation) (int64, error) {
	var inserted int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := d.insertRow(ctx, tx, "sources", []field{
			{"source_id", src.SourceID},
			{"data_source_type", src.DataSourceType},
			{"file_name", src.FileName},
			{"file_path", src.FilePath},
			{"date_imported_utc", src.DateImportedUTC},
			{"source_description", src.Description},
			{"source_org", src.Org},
			{"notes", src.Notes},
		})
		if err != nil {
			return fmt.Errorf("inserting source %s: %w", src.SourceID, err)
		}

		for i, o := range obs {
			_, err := d.insertRow(ctx, tx, "inventory_observations", []field{
				{"source_id", src.SourceID},
				{"room_type", o.RoomType},
				{"item_description", o.ItemDescription},
				{"item_name", o.ItemName},
				{"count", o.Count},
				{"furniture_class", o.FurnitureClass},
				{"notes", o.Notes},
			})
			if err != nil {
				return fmt.Errorf("inserting observation %d of %s: %w", i+1, src.FileName, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ObservationsForSource returns the observations attached to a source.
func (d *DB) ObservationsForSource(ctx context.Context, sourceID string) ([]Observation, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT obs_id, source_id, room_type, item_description, item_name,
		       count, furniture_class, notes
		FROM inventory_observations WHERE source_id = ? ORDER BY obs_id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	var result []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ObsID, &o.SourceID, &o.RoomType, &o.ItemDescription,
			&o.ItemName, &o.Count, &o.FurnitureClass, &o.Notes); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// DeleteBySourceID removes every observation referencing id and then the
// source row itself. Observations are deleted explicitly (the foreign key
// would cascade) so the summary carries an exact count. The ingest_log is
// never touched. Deleting an unknown id returns zero counts.
func (d *DB) DeleteBySourceID(ctx context.Context, id string) (DeleteSummary, error) {
	summary := DeleteSummary{SourceID: id}
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM inventory_observations WHERE source_id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting observations for %s: %w", id, err)
		}
		summary.ObservationsDeleted, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, "DELETE FROM sources WHERE source_id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting source %s: %w", id, err)
		}
		summary.SourcesDeleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return DeleteSummary{SourceID: id}, err
	}
	return summary, nil
}
