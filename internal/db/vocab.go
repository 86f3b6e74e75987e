package db

import (
	"context"
	"database/sql"
	"fmt"

	"pooledinv/internal/vocab"
)

// VocabCounts holds row counts of the three vocabulary tables.
type VocabCounts struct {
	Items   int64 `json:"rows_item_dictionary"`
	Classes int64 `json:"rows_furniture_class"`
	Rooms   int64 `json:"rows_room_type"`
}

// Total is the sum across all three tables.
func (c VocabCounts) Total() int64 { return c.Items + c.Classes + c.Rooms }

// VocabCounts counts rows in the vocabulary tables. The tables must exist.
func (d *DB) VocabCounts(ctx context.Context) (VocabCounts, error) {
	var c VocabCounts
	for _, t := range []struct {
		table string
		dst   *int64
	}{
		{"item_dictionary", &c.Items},
		{"furniture_class", &c.Classes},
		{"room_type", &c.Rooms},
	} {
		if err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return VocabCounts{}, fmt.Errorf("counting %s: %w", t.table, err)
		}
	}
	return c, nil
}

// ApplyVocabulary writes a validated vocabulary set in a single transaction.
// ModeReplaceAll clears all three tables first; ModeUpsert overwrites by key
// and leaves other rows in place. Classes are written before items, then
// rooms. Any failure rolls back every write, so a partial replacement is
// never visible.
func (d *DB) ApplyVocabulary(ctx context.Context, set *vocab.Set, mode vocab.Mode) error {
	if mode != vocab.ModeReplaceAll && mode != vocab.ModeUpsert {
		return fmt.Errorf("mode must be '%s' or '%s', got '%s'", vocab.ModeReplaceAll, vocab.ModeUpsert, mode)
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		if mode == vocab.ModeReplaceAll {
			for _, table := range []string{"item_dictionary", "furniture_class", "room_type"} {
				if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
					return fmt.Errorf("clearing %s: %w", table, err)
				}
			}
		}

		for _, c := range set.Classes {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO furniture_class
				(furniture_class, furniture_description, class_contains, kgC_kg, ratio_fossil, ratio_biog, notes)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, c.Name, c.Description, c.Contains, c.KgCPerKg, c.RatioFossil, c.RatioBiog, c.Notes)
			if err != nil {
				return fmt.Errorf("writing furniture_class %s: %w", c.Name, err)
			}
		}

		for _, it := range set.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO item_dictionary
				(item_name, item_description, item_mass, furniture_class, notes)
				VALUES (?, ?, ?, ?, ?)
			`, it.Name, it.Description, it.Mass, it.Class, it.Notes)
			if err != nil {
				return fmt.Errorf("writing item_dictionary %s: %w", it.Name, err)
			}
		}

		for _, r := range set.Rooms {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO room_type (room_type, notes) VALUES (?, ?)
			`, r.Name, r.Notes)
			if err != nil {
				return fmt.Errorf("writing room_type %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// ItemClasses returns item_dictionary as item_name -> furniture_class.
func (d *DB) ItemClasses(ctx context.Context) (map[string]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT item_name, furniture_class FROM item_dictionary")
	if err != nil {
		return nil, fmt.Errorf("querying item_dictionary: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var (
			name  string
			class sql.NullString
		)
		if err := rows.Scan(&name, &class); err != nil {
			return nil, err
		}
		result[name] = class.String
	}
	return result, rows.Err()
}

// Vocabulary reads the three vocabulary tables back, ordered by key.
func (d *DB) Vocabulary(ctx context.Context) (*vocab.Set, error) {
	set := &vocab.Set{}

	rows, err := d.conn.QueryContext(ctx, `
		SELECT furniture_class, furniture_description, class_contains, kgC_kg, ratio_fossil, ratio_biog, notes
		FROM furniture_class ORDER BY furniture_class
	`)
	if err != nil {
		return nil, fmt.Errorf("querying furniture_class: %w", err)
	}
	for rows.Next() {
		var (
			c        vocab.Class
			desc     sql.NullString
			contains sql.NullString
			kgc      sql.NullFloat64
		)
		if err := rows.Scan(&c.Name, &desc, &contains, &kgc, &c.RatioFossil, &c.RatioBiog, &c.Notes); err != nil {
			rows.Close()
			return nil, err
		}
		c.Description, c.Contains, c.KgCPerKg = desc.String, contains.String, kgc.Float64
		set.Classes = append(set.Classes, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = d.conn.QueryContext(ctx, `
		SELECT item_name, item_description, item_mass, furniture_class, notes
		FROM item_dictionary ORDER BY item_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying item_dictionary: %w", err)
	}
	for rows.Next() {
		var (
			it    vocab.Item
			mass  sql.NullFloat64
			class sql.NullString
		)
		if err := rows.Scan(&it.Name, &it.Description, &mass, &class, &it.Notes); err != nil {
			rows.Close()
			return nil, err
		}
		it.Mass, it.Class = mass.Float64, class.String
		set.Items = append(set.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = d.conn.QueryContext(ctx, "SELECT room_type, notes FROM room_type ORDER BY room_type")
	if err != nil {
		return nil, fmt.Errorf("querying room_type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r vocab.Room
		if err := rows.Scan(&r.Name, &r.Notes); err != nil {
			return nil, err
		}
		set.Rooms = append(set.Rooms, r)
	}
	return set, rows.Err()
}
