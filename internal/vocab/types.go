// Package vocab reads and validates the controlled-vocabulary workbook
// (mapping_list.xlsx): canonical items, furniture classes and room types.
//
// Validation is pure computation over the workbook. Nothing here touches the
// database; a Set returned without error is safe to apply as a whole.
package vocab

import "fmt"

// Sheet names in the workbook. Each doubles as the name of its key column.
const (
	SheetItems   = "item_name"
	SheetClasses = "furniture_class"
	SheetRooms   = "room_type"
)

// Item is a row of the item_name sheet.
type Item struct {
	Name        string // normalized: trimmed, lower-case
	Description string
	Mass        float64 // kg, > 0
	Class       string  // normalized furniture_class key
	Notes       *string
}

// Class is a row of the furniture_class sheet.
type Class struct {
	Name        string // normalized: trimmed, lower-case
	Description string
	Contains    string
	KgCPerKg    float64  // carbon fraction, open interval (0,1)
	RatioFossil *float64 // optional, [0,1]
	RatioBiog   *float64 // optional, [0,1]; with RatioFossil sums to 1
	Notes       *string
}

// Room is a row of the room_type sheet.
type Room struct {
	Name  string // normalized: trimmed, lower-case
	Notes *string
}

// Set is a fully validated workbook.
type Set struct {
	Items   []Item
	Classes []Class
	Rooms   []Room
}

// Mode selects how a Set is written to the vocabulary tables.
type Mode string

const (
	// ModeReplaceAll clears all three tables before inserting.
	ModeReplaceAll Mode = "replace_all"
	// ModeUpsert inserts or overwrites by key and never removes rows.
	ModeUpsert Mode = "upsert"
)

// ParseMode validates a mode name; empty means ModeReplaceAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeReplaceAll:
		return ModeReplaceAll, nil
	case ModeUpsert:
		return ModeUpsert, nil
	}
	return "", fmt.Errorf("mode must be '%s' or '%s', got '%s'", ModeReplaceAll, ModeUpsert, s)
}
