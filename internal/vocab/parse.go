package vocab

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// RatioTolerance is the absolute tolerance for ratio_fossil + ratio_biog == 1.
const RatioTolerance = 1e-6

var (
	itemRequired  = []string{"item_name", "item_description", "item_mass", "furniture_class"}
	classRequired = []string{"furniture_class", "furniture_description", "class_contains", "kgC_kg", "ratio_fossil", "ratio_biog"}
	// Ratios may be blank, so they do not count towards row completeness.
	classComplete = []string{"furniture_class", "furniture_description", "class_contains", "kgC_kg"}
	roomRequired  = []string{"room_type"}
)

// Parse validates raw sheet contents keyed by sheet name. Each sheet is a
// slice of rows; the first row is the header. Validation runs items, then
// classes, then rooms, then the cross-sheet class reference check, and stops
// at the first failure.
func Parse(sheets map[string][][]string) (*Set, error) {
	items, err := parseItems(sheets)
	if err != nil {
		return nil, err
	}
	classes, err := parseClasses(sheets)
	if err != nil {
		return nil, err
	}
	rooms, err := parseRooms(sheets)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(classes))
	for _, c := range classes {
		known[c.Name] = true
	}
	missingSet := make(map[string]bool)
	for _, it := range items {
		if !known[it.Class] {
			missingSet[it.Class] = true
		}
	}
	if len(missingSet) > 0 {
		missing := make([]string, 0, len(missingSet))
		for c := range missingSet {
			missing = append(missing, c)
		}
		sort.Strings(missing)
		return nil, &ValidationError{
			Sheet: SheetItems,
			Rule:  "items reference furniture_class not present in furniture_class sheet",
			Keys:  missing,
		}
	}

	return &Set{Items: items, Classes: classes, Rooms: rooms}, nil
}

func parseItems(sheets map[string][][]string) ([]Item, error) {
	t, err := newTable(SheetItems, sheets, itemRequired)
	if err != nil {
		return nil, err
	}
	rows := t.complete(itemRequired)

	var nonNumeric []string
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		name := normKey(t.cell(r, "item_name"))
		mass, ok := parseStrict(t.cell(r, "item_mass"))
		if !ok {
			nonNumeric = append(nonNumeric, name+"="+t.cell(r, "item_mass"))
			continue
		}
		items = append(items, Item{
			Name:        name,
			Description: t.cell(r, "item_description"),
			Mass:        mass,
			Class:       normKey(t.cell(r, "furniture_class")),
			Notes:       t.notes(r),
		})
	}
	if len(nonNumeric) > 0 {
		return nil, &ValidationError{Sheet: SheetItems, Rule: "item_mass must be numeric", Keys: nonNumeric}
	}

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	if dups := duplicates(names); len(dups) > 0 {
		return nil, &ValidationError{Sheet: SheetItems, Rule: "Duplicate item_name(s)", Keys: dups}
	}

	var bad []string
	for _, it := range items {
		if !(it.Mass > 0) {
			bad = append(bad, it.Name)
		}
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Sheet: SheetItems, Rule: "item_mass must be > 0 for", Keys: bad}
	}
	return items, nil
}

func parseClasses(sheets map[string][][]string) ([]Class, error) {
	t, err := newTable(SheetClasses, sheets, classRequired)
	if err != nil {
		return nil, err
	}
	rows := t.complete(classComplete)

	var nonNumeric []string
	classes := make([]Class, 0, len(rows))
	for _, r := range rows {
		name := normKey(t.cell(r, "furniture_class"))
		kgc, ok := parseStrict(t.cell(r, "kgC_kg"))
		if !ok {
			nonNumeric = append(nonNumeric, name+"="+t.cell(r, "kgC_kg"))
			continue
		}
		classes = append(classes, Class{
			Name:        name,
			Description: t.cell(r, "furniture_description"),
			Contains:    t.cell(r, "class_contains"),
			KgCPerKg:    kgc,
			RatioFossil: parseLenient(t.cell(r, "ratio_fossil")),
			RatioBiog:   parseLenient(t.cell(r, "ratio_biog")),
			Notes:       t.notes(r),
		})
	}
	if len(nonNumeric) > 0 {
		return nil, &ValidationError{Sheet: SheetClasses, Rule: "kgC_kg must be numeric", Keys: nonNumeric}
	}

	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.Name
	}
	if dups := duplicates(names); len(dups) > 0 {
		return nil, &ValidationError{Sheet: SheetClasses, Rule: "Duplicate furniture_class(es)", Keys: dups}
	}

	checks := []struct {
		rule string
		bad  func(c Class) bool
	}{
		{"kgC_kg must be in (0,1) for", func(c Class) bool { return !(c.KgCPerKg > 0 && c.KgCPerKg < 1) }},
		{"ratio_fossil must be in [0,1] for", func(c Class) bool { return c.RatioFossil != nil && outsideUnit(*c.RatioFossil) }},
		{"ratio_biog must be in [0,1] for", func(c Class) bool { return c.RatioBiog != nil && outsideUnit(*c.RatioBiog) }},
		{"ratio_fossil + ratio_biog must equal 1.0 for", func(c Class) bool {
			return c.RatioFossil != nil && c.RatioBiog != nil &&
				math.Abs(*c.RatioFossil+*c.RatioBiog-1.0) > RatioTolerance
		}},
	}
	for _, chk := range checks {
		var bad []string
		for _, c := range classes {
			if chk.bad(c) {
				bad = append(bad, c.Name)
			}
		}
		if len(bad) > 0 {
			return nil, &ValidationError{Sheet: SheetClasses, Rule: chk.rule, Keys: bad}
		}
	}
	return classes, nil
}

func parseRooms(sheets map[string][][]string) ([]Room, error) {
	t, err := newTable(SheetRooms, sheets, roomRequired)
	if err != nil {
		return nil, err
	}
	rows := t.complete(roomRequired)

	rooms := make([]Room, 0, len(rows))
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		name := normKey(t.cell(r, "room_type"))
		rooms = append(rooms, Room{Name: name, Notes: t.notes(r)})
		names = append(names, name)
	}
	if dups := duplicates(names); len(dups) > 0 {
		return nil, &ValidationError{Sheet: SheetRooms, Rule: "Duplicate room_type(s)", Keys: dups}
	}
	return rooms, nil
}

// table is one sheet with a header index.
type table struct {
	sheet  string
	header []string
	index  map[string]int
	rows   [][]string
}

func newTable(sheet string, sheets map[string][][]string, required []string) (*table, error) {
	raw, ok := sheets[sheet]
	if !ok {
		return nil, &SchemaViolationError{Sheet: sheet}
	}

	t := &table{sheet: sheet, index: make(map[string]int)}
	if len(raw) > 0 {
		for i, h := range raw[0] {
			h = strings.TrimSpace(h)
			t.header = append(t.header, h)
			if _, dup := t.index[h]; !dup && h != "" {
				t.index[h] = i
			}
		}
		t.rows = raw[1:]
	}

	var missing []string
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaViolationError{Sheet: sheet, Missing: missing, Found: t.header}
	}
	return t, nil
}

// cell returns the trimmed value of col in row, or "" when absent.
func (t *table) cell(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// complete drops rows with a blank value in any of cols.
func (t *table) complete(cols []string) [][]string {
	var out [][]string
	for _, r := range t.rows {
		ok := true
		for _, c := range cols {
			if t.cell(r, c) == "" {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// notes returns the optional notes cell; blank and spreadsheet null markers become nil.
func (t *table) notes(row []string) *string {
	v := t.cell(row, "notes")
	switch v {
	case "", "nan", "NaN", "None":
		return nil
	}
	return &v
}

func normKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseStrict parses a required numeric cell. NaN is not a number here.
func parseStrict(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// parseLenient parses an optional numeric cell; anything unparseable is absent.
func parseLenient(s string) *float64 {
	v, ok := parseStrict(s)
	if !ok {
		return nil
	}
	return &v
}

func outsideUnit(v float64) bool {
	return v < 0 || v > 1
}

// duplicates returns every repeat occurrence after the first, in order.
func duplicates(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	var dups []string
	for _, k := range keys {
		if seen[k] {
			dups = append(dups, k)
			continue
		}
		seen[k] = true
	}
	return dups
}
