package vocab

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheets lists the workbook's required sheets in write order.
var Sheets = []string{SheetItems, SheetClasses, SheetRooms}

// TemplateHeaders are the column headers written by WriteTemplate.
var TemplateHeaders = map[string][]string{
	SheetItems:   append(append([]string{}, itemRequired...), "notes"),
	SheetClasses: append(append([]string{}, classRequired...), "notes"),
	SheetRooms:   append(append([]string{}, roomRequired...), "notes"),
}

// ReadWorkbook reads the three vocabulary sheets from an .xlsx file and
// validates them with Parse. Cell values are read raw so number formats in
// the workbook do not affect parsing.
func ReadWorkbook(path string) (*Set, error) {
	sheets, err := ReadSheets(path, Sheets...)
	if err != nil {
		return nil, err
	}
	return Parse(sheets)
}

// ReadSheets returns the rows of each named sheet that exists in the workbook.
// Missing sheets are left out of the map.
func ReadSheets(path string, names ...string) (map[string][][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := make(map[string][][]string, len(names))
	for _, name := range names {
		idx, err := f.GetSheetIndex(name)
		if err != nil || idx < 0 {
			continue
		}
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("reading sheet '%s' of %s: %w", name, path, err)
		}
		sheets[name] = rows
	}
	return sheets, nil
}

// WriteSheets writes rows to a new workbook at path, one sheet per map key,
// in the given order. Numeric-looking strings are written as text; callers
// that need numbers pass float64 or int values.
func WriteSheets(path string, order []string, sheets map[string][][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return fmt.Errorf("writing sheet '%s': %w", name, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// WriteTemplate writes an empty mapping list containing only the headers.
func WriteTemplate(path string) error {
	sheets := make(map[string][][]any, len(Sheets))
	for _, name := range Sheets {
		header := make([]any, len(TemplateHeaders[name]))
		for i, h := range TemplateHeaders[name] {
			header[i] = h
		}
		sheets[name] = [][]any{header}
	}
	return WriteSheets(path, Sheets, sheets)
}
