package vocab

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemHeader() []string {
	return []string{"item_name", "item_description", "item_mass", "furniture_class", "notes"}
}

func classHeader() []string {
	return []string{"furniture_class", "furniture_description", "class_contains", "kgC_kg", "ratio_fossil", "ratio_biog", "notes"}
}

// validSheets is a small consistent workbook: 2 classes, 3 items, 1 room.
func validSheets() map[string][][]string {
	return map[string][][]string{
		SheetItems: {
			itemHeader(),
			{"  Sofa ", "Three-seat sofa", "45", "Seating", ""},
			{"chair", "Dining chair", "6.5", "seating", "oak"},
			{"Table", "Dining table", "30", "tables", "nan"},
		},
		SheetClasses: {
			classHeader(),
			{"Seating", "Upholstered seating", "sofas, chairs", "0.45", "0.3", "0.7", ""},
			{"tables", "Tables", "dining tables", "0.5", "", "", "timber"},
		},
		SheetRooms: {
			{"room_type", "notes"},
			{" Living Room ", ""},
		},
	}
}

func TestParse_Valid(t *testing.T) {
	set, err := Parse(validSheets())
	require.NoError(t, err)

	require.Len(t, set.Items, 3)
	require.Len(t, set.Classes, 2)
	require.Len(t, set.Rooms, 1)

	assert.Equal(t, "sofa", set.Items[0].Name)
	assert.Equal(t, "seating", set.Items[0].Class)
	assert.Nil(t, set.Items[0].Notes)
	assert.Equal(t, 6.5, set.Items[1].Mass)
	require.NotNil(t, set.Items[1].Notes)
	assert.Equal(t, "oak", *set.Items[1].Notes)
	assert.Nil(t, set.Items[2].Notes, "nan marker should become nil")

	seating := set.Classes[0]
	assert.Equal(t, "seating", seating.Name)
	require.NotNil(t, seating.RatioFossil)
	require.NotNil(t, seating.RatioBiog)
	assert.InDelta(t, 0.3, *seating.RatioFossil, 1e-12)
	assert.Nil(t, set.Classes[1].RatioFossil)
	assert.Nil(t, set.Classes[1].RatioBiog)

	assert.Equal(t, "living room", set.Rooms[0].Name)
}

func TestParse_RatioSumOutOfTolerance(t *testing.T) {
	sheets := validSheets()
	sheets[SheetClasses][1] = []string{"seating", "Seating", "sofas", "0.45", "0.3", "0.8", ""}

	_, err := Parse(sheets)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, SheetClasses, verr.Sheet)
	assert.Equal(t, []string{"seating"}, verr.Keys)
	assert.Contains(t, err.Error(), "ratio_fossil + ratio_biog must equal 1.0")
}

func TestParse_RatioSumWithinTolerance(t *testing.T) {
	sheets := validSheets()
	sheets[SheetClasses][1] = []string{"seating", "Seating", "sofas", "0.45", "0.3", "0.7000005", ""}
	_, err := Parse(sheets)
	require.NoError(t, err)
}

func TestParse_OnlyOneRatioPresentSkipsSum(t *testing.T) {
	sheets := validSheets()
	sheets[SheetClasses][1] = []string{"seating", "Seating", "sofas", "0.45", "0.3", "", ""}
	set, err := Parse(sheets)
	require.NoError(t, err)
	assert.Nil(t, set.Classes[0].RatioBiog)
}

func TestParse_UnparseableRatioIsAbsent(t *testing.T) {
	sheets := validSheets()
	sheets[SheetClasses][1] = []string{"seating", "Seating", "sofas", "0.45", "n/a", "0.7", ""}
	set, err := Parse(sheets)
	require.NoError(t, err)
	assert.Nil(t, set.Classes[0].RatioFossil)
}

func TestParse_RatioOutOfRange(t *testing.T) {
	sheets := validSheets()
	sheets[SheetClasses][1] = []string{"seating", "Seating", "sofas", "0.45", "-0.1", "", ""}
	_, err := Parse(sheets)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "ratio_fossil must be in [0,1]")
}

func TestParse_CarbonFractionOpenInterval(t *testing.T) {
	for _, v := range []string{"0", "1", "1.2", "-0.5"} {
		sheets := validSheets()
		sheets[SheetClasses][2] = []string{"tables", "Tables", "dining", v, "", "", ""}
		_, err := Parse(sheets)
		require.ErrorIs(t, err, ErrValidation, "kgC_kg=%s", v)
		assert.Contains(t, err.Error(), "kgC_kg must be in (0,1)")
		assert.Contains(t, err.Error(), "tables")
	}
}

func TestParse_NonNumericStrictFields(t *testing.T) {
	sheets := validSheets()
	sheets[SheetItems][2] = []string{"chair", "Dining chair", "heavy", "seating", ""}
	_, err := Parse(sheets)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, SheetItems, verr.Sheet)
	assert.Contains(t, err.Error(), "item_mass must be numeric")

	sheets = validSheets()
	sheets[SheetClasses][2] = []string{"tables", "Tables", "dining", "lots", "", "", ""}
	_, err = Parse(sheets)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, SheetClasses, verr.Sheet)
}

func TestParse_NonPositiveMass(t *testing.T) {
	sheets := validSheets()
	sheets[SheetItems][2] = []string{"chair", "Dining chair", "0", "seating", ""}
	_, err := Parse(sheets)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "item_mass must be > 0 for: chair")
}

func TestParse_DuplicateKeysAfterNormalisation(t *testing.T) {
	sheets := validSheets()
	sheets[SheetItems] = append(sheets[SheetItems], []string{" SOFA", "Another sofa", "40", "seating", ""})
	_, err := Parse(sheets)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"sofa"}, verr.Keys)

	sheets = validSheets()
	sheets[SheetRooms] = append(sheets[SheetRooms], []string{"LIVING ROOM", "dup"})
	_, err = Parse(sheets)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, SheetRooms, verr.Sheet)
}

func TestParse_DanglingClassReference(t *testing.T) {
	sheets := map[string][][]string{
		SheetItems: {
			itemHeader(),
			{"sofa", "Sofa", "45", "unknown_class", ""},
		},
		SheetClasses: {
			classHeader(),
			{"seating", "Seating", "sofas", "0.45", "", "", ""},
		},
		SheetRooms: {{"room_type"}},
	}
	_, err := Parse(sheets)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"unknown_class"}, verr.Keys)
	assert.Contains(t, err.Error(), "not present in furniture_class sheet")
}

func TestParse_IncompleteRowsDropped(t *testing.T) {
	sheets := validSheets()
	sheets[SheetItems] = append(sheets[SheetItems],
		[]string{"lamp", "", "2", "seating"}, // missing description
		[]string{"", "", "", ""},             // blank row
		[]string{"rug", "Rug", "3"},          // short row, missing class
	)
	sheets[SheetClasses] = append(sheets[SheetClasses], []string{"beds", "Beds", "", "0.4", "", ""})
	set, err := Parse(sheets)
	require.NoError(t, err)
	assert.Len(t, set.Items, 3)
	assert.Len(t, set.Classes, 2)
}

func TestParse_MissingColumns(t *testing.T) {
	sheets := validSheets()
	sheets[SheetClasses][0] = []string{"furniture_class", "furniture_description", "class_contains", "kgC_kg"}
	_, err := Parse(sheets)
	require.ErrorIs(t, err, ErrSchemaViolation)

	var serr *SchemaViolationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, SheetClasses, serr.Sheet)
	assert.Equal(t, []string{"ratio_fossil", "ratio_biog"}, serr.Missing)
	assert.Contains(t, err.Error(), "Sheet 'furniture_class' missing required columns")
}

func TestParse_HeaderWhitespaceTrimmed(t *testing.T) {
	sheets := validSheets()
	sheets[SheetRooms][0] = []string{" room_type ", "notes "}
	_, err := Parse(sheets)
	require.NoError(t, err)
}

func TestParse_MissingSheet(t *testing.T) {
	sheets := validSheets()
	delete(sheets, SheetRooms)
	_, err := Parse(sheets)
	require.ErrorIs(t, err, ErrSchemaViolation)
	assert.Contains(t, err.Error(), "room_type")
}

func TestValidationError_CapsListedKeys(t *testing.T) {
	keys := make([]string, 25)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%02d", i)
	}
	msg := (&ValidationError{Sheet: SheetItems, Rule: "r", Keys: keys}).Error()
	assert.Contains(t, msg, "k19")
	assert.NotContains(t, msg, "k20")
	assert.Contains(t, msg, "(+5 more)")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeReplaceAll, m)

	m, err = ParseMode("upsert")
	require.NoError(t, err)
	assert.Equal(t, ModeUpsert, m)

	_, err = ParseMode("merge")
	assert.Error(t, err)
}

func TestReadWorkbook_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping_list.xlsx")
	err := WriteSheets(path, Sheets, map[string][][]any{
		SheetItems: {
			{"item_name", "item_description", "item_mass", "furniture_class"},
			{"Sofa", "Three-seat sofa", 45.0, "Seating"},
		},
		SheetClasses: {
			{"furniture_class", "furniture_description", "class_contains", "kgC_kg", "ratio_fossil", "ratio_biog"},
			{"seating", "Seating", "sofas", 0.45, 0.3, 0.7},
		},
		SheetRooms: {
			{"room_type"},
			{"Kitchen"},
		},
	})
	require.NoError(t, err)

	set, err := ReadWorkbook(path)
	require.NoError(t, err)
	require.Len(t, set.Items, 1)
	assert.Equal(t, 45.0, set.Items[0].Mass)
	assert.Equal(t, "kitchen", set.Rooms[0].Name)
}

func TestWriteTemplate_ReadsAsEmptySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, WriteTemplate(path))

	set, err := ReadWorkbook(path)
	require.NoError(t, err)
	assert.Empty(t, set.Items)
	assert.Empty(t, set.Classes)
	assert.Empty(t, set.Rooms)
}
