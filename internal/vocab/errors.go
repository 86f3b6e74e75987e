package vocab

import (
	"errors"
	"fmt"
	"strings"
)

// MaxListed caps how many offending keys an error message shows.
const MaxListed = 20

var (
	// ErrSchemaViolation is matched by *SchemaViolationError.
	ErrSchemaViolation = errors.New("workbook schema violation")
	// ErrValidation is matched by *ValidationError.
	ErrValidation = errors.New("vocabulary validation failed")
)

// SchemaViolationError reports a missing sheet or missing required columns.
type SchemaViolationError struct {
	Sheet   string
	Missing []string // required columns not found; empty when the sheet itself is missing
	Found   []string // header as read
}

func (e *SchemaViolationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("workbook is missing required sheet '%s'", e.Sheet)
	}
	return fmt.Sprintf("Sheet '%s' missing required columns: %v. Found: %v", e.Sheet, e.Missing, e.Found)
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// ValidationError reports a domain-rule failure. Keys holds every offending
// key; Error shows at most MaxListed of them.
type ValidationError struct {
	Sheet string
	Rule  string
	Keys  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Sheet, e.Rule, listKeys(e.Keys))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func listKeys(keys []string) string {
	if len(keys) <= MaxListed {
		return strings.Join(keys, ", ")
	}
	return strings.Join(keys[:MaxListed], ", ") + fmt.Sprintf(" (+%d more)", len(keys)-MaxListed)
}
