package db

// Source represents a row in the sources table
type Source struct {
	SourceID        string  `json:"source_id"`        // SHA-256 of file bytes
	DataSourceType  string  `json:"data_source_type"` // "showroom", "survey", ...
	FileName        string  `json:"file_name"`
	FilePath        string  `json:"file_path"`
	DateImportedUTC string  `json:"date_imported_utc"` // ISO-8601, e.g. 2026-10-16T09:30:00Z
	Description     *string `json:"source_description"`
	Org             *string `json:"source_org"`
	Notes           *string `json:"notes"`
}

// Observation represents a row in the inventory_observations table
type Observation struct {
	ObsID           int64    `json:"obs_id"`
	SourceID        string   `json:"source_id"`
	RoomType        *string  `json:"room_type"`
	ItemDescription string   `json:"item_description"`
	ItemName        *string  `json:"item_name"`
	Count           *float64 `json:"count"`
	FurnitureClass  *string  `json:"furniture_class"`
	Notes           *string  `json:"notes"`
}

// DeleteSummary is the outcome of removing one source and its observations.
type DeleteSummary struct {
	SourceID            string `json:"source_id"`
	ObservationsDeleted int64  `json:"observations_deleted"`
	SourcesDeleted      int64  `json:"sources_deleted"`
}

// Log actions and statuses written to ingest_log.
const (
	ActionIngest = "ingest"
	ActionPrune  = "prune"
	ActionDelete = "delete"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// IngestLogEntry is one audit record. Every field is optional; only the
// fields present in the current ingest_log table are written.
type IngestLogEntry struct {
	RunID          *string
	SourceID       *string
	DataSourceType *string
	Action         *string
	Status         *string
	Message        *string
	FilePath       *string
	FileName       *string
	StartedUTC     *string
	FinishedUTC    *string
	RowsInserted   *int64
	RowsDeleted    *int64
}
