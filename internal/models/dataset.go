package models

// DatasetMeta is the profile the backend returns once per upload.
type DatasetMeta struct {
	Rows         int               `json:"rows"`
	Cols         int               `json:"cols"`
	Columns      []string          `json:"columns"`
	LogicalTypes map[string]string `json:"logical_types"`
	Summary      DatasetSummary    `json:"summary"`

	// Extra profiling fields sent by the backend. Kept for the schema view
	// and the CLI, not needed to render the summary cards.
	Dtypes  map[string]string `json:"dtypes,omitempty"`
	Missing map[string]int    `json:"missing,omitempty"`
	Sample  []map[string]any  `json:"sample,omitempty"`
}

// DatasetSummary holds the backend's quick summary of a dataset.
type DatasetSummary struct {
	QuickTrend string `json:"quick_trend,omitempty"`
}

// LogicalType returns the logical type label for a column, or "" when the
// backend did not classify it.
func (m *DatasetMeta) LogicalType(column string) string {
	if m == nil || m.LogicalTypes == nil {
		return ""
	}
	return m.LogicalTypes[column]
}

// UploadResponse is the 2xx body of POST /api/upload.
type UploadResponse struct {
	DatasetID string      `json:"dataset_id"`
	Meta      DatasetMeta `json:"meta"`
}

// SchemaResponse is the body of GET /api/datasets/{id}/schema.
type SchemaResponse struct {
	DatasetID string      `json:"dataset_id"`
	Meta      DatasetMeta `json:"meta"`
}

// CleanupResponse is the body of POST /api/cleanup.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

// ErrorResponse is the body the backend sends on non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
