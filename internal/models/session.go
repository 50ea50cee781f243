package models

// Stage is the top-level state of a console session.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageUploading Stage = "uploading"
	StageReady     Stage = "ready"
)

// HistoryEntry is one answered question as kept by the history store.
type HistoryEntry struct {
	SessionID   string `json:"sessionId"`
	DatasetID   string `json:"datasetId"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	HasChart    bool   `json:"hasChart"`
	PreviewRows int    `json:"previewRows"`
	AskedAt     int64  `json:"askedAt"` // Unix ms
}
