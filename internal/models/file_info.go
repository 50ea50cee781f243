package models

import "time"

// FileInfo describes a file saved on the client side (exported chart images,
// downloaded reports).
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`

	// Owner is the console session that saved the file.
	Owner string `json:"-"`
}
