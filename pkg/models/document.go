package models

import "time"

// Document is the metadata of a file attached to a deal. File storage itself
// lives elsewhere.
type Document struct {
	ID           string    `json:"id"`
	DealID       string    `json:"deal_id"`
	DocumentType string    `json:"document_type"`
	Title        string    `json:"title,omitempty"`
	StoragePath  string    `json:"storage_path,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}
