package models

import "time"

// DefaultCategory is used when an upload carries no category
const DefaultCategory = "Other"

// Document is the metadata record of an uploaded file
type Document struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	BlobKey      string    `json:"blob_key"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	Category     string    `json:"category"`
	IsShared     bool      `json:"is_shared"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// DocumentOwner is the subset of a profile shown next to a shared document
type DocumentOwner struct {
	ID           int64  `json:"id"`
	FullName     string `json:"full_name"`
	Relationship string `json:"relationship"`
}

// SharedDocument is a shared document annotated with its owner
type SharedDocument struct {
	Document
	Owner DocumentOwner `json:"owner"`
}
