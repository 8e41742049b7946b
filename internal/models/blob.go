package models

import "time"

// Blob is the single physical copy of a unique content digest.
// Rows are created with RefCount 0 by the store half of an upload; the
// following increment, and the row's removal when the count returns to
// zero, happen inside store transactions only.
type Blob struct {
	Digest    string    `json:"digest"`
	SizeBytes int64     `json:"size_bytes"`
	BlobKey   string    `json:"blob_key"`
	RefCount  int64     `json:"ref_count"`
	CreatedAt time.Time `json:"created_at"`
}
