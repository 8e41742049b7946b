package models

import "time"

// ShareGrant gives one named user read access to one file entry.
type ShareGrant struct {
	EntryID  string    `json:"entry_id"`
	Grantee  string    `json:"grantee"`
	SharedAt time.Time `json:"shared_at"`
}

// ShareLink is a public capability token for one file entry. Anyone holding
// the token may read the entry until the link is revoked.
type ShareLink struct {
	Token         string    `json:"token"`
	EntryID       string    `json:"entry_id"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	Revoked       bool      `json:"revoked"`
	DownloadCount int64     `json:"download_count"`
}
