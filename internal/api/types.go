package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Algorithm string `json:"algorithm"`
}

// FileResponse is the wire form of one file entry.
type FileResponse struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	DisplayName string    `json:"display_name"`
	FolderID    string    `json:"folder_id,omitempty"`
	Digest      string    `json:"digest"`
	LogicalSize int64     `json:"logical_size"`
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"created_at"`
}

// LinkRequest creates a file entry over content already stored.
type LinkRequest struct {
	Digest      string `json:"digest"`
	DisplayName string `json:"display_name"`
	FolderID    string `json:"folder_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

// FileUpdateRequest renames, moves, or changes visibility. Nil fields are
// left untouched; MoveToRoot clears the folder.
type FileUpdateRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	FolderID    *string `json:"folder_id,omitempty"`
	Visibility  *string `json:"visibility,omitempty"`
}

// CopyRequest duplicates a readable entry into the caller's namespace.
type CopyRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	FolderID    string `json:"folder_id,omitempty"`
}

// DeleteResponse reports what a delete did.
type DeleteResponse struct {
	ID            string `json:"id"`
	Digest        string `json:"digest"`
	RemainingRefs int64  `json:"remaining_refs"`
	BlobCollected bool   `json:"blob_collected"`
	ReleasedBytes int64  `json:"released_bytes"`
}

// ShareRequest grants a user read access.
type ShareRequest struct {
	Grantee string `json:"grantee"`
}

// ShareGrantResponse is the wire form of one grant.
type ShareGrantResponse struct {
	EntryID  string    `json:"entry_id"`
	Grantee  string    `json:"grantee"`
	SharedAt time.Time `json:"shared_at"`
}

// ShareLinkResponse is the wire form of one share link.
type ShareLinkResponse struct {
	Token         string    `json:"token"`
	EntryID       string    `json:"entry_id"`
	URL           string    `json:"url"`
	CreatedAt     time.Time `json:"created_at"`
	DownloadCount int64     `json:"download_count"`
}

// SharedEntryResponse pairs an entry with its grant metadata.
type SharedEntryResponse struct {
	Entry    FileResponse `json:"entry"`
	SharedBy string       `json:"shared_by"`
	SharedAt time.Time    `json:"shared_at"`
}

// FolderRequest creates a folder.
type FolderRequest struct {
	Name string `json:"name"`
}

// FolderResponse is the wire form of one folder.
type FolderResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageResponse reports a user's quota standing alongside the system-wide
// deduplication savings.
type UsageResponse struct {
	Username         string `json:"username"`
	LogicalBytesUsed int64  `json:"logical_bytes_used"`
	QuotaLimitBytes  int64  `json:"quota_limit_bytes"`
	RemainingBytes   int64  `json:"remaining_bytes"`
	SavedBytesGlobal int64  `json:"saved_bytes_global"`
}

// StatsResponse reports a user's deduplication numbers.
type StatsResponse struct {
	Username      string `json:"username"`
	EntryCount    int64  `json:"entry_count"`
	LogicalBytes  int64  `json:"logical_bytes"`
	PhysicalBytes int64  `json:"physical_bytes"`
	SavedBytes    int64  `json:"saved_bytes"`
}

// SystemStatsResponse reports system-wide storage numbers.
type SystemStatsResponse struct {
	UserCount     int64 `json:"user_count"`
	EntryCount    int64 `json:"entry_count"`
	BlobCount     int64 `json:"blob_count"`
	PhysicalBytes int64 `json:"physical_bytes"`
	LogicalBytes  int64 `json:"logical_bytes"`
	SavedBytes    int64 `json:"saved_bytes"`
}

// ImportResponse reports the outcome of a catalog import.
type ImportResponse struct {
	DryRun         bool     `json:"dry_run"`
	UsersCreated   int      `json:"users_created"`
	FoldersCreated int      `json:"folders_created"`
	EntriesCreated int      `json:"entries_created"`
	Skipped        int      `json:"skipped"`
	Errors         int      `json:"errors"`
	Messages       []string `json:"messages,omitempty"`
}

// UserCreateRequest provisions a user account.
type UserCreateRequest struct {
	Username        string `json:"username"`
	QuotaLimitBytes int64  `json:"quota_limit_bytes,omitempty"`
}

// QuotaUpdateRequest changes a user's quota limit.
type QuotaUpdateRequest struct {
	QuotaLimitBytes int64 `json:"quota_limit_bytes"`
}

// UserResponse is the wire form of one user account.
type UserResponse struct {
	Username         string    `json:"username"`
	LogicalBytesUsed int64     `json:"logical_bytes_used"`
	QuotaLimitBytes  int64     `json:"quota_limit_bytes"`
	CreatedAt        time.Time `json:"created_at"`
}
