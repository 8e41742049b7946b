package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filecask/internal/models"
)

const shareLinkColumns = "token, entry_id, created_by, created_at, revoked, download_count"

// AddShareGrant gives grantee read access to an entry. Sharing is metadata
// only: no blob, reference, or quota state changes.
func (s *Store) AddShareGrant(ctx context.Context, entryID, grantee string) (*models.ShareGrant, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entry_shares (entry_id, grantee, shared_at) VALUES (?, ?, ?)
	`, entryID, grantee, formatTime(now))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("grant for %s: %w", grantee, ErrConflict)
	}
	return &models.ShareGrant{EntryID: entryID, Grantee: grantee, SharedAt: now}, nil
}

// RemoveShareGrant revokes grantee's access to an entry.
func (s *Store) RemoveShareGrant(ctx context.Context, entryID, grantee string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entry_shares WHERE entry_id = ? AND grantee = ?", entryID, grantee)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("grant for %s", grantee))
}

// GrantExists reports whether grantee has access to an entry.
func (s *Store) GrantExists(ctx context.Context, entryID, grantee string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM entry_shares WHERE entry_id = ? AND grantee = ? LIMIT 1", entryID, grantee).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListGrantsForEntry lists who an entry is shared with.
func (s *Store) ListGrantsForEntry(ctx context.Context, entryID string) ([]models.ShareGrant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT entry_id, grantee, shared_at FROM entry_shares WHERE entry_id = ? ORDER BY grantee ASC", entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := []models.ShareGrant{}
	for rows.Next() {
		var grant models.ShareGrant
		var sharedAt string
		if err := rows.Scan(&grant.EntryID, &grant.Grantee, &sharedAt); err != nil {
			return nil, err
		}
		grant.SharedAt, err = parseTime(sharedAt)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// SharedEntry pairs an entry with its grant metadata for "shared with me"
// listings.
type SharedEntry struct {
	Entry    models.FileEntry `json:"entry"`
	SharedBy string           `json:"shared_by"`
	SharedAt time.Time        `json:"shared_at"`
}

// ListSharedWith lists entries other users have shared with grantee.
func (s *Store) ListSharedWith(ctx context.Context, grantee string) ([]SharedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.owner, e.display_name, e.folder_id, e.digest, e.logical_size, e.visibility, e.created_at, es.shared_at
		FROM entry_shares es
		JOIN file_entries e ON e.id = es.entry_id
		WHERE es.grantee = ?
		ORDER BY es.shared_at DESC
	`, grantee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shared := []SharedEntry{}
	for rows.Next() {
		var entry models.FileEntry
		var folderID sql.NullString
		var createdAt, sharedAt string
		if err := rows.Scan(&entry.ID, &entry.Owner, &entry.DisplayName, &folderID, &entry.Digest, &entry.LogicalSize, &entry.Visibility, &createdAt, &sharedAt); err != nil {
			return nil, err
		}
		if folderID.Valid {
			entry.FolderID = folderID.String
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		item := SharedEntry{Entry: entry, SharedBy: entry.Owner}
		if item.SharedAt, err = parseTime(sharedAt); err != nil {
			return nil, err
		}
		shared = append(shared, item)
	}
	return shared, rows.Err()
}

// CreateShareLink stores a new public share token for an entry.
func (s *Store) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	if link == nil || link.Token == "" || link.EntryID == "" {
		return fmt.Errorf("share link token and entry are required")
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (token, entry_id, created_by, created_at, revoked, download_count)
		VALUES (?, ?, ?, ?, 0, 0)
	`, link.Token, link.EntryID, link.CreatedBy, formatTime(link.CreatedAt))
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("share token: %w", ErrConflict)
	}
	return err
}

// GetShareLink returns one share link row, revoked or not.
func (s *Store) GetShareLink(ctx context.Context, token string) (*models.ShareLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shareLinkColumns+` FROM share_links WHERE token = ?`, token)
	link, err := scanShareLink(row)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("share link: %w", ErrNotFound)
	}
	return link, nil
}

// ActiveShareLinkForEntry returns the entry's unrevoked share link, if any.
func (s *Store) ActiveShareLinkForEntry(ctx context.Context, entryID string) (*models.ShareLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shareLinkColumns+` FROM share_links WHERE entry_id = ? AND revoked = 0 LIMIT 1`, entryID)
	return scanShareLink(row)
}

// RevokeShareLink marks one token revoked.
func (s *Store) RevokeShareLink(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE share_links SET revoked = 1 WHERE token = ?", token)
	if err != nil {
		return err
	}
	return requireAffected(res, "share link")
}

// IncrementDownloadCount bumps the download counter for a token.
func (s *Store) IncrementDownloadCount(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE share_links SET download_count = download_count + 1 WHERE token = ?", token)
	if err != nil {
		return err
	}
	return requireAffected(res, "share link")
}

func scanShareLink(row interface{ Scan(...any) error }) (*models.ShareLink, error) {
	var link models.ShareLink
	var createdAt string
	var revoked int
	err := row.Scan(&link.Token, &link.EntryID, &link.CreatedBy, &createdAt, &revoked, &link.DownloadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	link.Revoked = revoked != 0
	link.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}
