package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"filecask/internal/models"
)

const entryColumns = "id, owner, display_name, folder_id, digest, logical_size, visibility, created_at"

// EntryCommit describes the metadata half of an upload or link operation.
type EntryCommit struct {
	Owner       string
	DisplayName string
	FolderID    string
	Digest      string
	BlobKey     string
	SizeBytes   int64
	Visibility  string
}

// CommitUpload runs the atomic commit step of an upload in one transaction:
// quota reserve, blob row create-if-absent (ref_count 0), reference
// increment, entry insert. Any failure rolls the whole step back, leaving
// zero observable metadata change. blobCreated tells the caller whether
// this commit created the blob row.
func (s *Store) CommitUpload(ctx context.Context, c EntryCommit) (entry *models.FileEntry, blobCreated bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, blobCreated, err = commitEntryTx(ctx, tx, c, true)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, blobCreated, nil
}

// CommitLink creates an entry against content already known by digest:
// same pipeline as CommitUpload minus the blob row creation. The increment
// path is shared, which is what makes linking work without touching bytes.
func (s *Store) CommitLink(ctx context.Context, c EntryCommit) (*models.FileEntry, error) {
	var entry *models.FileEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, _, err = commitEntryTx(ctx, tx, c, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func commitEntryTx(ctx context.Context, tx *sql.Tx, c EntryCommit, createBlob bool) (*models.FileEntry, bool, error) {
	if strings.TrimSpace(c.Owner) == "" {
		return nil, false, fmt.Errorf("owner is required")
	}
	if err := models.ValidateDisplayName(c.DisplayName); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(c.Digest) == "" {
		return nil, false, fmt.Errorf("digest is required")
	}
	visibility, err := models.ParseVisibility(c.Visibility)
	if err != nil {
		return nil, false, err
	}

	if c.FolderID != "" {
		var folderOwner string
		err := tx.QueryRowContext(ctx, "SELECT owner FROM folders WHERE id = ?", c.FolderID).Scan(&folderOwner)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("folder %s: %w", c.FolderID, ErrNotFound)
		}
		if err != nil {
			return nil, false, err
		}
		if folderOwner != c.Owner {
			return nil, false, fmt.Errorf("folder %s: %w", c.FolderID, ErrNotFound)
		}
	}

	if err := reserveQuotaTx(ctx, tx, c.Owner, c.SizeBytes); err != nil {
		return nil, false, err
	}

	blobCreated := false
	if createBlob {
		if strings.TrimSpace(c.BlobKey) == "" {
			return nil, false, fmt.Errorf("blob key is required")
		}
		blobCreated, err = createBlobIfAbsentTx(ctx, tx, c.Digest, c.BlobKey, c.SizeBytes)
		if err != nil {
			return nil, false, err
		}
	} else {
		var existingSize int64
		err := tx.QueryRowContext(ctx, "SELECT size_bytes FROM blobs WHERE digest = ? AND ref_count > 0", c.Digest).Scan(&existingSize)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("blob %s: %w", c.Digest, ErrUnknownBlob)
		}
		if err != nil {
			return nil, false, err
		}
		if existingSize != c.SizeBytes {
			return nil, false, fmt.Errorf("blob %s has size %d, declared %d", c.Digest, existingSize, c.SizeBytes)
		}
	}

	if _, err := incrementRefTx(ctx, tx, c.Digest); err != nil {
		return nil, false, err
	}

	id, err := GenerateEntryID(func(id string) (bool, error) {
		return entryExistsTx(ctx, tx, id)
	})
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	var folderID any
	if c.FolderID != "" {
		folderID = c.FolderID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_entries (id, owner, display_name, folder_id, digest, logical_size, visibility, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.Owner, strings.TrimSpace(c.DisplayName), folderID, c.Digest, c.SizeBytes, string(visibility), formatTime(now)); err != nil {
		return nil, false, err
	}

	return &models.FileEntry{
		ID:          id,
		Owner:       c.Owner,
		DisplayName: strings.TrimSpace(c.DisplayName),
		FolderID:    c.FolderID,
		Digest:      c.Digest,
		LogicalSize: c.SizeBytes,
		Visibility:  string(visibility),
		CreatedAt:   now,
	}, blobCreated, nil
}

// DeleteResult reports the effects of a committed delete.
type DeleteResult struct {
	Entry        *models.FileEntry
	NewRefCount  int64
	Collected    bool
	QuotaClamped bool
}

// CommitDelete removes an entry and reverses its accounting in one
// transaction: entry row delete, quota release, reference decrement, and
// blob row collection when the count reaches zero. The caller removes
// physical bytes when Collected is true. Authorization is checked by the
// caller before invoking.
func (s *Store) CommitDelete(ctx context.Context, entryID string) (DeleteResult, error) {
	var res DeleteResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM file_entries WHERE id = ?`, entryID)
		entry, err := scanEntry(row)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
		}
		res.Entry = entry

		if _, err := tx.ExecContext(ctx, "DELETE FROM entry_shares WHERE entry_id = ?", entryID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM share_links WHERE entry_id = ?", entryID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_entries WHERE id = ?", entryID); err != nil {
			return err
		}

		res.QuotaClamped, err = releaseQuotaTx(ctx, tx, entry.Owner, entry.LogicalSize)
		if err != nil {
			return err
		}

		res.NewRefCount, err = decrementRefTx(ctx, tx, entry.Digest)
		if err != nil {
			return err
		}
		if res.NewRefCount == 0 {
			res.Collected, err = deleteBlobIfUnreferencedTx(ctx, tx, entry.Digest)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}

// GetEntry returns one file entry.
func (s *Store) GetEntry(ctx context.Context, id string) (*models.FileEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM file_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return entry, nil
}

// EntryListFilter narrows ListEntries. An empty FolderID with InRoot unset
// lists all of the owner's entries.
type EntryListFilter struct {
	Owner    string
	FolderID string
	InRoot   bool
}

// ListEntries lists a user's entries, newest first.
func (s *Store) ListEntries(ctx context.Context, filter EntryListFilter) ([]models.FileEntry, error) {
	if strings.TrimSpace(filter.Owner) == "" {
		return nil, fmt.Errorf("owner is required")
	}

	query := `SELECT ` + entryColumns + ` FROM file_entries WHERE owner = ?`
	args := []any{filter.Owner}
	switch {
	case filter.FolderID != "":
		query += " AND folder_id = ?"
		args = append(args, filter.FolderID)
	case filter.InRoot:
		query += " AND folder_id IS NULL"
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListAllEntries returns every entry, used by the catalog export.
func (s *Store) ListAllEntries(ctx context.Context) ([]models.FileEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM file_entries ORDER BY owner ASC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// RenameEntry changes an entry's display name. Metadata only.
func (s *Store) RenameEntry(ctx context.Context, id, name string) error {
	if err := models.ValidateDisplayName(name); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE file_entries SET display_name = ? WHERE id = ?", strings.TrimSpace(name), id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("entry %s", id))
}

// MoveEntry changes an entry's folder. Metadata only; an empty folderID
// moves the entry to the root.
func (s *Store) MoveEntry(ctx context.Context, id, folderID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT owner FROM file_entries WHERE id = ?", id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		var target any
		if folderID != "" {
			var folderOwner string
			err := tx.QueryRowContext(ctx, "SELECT owner FROM folders WHERE id = ?", folderID).Scan(&folderOwner)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
			}
			if err != nil {
				return err
			}
			if folderOwner != owner {
				return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
			}
			target = folderID
		}

		_, err = tx.ExecContext(ctx, "UPDATE file_entries SET folder_id = ? WHERE id = ?", target, id)
		return err
	})
}

// SetEntryVisibility updates the visibility field. Metadata only.
func (s *Store) SetEntryVisibility(ctx context.Context, id string, visibility models.Visibility) error {
	res, err := s.db.ExecContext(ctx, "UPDATE file_entries SET visibility = ? WHERE id = ?", string(visibility), id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("entry %s", id))
}

func entryExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM file_entries WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func requireAffected(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func collectEntries(rows *sql.Rows) ([]models.FileEntry, error) {
	entries := []models.FileEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, rows.Err()
}

func scanEntry(row interface{ Scan(...any) error }) (*models.FileEntry, error) {
	var entry models.FileEntry
	var folderID sql.NullString
	var createdAt string
	err := row.Scan(&entry.ID, &entry.Owner, &entry.DisplayName, &folderID, &entry.Digest, &entry.LogicalSize, &entry.Visibility, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if folderID.Valid {
		entry.FolderID = folderID.String
	}
	entry.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
