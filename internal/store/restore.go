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

// RestoreEntry carries one catalog entry back into the metadata store with
// its original identity preserved.
type RestoreEntry struct {
	ID          string
	Owner       string
	DisplayName string
	FolderID    string
	Digest      string
	BlobKey     string
	LogicalSize int64
	Visibility  string
	CreatedAt   time.Time
}

// RestoreFolder inserts a folder row keeping its original ID. Returns false
// when a folder with that ID already exists.
func (s *Store) RestoreFolder(ctx context.Context, f models.Folder) (bool, error) {
	if strings.TrimSpace(f.ID) == "" {
		return false, fmt.Errorf("folder id is required")
	}
	if strings.TrimSpace(f.Owner) == "" {
		return false, fmt.Errorf("folder owner is required")
	}
	name, err := models.ParseFolderName(f.Name)
	if err != nil {
		return false, err
	}

	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO folders (id, owner, name, created_at) VALUES (?, ?, ?, ?)
	`, f.ID, f.Owner, name, formatTime(createdAt))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RestoreEntryRow replays one catalog entry in a single transaction: quota
// reserve, blob row create-if-absent, reference increment, entry insert with
// the original ID and timestamp. A pre-existing entry ID is a no-op. The
// caller is responsible for verifying physical bytes exist before replaying.
func (s *Store) RestoreEntryRow(ctx context.Context, e RestoreEntry) (bool, error) {
	if strings.TrimSpace(e.ID) == "" {
		return false, fmt.Errorf("entry id is required")
	}
	if strings.TrimSpace(e.Owner) == "" {
		return false, fmt.Errorf("owner is required")
	}
	if err := models.ValidateDisplayName(e.DisplayName); err != nil {
		return false, err
	}
	if strings.TrimSpace(e.Digest) == "" {
		return false, fmt.Errorf("digest is required")
	}
	if strings.TrimSpace(e.BlobKey) == "" {
		return false, fmt.Errorf("blob key is required")
	}
	if e.LogicalSize < 0 {
		return false, fmt.Errorf("logical size must be >= 0")
	}
	visibility, err := models.ParseVisibility(e.Visibility)
	if err != nil {
		return false, err
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	created := false
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := entryExistsTx(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if e.FolderID != "" {
			var folderOwner string
			err := tx.QueryRowContext(ctx, "SELECT owner FROM folders WHERE id = ?", e.FolderID).Scan(&folderOwner)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("folder %s: %w", e.FolderID, ErrNotFound)
			}
			if err != nil {
				return err
			}
			if folderOwner != e.Owner {
				return fmt.Errorf("folder %s: %w", e.FolderID, ErrNotFound)
			}
		}

		if err := reserveQuotaTx(ctx, tx, e.Owner, e.LogicalSize); err != nil {
			return err
		}
		if _, err := createBlobIfAbsentTx(ctx, tx, e.Digest, e.BlobKey, e.LogicalSize); err != nil {
			return err
		}
		if _, err := incrementRefTx(ctx, tx, e.Digest); err != nil {
			return err
		}

		var folderID any
		if e.FolderID != "" {
			folderID = e.FolderID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_entries (id, owner, display_name, folder_id, digest, logical_size, visibility, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Owner, strings.TrimSpace(e.DisplayName), folderID, e.Digest, e.LogicalSize, string(visibility), formatTime(createdAt)); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
