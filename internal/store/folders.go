package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filecask/internal/models"
)

const folderColumns = "id, owner, name, created_at"

// CreateFolder creates a folder for owner. Folder names are unique per
// owner.
func (s *Store) CreateFolder(ctx context.Context, owner, name string) (*models.Folder, error) {
	name, err := models.ParseFolderName(name)
	if err != nil {
		return nil, err
	}

	var folder *models.Folder
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := GenerateFolderID(func(id string) (bool, error) {
			var exists int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM folders WHERE id = ? LIMIT 1", id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return err == nil, err
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO folders (id, owner, name, created_at) VALUES (?, ?, ?, ?)
		`, id, owner, name, formatTime(now)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("folder %s: %w", name, ErrConflict)
			}
			return err
		}

		folder = &models.Folder{ID: id, Owner: owner, Name: name, CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// GetFolder returns one folder.
func (s *Store) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	folder, err := scanFolder(row)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return folder, nil
}

// ListFolders lists a user's folders by name.
func (s *Store) ListFolders(ctx context.Context, owner string) ([]models.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE owner = ? ORDER BY name ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := []models.Folder{}
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			folders = append(folders, *folder)
		}
	}
	return folders, rows.Err()
}

// ListAllFolders returns every folder, used by the catalog export.
func (s *Store) ListAllFolders(ctx context.Context) ([]models.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY owner ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := []models.Folder{}
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			folders = append(folders, *folder)
		}
	}
	return folders, rows.Err()
}

func scanFolder(row interface{ Scan(...any) error }) (*models.Folder, error) {
	var folder models.Folder
	var createdAt string
	err := row.Scan(&folder.ID, &folder.Owner, &folder.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	folder.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}
