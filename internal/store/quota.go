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

const userColumns = "username, logical_bytes_used, quota_limit_bytes, created_at"

// CreateUser provisions a quota row for a new user.
func (s *Store) CreateUser(ctx context.Context, username string, quotaLimitBytes int64) (*models.UserQuota, error) {
	username, err := models.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if quotaLimitBytes < 0 {
		return nil, fmt.Errorf("quota limit must be >= 0")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, logical_bytes_used, quota_limit_bytes, created_at)
		VALUES (?, 0, ?, ?)
	`, username, quotaLimitBytes, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", username, ErrConflict)
		}
		return nil, err
	}

	return &models.UserQuota{
		Username:        username,
		QuotaLimitBytes: quotaLimitBytes,
		CreatedAt:       now,
	}, nil
}

// GetUser returns one user's quota row.
func (s *Store) GetUser(ctx context.Context, username string) (*models.UserQuota, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", username, ErrUnknownUser)
	}
	return user, nil
}

// UserExists reports whether a quota row exists for username.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username = ? LIMIT 1", username).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListUsers returns all quota rows ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]models.UserQuota, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.UserQuota{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users = append(users, *user)
		}
	}
	return users, rows.Err()
}

// SetQuotaLimit changes a user's quota limit. The limit cannot be lowered
// below the user's current logical usage.
func (s *Store) SetQuotaLimit(ctx context.Context, username string, quotaLimitBytes int64) error {
	if quotaLimitBytes < 0 {
		return fmt.Errorf("quota limit must be >= 0")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET quota_limit_bytes = ?
		WHERE username = ? AND logical_bytes_used <= ?
	`, quotaLimitBytes, username, quotaLimitBytes)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		exists, err := s.UserExists(ctx, username)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %s: %w", username, ErrUnknownUser)
		}
		return fmt.Errorf("quota limit below current usage: %w", ErrConflict)
	}
	return nil
}

// Usage returns a user's current quota state.
func (s *Store) Usage(ctx context.Context, username string) (*models.UserQuota, error) {
	return s.GetUser(ctx, username)
}

// GlobalSavings returns aggregate logical usage minus aggregate live
// physical storage. Always >= 0 while the ledger invariants hold.
func (s *Store) GlobalSavings(ctx context.Context) (int64, error) {
	var savings int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(logical_bytes_used) FROM users), 0)
		     - COALESCE((SELECT SUM(size_bytes) FROM blobs), 0)
	`).Scan(&savings)
	if err != nil {
		return 0, err
	}
	return savings, nil
}

// UserStats describes one user's dedup numbers.
type UserStats struct {
	Username      string `json:"username"`
	EntryCount    int64  `json:"entry_count"`
	LogicalBytes  int64  `json:"logical_bytes"`
	PhysicalBytes int64  `json:"physical_bytes"`
	SavedBytes    int64  `json:"saved_bytes"`
}

// UserDedupStats computes a user's logical footprint against the physical
// bytes of their distinct digests.
func (s *Store) UserDedupStats(ctx context.Context, username string) (*UserStats, error) {
	stats := &UserStats{Username: username}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(logical_size), 0)
		FROM file_entries WHERE owner = ?
	`, username).Scan(&stats.EntryCount, &stats.LogicalBytes)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size_bytes), 0) FROM blobs
		WHERE digest IN (SELECT DISTINCT digest FROM file_entries WHERE owner = ?)
	`, username).Scan(&stats.PhysicalBytes)
	if err != nil {
		return nil, err
	}
	stats.SavedBytes = stats.LogicalBytes - stats.PhysicalBytes
	return stats, nil
}

// reserveQuotaTx atomically checks and charges logical bytes for a user.
// The check and the charge are one UPDATE so concurrent reserves for the
// same user cannot both pass a limit they jointly exceed.
func reserveQuotaTx(ctx context.Context, tx *sql.Tx, username string, n int64) error {
	if n < 0 {
		return fmt.Errorf("reserve size must be >= 0")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET logical_bytes_used = logical_bytes_used + ?
		WHERE username = ? AND logical_bytes_used + ? <= quota_limit_bytes
	`, n, username, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username = ? LIMIT 1", username).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s: %w", username, ErrUnknownUser)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("user %s: %w", username, ErrQuotaExceeded)
	}
	return nil
}

// releaseQuotaTx credits logical bytes back. It never fails the caller's
// operation: a release that would go negative clamps to zero and reports
// clamped=true so the caller can log the invariant violation.
func releaseQuotaTx(ctx context.Context, tx *sql.Tx, username string, n int64) (clamped bool, err error) {
	if n < 0 {
		return false, fmt.Errorf("release size must be >= 0")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET logical_bytes_used = logical_bytes_used - ?
		WHERE username = ? AND logical_bytes_used >= ?
	`, n, username, n)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE users SET logical_bytes_used = 0 WHERE username = ?
	`, username)
	if err != nil {
		return false, err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanUser(row interface{ Scan(...any) error }) (*models.UserQuota, error) {
	var user models.UserQuota
	var createdAt string
	err := row.Scan(&user.Username, &user.LogicalBytesUsed, &user.QuotaLimitBytes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
