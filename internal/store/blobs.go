package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filecask/internal/models"
)

const blobColumns = "digest, size_bytes, blob_key, ref_count, created_at"

// GetBlob returns one live blob row. A blob whose reference count has
// reached zero is deleted in the same transaction that observed the zero,
// so existence implies liveness; the ref_count guard is defensive.
func (s *Store) GetBlob(ctx context.Context, dgst string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE digest = ? AND ref_count > 0`, dgst)
	blob, err := scanBlob(row)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("blob %s: %w", dgst, ErrNotFound)
	}
	return blob, nil
}

// RefCount returns the current reference count for a digest, zero when no
// row exists.
func (s *Store) RefCount(ctx context.Context, dgst string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT ref_count FROM blobs WHERE digest = ?", dgst).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IncrementRef atomically increments the reference count for a digest.
// Fails with ErrUnknownBlob when no blob row exists: an increment must
// always follow a successful store step, never precede it.
func (s *Store) IncrementRef(ctx context.Context, dgst string) (int64, error) {
	var newCount int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		newCount, err = incrementRefTx(ctx, tx, dgst)
		return err
	})
	return newCount, err
}

// DecrementAndMaybeCollect decrements the reference count and, when it
// reaches zero, removes the blob row in the same transaction so no other
// actor can observe or re-increment a zero count before collection. The
// caller removes the physical bytes after a collected=true return.
func (s *Store) DecrementAndMaybeCollect(ctx context.Context, dgst string) (newCount int64, collected bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		newCount, err = decrementRefTx(ctx, tx, dgst)
		if err != nil {
			return err
		}
		if newCount == 0 {
			collected, err = deleteBlobIfUnreferencedTx(ctx, tx, dgst)
		}
		return err
	})
	return newCount, collected, err
}

// GlobalPhysical returns the count and total size of all live blobs.
func (s *Store) GlobalPhysical(ctx context.Context) (count int64, bytes int64, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM blobs").Scan(&count, &bytes)
	return count, bytes, err
}

// createBlobIfAbsentTx inserts a blob row with ref_count 0 when the digest
// is new. The immediately-following increment is a separate statement so
// "store" and "reference" stay independently usable steps.
func createBlobIfAbsentTx(ctx context.Context, tx *sql.Tx, dgst, blobKey string, sizeBytes int64) (created bool, err error) {
	if sizeBytes < 0 {
		return false, fmt.Errorf("size_bytes must be >= 0")
	}
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (digest, size_bytes, blob_key, ref_count, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, dgst, sizeBytes, blobKey, formatTime(time.Now().UTC()))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	// Existing row: identical content must have identical size.
	var existingSize int64
	if err := tx.QueryRowContext(ctx, "SELECT size_bytes FROM blobs WHERE digest = ?", dgst).Scan(&existingSize); err != nil {
		return false, err
	}
	if existingSize != sizeBytes {
		return false, fmt.Errorf("blob %s exists with size %d, declared %d", dgst, existingSize, sizeBytes)
	}
	return false, nil
}

func incrementRefTx(ctx context.Context, tx *sql.Tx, dgst string) (int64, error) {
	res, err := tx.ExecContext(ctx, "UPDATE blobs SET ref_count = ref_count + 1 WHERE digest = ?", dgst)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, fmt.Errorf("blob %s: %w", dgst, ErrUnknownBlob)
	}

	var count int64
	if err := tx.QueryRowContext(ctx, "SELECT ref_count FROM blobs WHERE digest = ?", dgst).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func decrementRefTx(ctx context.Context, tx *sql.Tx, dgst string) (int64, error) {
	res, err := tx.ExecContext(ctx, "UPDATE blobs SET ref_count = ref_count - 1 WHERE digest = ? AND ref_count > 0", dgst)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE digest = ? LIMIT 1", dgst).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("blob %s: %w", dgst, ErrUnknownBlob)
		}
		if err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("blob %s: %w", dgst, ErrRefUnderflow)
	}

	var count int64
	if err := tx.QueryRowContext(ctx, "SELECT ref_count FROM blobs WHERE digest = ?", dgst).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func deleteBlobIfUnreferencedTx(ctx context.Context, tx *sql.Tx, dgst string) (bool, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM blobs WHERE digest = ? AND ref_count = 0", dgst)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanBlob(row interface{ Scan(...any) error }) (*models.Blob, error) {
	var blob models.Blob
	var createdAt string
	err := row.Scan(&blob.Digest, &blob.SizeBytes, &blob.BlobKey, &blob.RefCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	blob.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &blob, nil
}
