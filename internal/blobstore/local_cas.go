package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

// LocalCAS stores blob bytes in a local content-addressed tree. Object paths
// are derived from the digest (two levels of prefix fan-out), so lookups
// never need an index scan and no directory grows unbounded.
type LocalCAS struct {
	root string
	algo digest.Algorithm
}

var encodedDigestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// NewLocalCAS creates a local CAS rooted at root, hashing new content
// with algo.
func NewLocalCAS(root string, algo digest.Algorithm) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	if _, err := newHash(algo); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs, algo: algo}, nil
}

// Algorithm returns the digest algorithm used for new content.
func (c *LocalCAS) Algorithm() digest.Algorithm {
	return c.algo
}

// Stage spools the stream to a temp file while hashing it.
func (c *LocalCAS) Stage(ctx context.Context, r io.Reader) (*Staged, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := newHash(c.algo)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "stage-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	return &Staged{
		Digest:    digestFromSum(c.algo, h.Sum(nil)),
		SizeBytes: n,
		path:      tmpPath,
	}, nil
}

// Promote moves staged bytes into the content-addressed tree.
func (c *LocalCAS) Promote(ctx context.Context, staged *Staged, declaredSize int64) (PutResult, error) {
	var zero PutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if staged == nil || staged.path == "" {
		return zero, fmt.Errorf("staged content is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if staged.SizeBytes != declaredSize {
		c.Discard(staged)
		return zero, fmt.Errorf("staged size %d does not match declared size %d", staged.SizeBytes, declaredSize)
	}

	key, err := KeyFromDigest(staged.Digest)
	if err != nil {
		c.Discard(staged)
		return zero, err
	}
	dst := filepath.Join(c.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		c.Discard(staged)
		return zero, err
	}

	if info, err := os.Stat(dst); err == nil {
		// Truncated prior write: the stored size is authoritative only when
		// it matches the content size for this digest.
		if info.Size() != staged.SizeBytes {
			return zero, fmt.Errorf("existing blob %s has size %d, expected %d", staged.Digest, info.Size(), staged.SizeBytes)
		}
		c.Discard(staged)
		return PutResult{Created: false, BlobKey: key}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		c.Discard(staged)
		return zero, err
	}

	if err := os.Rename(staged.path, dst); err != nil {
		// Lost a race with a concurrent writer of identical content.
		if _, statErr := os.Stat(dst); statErr == nil {
			c.Discard(staged)
			return PutResult{Created: false, BlobKey: key}, nil
		}
		c.Discard(staged)
		return zero, err
	}
	staged.path = ""

	return PutResult{Created: true, BlobKey: key}, nil
}

// Put stores a stream under a caller-supplied digest.
func (c *LocalCAS) Put(ctx context.Context, dgst digest.Digest, r io.Reader, declaredSize int64) (PutResult, error) {
	var zero PutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	key, err := KeyFromDigest(dgst)
	if err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// Short-circuit when the content already exists; the stream is drained
	// so callers need not special-case the duplicate path.
	if _, err := os.Stat(filepath.Join(c.root, filepath.FromSlash(key))); err == nil {
		if r != nil {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return zero, err
			}
		}
		return PutResult{Created: false, BlobKey: key}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return zero, err
	}

	staged, err := c.Stage(ctx, r)
	if err != nil {
		return zero, err
	}
	if staged.Digest != dgst {
		c.Discard(staged)
		return zero, fmt.Errorf("content digest %s does not match declared digest %s", staged.Digest, dgst)
	}
	return c.Promote(ctx, staged, declaredSize)
}

// Open returns a reader over stored content.
func (c *LocalCAS) Open(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := KeyFromDigest(dgst)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(c.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", dgst, fs.ErrNotExist)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether physical bytes for dgst are present.
func (c *LocalCAS) Exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := KeyFromDigest(dgst)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(filepath.Join(c.root, filepath.FromSlash(key))); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Remove deletes the physical object. Missing files are ignored.
func (c *LocalCAS) Remove(ctx context.Context, dgst digest.Digest) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := KeyFromDigest(dgst)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(c.root, filepath.FromSlash(key))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Discard releases a staged spool without promoting it.
func (c *LocalCAS) Discard(staged *Staged) {
	if staged == nil || staged.path == "" {
		return
	}
	_ = os.Remove(staged.path)
	staged.path = ""
}

// KeyFromDigest derives the storage key for a digest:
// <algorithm>/<first two>/<next two>/<encoded>.
func KeyFromDigest(dgst digest.Digest) (string, error) {
	algo := dgst.Algorithm()
	encoded := dgst.Encoded()
	if algo == "" || !encodedDigestPattern.MatchString(encoded) {
		return "", fmt.Errorf("invalid digest: %q", string(dgst))
	}
	return fmt.Sprintf("%s/%s/%s/%s", algo, encoded[0:2], encoded[2:4], encoded), nil
}
