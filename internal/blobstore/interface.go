package blobstore

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
)

// Staged is a fully hashed byte stream spooled to local disk, ready to be
// promoted into content-addressed storage or discarded.
type Staged struct {
	Digest    digest.Digest
	SizeBytes int64

	path string
}

// PutResult reports the outcome of storing content by digest.
type PutResult struct {
	Created bool
	BlobKey string
}

// BlobStore is the physical byte-storage abstraction. It owns blob bytes
// exclusively; reference counting and liveness live in the metadata store.
type BlobStore interface {
	// Algorithm returns the digest algorithm used for new content.
	Algorithm() digest.Algorithm

	// Stage consumes the stream incrementally, computing its digest while
	// spooling bytes to a temporary location. No content-addressed state is
	// touched; a read error leaves nothing behind.
	Stage(ctx context.Context, r io.Reader) (*Staged, error)

	// Promote moves staged bytes into their digest-derived location.
	// A no-op returning Created=false when the digest already exists.
	// Fails if the staged size does not match declaredSize.
	Promote(ctx context.Context, staged *Staged, declaredSize int64) (PutResult, error)

	// Put stores a stream under a caller-supplied digest, verifying both the
	// digest and declaredSize against what was read. Create-if-absent.
	Put(ctx context.Context, dgst digest.Digest, r io.Reader, declaredSize int64) (PutResult, error)

	// Open returns a reader over the stored content for dgst.
	// Returns an error wrapping fs.ErrNotExist when the content is absent.
	Open(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error)

	// Exists reports whether physical bytes for dgst are present.
	Exists(ctx context.Context, dgst digest.Digest) (bool, error)

	// Remove deletes the physical bytes for dgst. Missing content is not an
	// error; the caller decides liveness via the reference index.
	Remove(ctx context.Context, dgst digest.Digest) error

	// Discard releases a staged spool without promoting it.
	Discard(staged *Staged)
}
