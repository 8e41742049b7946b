package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"filecask/internal/blobstore"
	"filecask/internal/models"
	"filecask/internal/store"
)

// FileService orchestrates file workflows across the metadata store and
// the blob store. Physical writes happen before the metadata commit and
// physical removes after it, always under the per-digest lock, so the
// reference index never points at missing bytes.
type FileService struct {
	store *store.Store
	blobs blobstore.BlobStore
	locks *digestLocks
	log   *slog.Logger

	maxUploadBytes int64
}

// FileContent carries an opened download stream plus the metadata a
// handler needs to frame the response.
type FileContent struct {
	Reader      io.ReadCloser
	SizeBytes   int64
	DisplayName string
	Digest      string
}

// NewFileService constructs a FileService. maxUploadBytes <= 0 disables
// the per-file size cap.
func NewFileService(st *store.Store, blobs blobstore.BlobStore, log *slog.Logger, maxUploadBytes int64) *FileService {
	if log == nil {
		log = slog.Default()
	}
	return &FileService{
		store:          st,
		blobs:          blobs,
		locks:          newDigestLocks(),
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadInput describes one upload request.
type UploadInput struct {
	DisplayName string
	FolderID    string
	Visibility  string
	Content     io.Reader
}

// Upload stores content for actor: stage and hash the stream, place the
// bytes in content-addressed storage, then commit metadata in one
// transaction. A commit failure unwinds the physical write only when this
// upload created the bytes and nothing else references them.
func (s *FileService) Upload(ctx context.Context, actor string, in UploadInput) (*models.FileEntry, error) {
	if in.Content == nil {
		return nil, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired)
	}
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateDisplayName(in.DisplayName); err != nil {
		return nil, badRequest(err)
	}
	if _, err := models.ParseVisibility(in.Visibility); err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidVisibility)
	}

	staged, err := s.blobs.Stage(ctx, in.Content)
	if err != nil {
		return nil, ioFailure(fmt.Errorf("stage upload: %w", err))
	}
	defer s.blobs.Discard(staged)

	if s.maxUploadBytes > 0 && staged.SizeBytes > s.maxUploadBytes {
		return nil, makeAPIError(http.StatusRequestEntityTooLarge, "request_too_large", ErrCodeRequestTooLarge,
			fmt.Errorf("file exceeds maximum size of %d bytes", s.maxUploadBytes))
	}

	unlock := s.locks.lock(staged.Digest.String())
	defer unlock()

	put, err := s.blobs.Promote(ctx, staged, staged.SizeBytes)
	if err != nil {
		return nil, ioFailure(fmt.Errorf("promote upload: %w", err))
	}

	entry, _, err := s.store.CommitUpload(ctx, store.EntryCommit{
		Owner:       actor,
		DisplayName: in.DisplayName,
		FolderID:    strings.TrimSpace(in.FolderID),
		Digest:      staged.Digest.String(),
		BlobKey:     put.BlobKey,
		SizeBytes:   staged.SizeBytes,
		Visibility:  in.Visibility,
	})
	if err != nil {
		s.unwindPhysical(ctx, staged.Digest, put.Created)
		return nil, serviceError(err)
	}
	return entry, nil
}

// LinkInput describes linking an entry to content already stored.
type LinkInput struct {
	Digest      string
	DisplayName string
	FolderID    string
	Visibility  string
}

// LinkExisting creates a new entry for actor against content already held
// by digest. No bytes move; quota is charged and the reference count
// incremented exactly as for an upload.
func (s *FileService) LinkExisting(ctx context.Context, actor string, in LinkInput) (*models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateDisplayName(in.DisplayName); err != nil {
		return nil, badRequest(err)
	}
	if _, err := models.ParseVisibility(in.Visibility); err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidVisibility)
	}
	dgst, err := parseDigestParam(in.Digest)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(dgst.String())
	defer unlock()

	blob, err := s.store.GetBlob(ctx, dgst.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundCode(fmt.Errorf("no content stored for digest %s", dgst), ErrCodeBlobNotFound)
		}
		return nil, serviceError(err)
	}

	entry, err := s.store.CommitLink(ctx, store.EntryCommit{
		Owner:       actor,
		DisplayName: in.DisplayName,
		FolderID:    strings.TrimSpace(in.FolderID),
		Digest:      blob.Digest,
		BlobKey:     blob.BlobKey,
		SizeBytes:   blob.SizeBytes,
		Visibility:  in.Visibility,
	})
	if err != nil {
		return nil, serviceError(err)
	}
	return entry, nil
}

// CopyInput describes copying a readable entry into the actor's namespace.
type CopyInput struct {
	DisplayName string
	FolderID    string
}

// CopyEntry creates an actor-owned entry over the same content as an
// entry the actor can read. The copy charges the actor's quota for the
// full logical size even though no bytes are duplicated.
func (s *FileService) CopyEntry(ctx context.Context, actor, entryID string, in CopyInput) (*models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	src, err := s.readableEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = src.DisplayName
	}
	if err := models.ValidateDisplayName(name); err != nil {
		return nil, badRequest(err)
	}

	unlock := s.locks.lock(src.Digest)
	defer unlock()

	blob, err := s.store.GetBlob(ctx, src.Digest)
	if err != nil {
		return nil, serviceError(err)
	}

	entry, err := s.store.CommitLink(ctx, store.EntryCommit{
		Owner:       actor,
		DisplayName: name,
		FolderID:    strings.TrimSpace(in.FolderID),
		Digest:      blob.Digest,
		BlobKey:     blob.BlobKey,
		SizeBytes:   blob.SizeBytes,
		Visibility:  string(models.VisibilityPrivate),
	})
	if err != nil {
		return nil, serviceError(err)
	}
	return entry, nil
}

// Download opens the content stream for an entry the actor can read.
func (s *FileService) Download(ctx context.Context, actor, entryID string) (*FileContent, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.readableEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	return s.openEntry(ctx, entry)
}

// Delete removes an actor-owned entry: metadata commit first, then the
// physical bytes when the reference count reached zero. A crash between
// the two leaves an orphaned file on disk but never a dangling reference.
func (s *FileService) Delete(ctx context.Context, actor, entryID string) (*store.DeleteResult, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(entry.Digest)
	defer unlock()

	res, err := s.store.CommitDelete(ctx, entry.ID)
	if err != nil {
		return nil, serviceError(err)
	}
	if res.QuotaClamped {
		s.log.Error("quota release clamped below zero", "owner", entry.Owner, "entry_id", entry.ID, "size", entry.LogicalSize)
	}
	if res.Collected {
		dgst := digest.Digest(entry.Digest)
		if err := s.blobs.Remove(ctx, dgst); err != nil {
			// Metadata already committed; the blob row is gone, so the
			// orphaned bytes are unreachable and harmless.
			s.log.Warn("remove collected blob", "digest", entry.Digest, "error", err)
		}
	}
	return &res, nil
}

// Rename changes an actor-owned entry's display name.
func (s *FileService) Rename(ctx context.Context, actor, entryID, name string) (*models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateDisplayName(name); err != nil {
		return nil, badRequest(err)
	}
	if err := s.store.RenameEntry(ctx, entry.ID, name); err != nil {
		return nil, serviceError(err)
	}
	return s.getEntry(ctx, entry.ID)
}

// Move places an actor-owned entry in a folder, or in the root when
// folderID is empty.
func (s *FileService) Move(ctx context.Context, actor, entryID, folderID string) (*models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	folderID = strings.TrimSpace(folderID)
	if folderID != "" {
		folder, err := s.store.GetFolder(ctx, folderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFoundCode(fmt.Errorf("folder %s not found", folderID), ErrCodeFolderNotFound)
			}
			return nil, serviceError(err)
		}
		if folder.Owner != actor {
			return nil, forbidden(fmt.Errorf("folder %s is not owned by %s", folderID, actor))
		}
	}
	if err := s.store.MoveEntry(ctx, entry.ID, folderID); err != nil {
		return nil, serviceError(err)
	}
	return s.getEntry(ctx, entry.ID)
}

// SetVisibility changes an actor-owned entry's visibility.
func (s *FileService) SetVisibility(ctx context.Context, actor, entryID, visibility string) (*models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	v, err := models.ParseVisibility(visibility)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidVisibility)
	}
	if err := s.store.SetEntryVisibility(ctx, entry.ID, v); err != nil {
		return nil, serviceError(err)
	}
	return s.getEntry(ctx, entry.ID)
}

// GetMeta returns entry metadata the actor is allowed to see.
func (s *FileService) GetMeta(ctx context.Context, actor, entryID string) (*models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	return s.readableEntry(ctx, actor, entryID)
}

// List lists the actor's entries, optionally scoped to one folder.
// folderID "root" scopes the listing to entries outside any folder.
func (s *FileService) List(ctx context.Context, actor, folderID string) ([]models.FileEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	filter := store.EntryListFilter{Owner: actor}
	switch strings.TrimSpace(folderID) {
	case "":
	case "root":
		filter.InRoot = true
	default:
		filter.FolderID = strings.TrimSpace(folderID)
	}
	entries, err := s.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, serviceError(err)
	}
	return entries, nil
}

// ListSharedWithMe lists entries other users granted to the actor.
func (s *FileService) ListSharedWithMe(ctx context.Context, actor string) ([]store.SharedEntry, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	shared, err := s.store.ListSharedWith(ctx, actor)
	if err != nil {
		return nil, serviceError(err)
	}
	return shared, nil
}

// CreateFolder creates a folder for the actor.
func (s *FileService) CreateFolder(ctx context.Context, actor, name string) (*models.Folder, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseFolderName(name); err != nil {
		return nil, badRequest(err)
	}
	folder, err := s.store.CreateFolder(ctx, actor, name)
	if err != nil {
		return nil, serviceError(err)
	}
	return folder, nil
}

// ListFolders lists the actor's folders.
func (s *FileService) ListFolders(ctx context.Context, actor string) ([]models.Folder, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	folders, err := s.store.ListFolders(ctx, actor)
	if err != nil {
		return nil, serviceError(err)
	}
	return folders, nil
}

// UsageReport pairs a user's quota standing with the system-wide bytes
// saved by deduplication.
type UsageReport struct {
	Quota            *models.UserQuota
	SavedBytesGlobal int64
}

// Usage returns the actor's quota standing.
func (s *FileService) Usage(ctx context.Context, actor string) (*UsageReport, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	usage, err := s.store.Usage(ctx, actor)
	if err != nil {
		return nil, serviceError(err)
	}
	saved, err := s.store.GlobalSavings(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	return &UsageReport{Quota: usage, SavedBytesGlobal: saved}, nil
}

// Stats returns the actor's deduplication numbers.
func (s *FileService) Stats(ctx context.Context, actor string) (*store.UserStats, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.UserDedupStats(ctx, actor)
	if err != nil {
		return nil, serviceError(err)
	}
	return stats, nil
}

// GlobalStats reports system-wide storage numbers.
type GlobalStats struct {
	UserCount     int64 `json:"user_count"`
	EntryCount    int64 `json:"entry_count"`
	BlobCount     int64 `json:"blob_count"`
	PhysicalBytes int64 `json:"physical_bytes"`
	LogicalBytes  int64 `json:"logical_bytes"`
	SavedBytes    int64 `json:"saved_bytes"`
}

// SystemStats aggregates global dedup savings across all users.
func (s *FileService) SystemStats(ctx context.Context) (*GlobalStats, error) {
	stats := &GlobalStats{}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	stats.UserCount = int64(len(users))
	for _, u := range users {
		stats.LogicalBytes += u.LogicalBytesUsed
	}

	entries, err := s.store.ListAllEntries(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	stats.EntryCount = int64(len(entries))

	stats.BlobCount, stats.PhysicalBytes, err = s.store.GlobalPhysical(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	stats.SavedBytes = stats.LogicalBytes - stats.PhysicalBytes
	return stats, nil
}

// Share grants grantee read access to an actor-owned entry.
func (s *FileService) Share(ctx context.Context, actor, entryID, grantee string) (*models.ShareGrant, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	grantee, err = models.NormalizeUsername(grantee)
	if err != nil {
		return nil, badRequest(err)
	}
	if grantee == actor {
		return nil, badRequest(fmt.Errorf("cannot share an entry with its owner"))
	}
	exists, err := s.store.UserExists(ctx, grantee)
	if err != nil {
		return nil, serviceError(err)
	}
	if !exists {
		return nil, notFoundCode(fmt.Errorf("user %s not found", grantee), ErrCodeUserNotFound)
	}
	grant, err := s.store.AddShareGrant(ctx, entry.ID, grantee)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, conflict(fmt.Errorf("entry already shared with %s", grantee))
		}
		return nil, serviceError(err)
	}
	return grant, nil
}

// Unshare removes a grant from an actor-owned entry.
func (s *FileService) Unshare(ctx context.Context, actor, entryID, grantee string) error {
	actor, err := s.requireActor(actor)
	if err != nil {
		return err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return err
	}
	grantee, err = models.NormalizeUsername(grantee)
	if err != nil {
		return badRequest(err)
	}
	if err := s.store.RemoveShareGrant(ctx, entry.ID, grantee); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundCode(fmt.Errorf("no share for %s", grantee), ErrCodeShareNotFound)
		}
		return serviceError(err)
	}
	return nil
}

// ListGrants lists grants on an actor-owned entry.
func (s *FileService) ListGrants(ctx context.Context, actor, entryID string) ([]models.ShareGrant, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrantsForEntry(ctx, entry.ID)
	if err != nil {
		return nil, serviceError(err)
	}
	return grants, nil
}

// CreateShareLink mints an unauthenticated download token for an
// actor-owned entry. An existing active link is returned as-is so
// repeated calls stay idempotent.
func (s *FileService) CreateShareLink(ctx context.Context, actor, entryID string) (*models.ShareLink, error) {
	actor, err := s.requireActor(actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ActiveShareLinkForEntry(ctx, entry.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, serviceError(err)
	}
	if existing != nil {
		return existing, nil
	}

	link := &models.ShareLink{
		Token:     uuid.NewString(),
		EntryID:   entry.ID,
		CreatedBy: actor,
	}
	if err := s.store.CreateShareLink(ctx, link); err != nil {
		return nil, serviceError(err)
	}
	return link, nil
}

// RevokeShareLink disables a token. Only the entry owner may revoke.
func (s *FileService) RevokeShareLink(ctx context.Context, actor, token string) error {
	actor, err := s.requireActor(actor)
	if err != nil {
		return err
	}
	link, err := s.store.GetShareLink(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundCode(fmt.Errorf("share link not found"), ErrCodeShareNotFound)
		}
		return serviceError(err)
	}
	entry, err := s.store.GetEntry(ctx, link.EntryID)
	if err != nil {
		return serviceError(err)
	}
	if entry.Owner != actor {
		return forbidden(fmt.Errorf("share link is not owned by %s", actor))
	}
	if err := s.store.RevokeShareLink(ctx, link.Token); err != nil {
		return serviceError(err)
	}
	return nil
}

// OpenSharedByToken opens a download stream for a share-link token.
// No actor identity is involved; a revoked or unknown token reads as
// not found so tokens cannot be probed for liveness.
func (s *FileService) OpenSharedByToken(ctx context.Context, token string) (*FileContent, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, notFoundCode(fmt.Errorf("share link not found"), ErrCodeShareNotFound)
	}
	link, err := s.store.GetShareLink(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundCode(fmt.Errorf("share link not found"), ErrCodeShareNotFound)
		}
		return nil, serviceError(err)
	}
	if link.Revoked {
		return nil, notFoundCode(fmt.Errorf("share link not found"), ErrCodeShareNotFound)
	}
	entry, err := s.store.GetEntry(ctx, link.EntryID)
	if err != nil {
		return nil, serviceError(err)
	}
	content, err := s.openEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	if err := s.store.IncrementDownloadCount(ctx, link.Token); err != nil {
		s.log.Warn("increment share link downloads", "token", link.Token, "error", err)
	}
	return content, nil
}

func (s *FileService) openEntry(ctx context.Context, entry *models.FileEntry) (*FileContent, error) {
	rc, err := s.blobs.Open(ctx, digest.Digest(entry.Digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A live reference must always have bytes behind it.
			return nil, invariantViolation(fmt.Errorf("entry %s references missing content %s", entry.ID, entry.Digest))
		}
		return nil, ioFailure(fmt.Errorf("open content: %w", err))
	}
	return &FileContent{
		Reader:      rc,
		SizeBytes:   entry.LogicalSize,
		DisplayName: entry.DisplayName,
		Digest:      entry.Digest,
	}, nil
}

// readableEntry fetches an entry and checks read access: the owner always
// reads, public entries read for everyone, shared entries read for
// grantees. Unauthorized reads report not found to avoid leaking entry
// existence.
func (s *FileService) readableEntry(ctx context.Context, actor, entryID string) (*models.FileEntry, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Owner == actor {
		return entry, nil
	}
	switch entry.Visibility {
	case string(models.VisibilityPublic):
		return entry, nil
	case string(models.VisibilityShared):
		granted, err := s.store.GrantExists(ctx, entry.ID, actor)
		if err != nil {
			return nil, serviceError(err)
		}
		if granted {
			return entry, nil
		}
	}
	return nil, notFoundCode(fmt.Errorf("entry %s not found", entryID), ErrCodeEntryNotFound)
}

// ownedEntry fetches an entry and requires actor to own it. Non-owners
// who could read the entry get forbidden; everyone else not found.
func (s *FileService) ownedEntry(ctx context.Context, actor, entryID string) (*models.FileEntry, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Owner != actor {
		if entry.Visibility == string(models.VisibilityPrivate) {
			return nil, notFoundCode(fmt.Errorf("entry %s not found", entryID), ErrCodeEntryNotFound)
		}
		return nil, forbidden(fmt.Errorf("entry %s is not owned by %s", entryID, actor))
	}
	return entry, nil
}

func (s *FileService) getEntry(ctx context.Context, entryID string) (*models.FileEntry, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return nil, badRequestCode(fmt.Errorf("entry id is required"), ErrCodeInvalidID)
	}
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundCode(fmt.Errorf("entry %s not found", entryID), ErrCodeEntryNotFound)
		}
		return nil, serviceError(err)
	}
	return entry, nil
}

func (s *FileService) requireActor(actor string) (string, error) {
	actor, err := models.NormalizeUsername(actor)
	if err != nil {
		return "", makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, fmt.Errorf("missing or invalid user identity"))
	}
	return actor, nil
}

// unwindPhysical removes bytes written by a failed upload. Removal is
// safe only when this request created the file and no committed
// reference exists, otherwise the bytes belong to someone else.
func (s *FileService) unwindPhysical(ctx context.Context, dgst digest.Digest, created bool) {
	if !created {
		return
	}
	refs, err := s.store.RefCount(ctx, dgst.String())
	if err != nil {
		s.log.Warn("check refs before unwind", "digest", dgst.String(), "error", err)
		return
	}
	if refs > 0 {
		return
	}
	if err := s.blobs.Remove(ctx, dgst); err != nil {
		s.log.Warn("unwind staged blob", "digest", dgst.String(), "error", err)
	}
}

// parseDigestParam validates an externally supplied digest string before
// it can reach path construction.
func parseDigestParam(raw string) (digest.Digest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", badRequestCode(fmt.Errorf("digest is required"), ErrCodeMissingRequired)
	}
	algo, encoded, ok := strings.Cut(raw, ":")
	if !ok {
		return "", badRequestCode(fmt.Errorf("digest must be algorithm:hex"), ErrCodeInvalidDigest)
	}
	parsedAlgo, err := blobstore.ParseAlgorithm(algo)
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidDigest)
	}
	dgst := digest.NewDigestFromEncoded(parsedAlgo, strings.ToLower(encoded))
	if _, err := blobstore.KeyFromDigest(dgst); err != nil {
		return "", badRequestCode(fmt.Errorf("malformed digest"), ErrCodeInvalidDigest)
	}
	return dgst, nil
}
