package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"filecask/internal/models"
)

func TestShareGrants(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)
	mustUser(t, st, "bob", 10_000)

	entry := mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "doc.pdf", Digest: testDigest(1), BlobKey: testBlobKey(1), SizeBytes: 50,
	})

	if _, err := st.AddShareGrant(ctx, entry.ID, "bob"); err != nil {
		t.Fatalf("add grant: %v", err)
	}
	if _, err := st.AddShareGrant(ctx, entry.ID, "bob"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate grant, got %v", err)
	}

	ok, err := st.GrantExists(ctx, entry.ID, "bob")
	if err != nil {
		t.Fatalf("grant exists: %v", err)
	}
	if !ok {
		t.Fatal("expected grant to exist")
	}

	shared, err := st.ListSharedWith(ctx, "bob")
	if err != nil {
		t.Fatalf("list shared: %v", err)
	}
	if len(shared) != 1 || shared[0].Entry.ID != entry.ID || shared[0].SharedBy != "alice" {
		t.Fatalf("unexpected shared listing: %+v", shared)
	}

	// Sharing never touches quota or references.
	bob, _ := st.GetUser(ctx, "bob")
	if bob.LogicalBytesUsed != 0 {
		t.Fatalf("expected bob usage 0, got %d", bob.LogicalBytesUsed)
	}
	if count, _ := st.RefCount(ctx, entry.Digest); count != 1 {
		t.Fatalf("expected ref_count 1, got %d", count)
	}

	if err := st.RemoveShareGrant(ctx, entry.ID, "bob"); err != nil {
		t.Fatalf("remove grant: %v", err)
	}
	if err := st.RemoveShareGrant(ctx, entry.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestShareLinks(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)

	entry := mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "doc.pdf", Digest: testDigest(2), BlobKey: testBlobKey(2), SizeBytes: 50,
	})

	link := &models.ShareLink{Token: uuid.NewString(), EntryID: entry.ID, CreatedBy: "alice"}
	if err := st.CreateShareLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	got, err := st.GetShareLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if got.EntryID != entry.ID || got.Revoked || got.DownloadCount != 0 {
		t.Fatalf("unexpected link: %+v", got)
	}

	active, err := st.ActiveShareLinkForEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("active link: %v", err)
	}
	if active == nil || active.Token != link.Token {
		t.Fatalf("expected active link, got %+v", active)
	}

	if err := st.IncrementDownloadCount(ctx, link.Token); err != nil {
		t.Fatalf("increment downloads: %v", err)
	}
	got, _ = st.GetShareLink(ctx, link.Token)
	if got.DownloadCount != 1 {
		t.Fatalf("expected download_count 1, got %d", got.DownloadCount)
	}

	if err := st.RevokeShareLink(ctx, link.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	active, err = st.ActiveShareLinkForEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("active after revoke: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active link, got %+v", active)
	}

	if _, err := st.GetShareLink(ctx, "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteEntryCleansShares(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)
	mustUser(t, st, "bob", 10_000)

	entry := mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "doc.pdf", Digest: testDigest(3), BlobKey: testBlobKey(3), SizeBytes: 50,
	})
	if _, err := st.AddShareGrant(ctx, entry.ID, "bob"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	link := &models.ShareLink{Token: uuid.NewString(), EntryID: entry.ID, CreatedBy: "alice"}
	if err := st.CreateShareLink(ctx, link); err != nil {
		t.Fatalf("link: %v", err)
	}

	if _, err := st.CommitDelete(ctx, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetShareLink(ctx, link.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected link removed with entry, got %v", err)
	}
	shared, _ := st.ListSharedWith(ctx, "bob")
	if len(shared) != 0 {
		t.Fatalf("expected no shares after delete, got %d", len(shared))
	}
}

func TestFolders(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)
	mustUser(t, st, "bob", 10_000)

	folder, err := st.CreateFolder(ctx, "alice", "docs")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateFolder(ctx, "alice", "docs"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate, got %v", err)
	}
	// Same name under a different owner is fine.
	if _, err := st.CreateFolder(ctx, "bob", "docs"); err != nil {
		t.Fatalf("bob create: %v", err)
	}

	got, err := st.GetFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "docs" || got.Owner != "alice" {
		t.Fatalf("unexpected folder: %+v", got)
	}

	folders, err := st.ListFolders(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(folders) != 1 {
		t.Fatalf("expected 1 folder, got %d", len(folders))
	}
}
