package store

import (
	"context"
	"errors"
	"testing"
)

func TestIncrementRefUnknownBlob(t *testing.T) {
	st := testStore(t)
	if _, err := st.IncrementRef(context.Background(), testDigest(1)); !errors.Is(err, ErrUnknownBlob) {
		t.Fatalf("expected ErrUnknownBlob, got %v", err)
	}
}

func TestDecrementUnderflow(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)

	entry := mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "a.bin", Digest: testDigest(1), BlobKey: testBlobKey(1), SizeBytes: 10,
	})

	// Entry holds one reference; a bare extra decrement drives it to zero
	// and collects, and a further decrement is an invariant violation.
	if _, err := st.CommitDelete(ctx, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := st.DecrementAndMaybeCollect(ctx, testDigest(1)); !errors.Is(err, ErrUnknownBlob) {
		t.Fatalf("expected ErrUnknownBlob after collection, got %v", err)
	}
}

func TestDecrementAndMaybeCollect(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)

	dgst := testDigest(2)
	entry := mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "a.bin", Digest: dgst, BlobKey: testBlobKey(2), SizeBytes: 10,
	})

	// Two extra references, then drop the entry so the blob row can be
	// collected once the direct decrements drive the count to zero. The
	// entry delete itself takes the count from 3 to 2 without collecting.
	for i := 0; i < 2; i++ {
		if _, err := st.IncrementRef(ctx, dgst); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if _, err := st.CommitDelete(ctx, entry.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}

	newCount, collected, err := st.DecrementAndMaybeCollect(ctx, dgst)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if newCount != 1 || collected {
		t.Fatalf("expected count 1 uncollected, got count=%d collected=%v", newCount, collected)
	}
	if _, err := st.GetBlob(ctx, dgst); err != nil {
		t.Fatalf("blob must survive while referenced: %v", err)
	}

	newCount, collected, err = st.DecrementAndMaybeCollect(ctx, dgst)
	if err != nil {
		t.Fatalf("decrement to zero: %v", err)
	}
	if newCount != 0 || !collected {
		t.Fatalf("expected collection at zero, got count=%d collected=%v", newCount, collected)
	}
	if _, err := st.GetBlob(ctx, dgst); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after collect, got %v", err)
	}
}

func TestBlobSizeMismatchRejected(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)
	mustUser(t, st, "bob", 10_000)

	dgst := testDigest(3)
	mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "a.bin", Digest: dgst, BlobKey: testBlobKey(3), SizeBytes: 10,
	})

	// Same digest with a different declared size indicates corruption.
	_, _, err := st.CommitUpload(ctx, EntryCommit{
		Owner: "bob", DisplayName: "b.bin", Digest: dgst, BlobKey: testBlobKey(3), SizeBytes: 11,
	})
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
	// And the failed commit rolled back bob's quota reserve.
	bob, _ := st.GetUser(ctx, "bob")
	if bob.LogicalBytesUsed != 0 {
		t.Fatalf("expected bob usage 0, got %d", bob.LogicalBytesUsed)
	}
}

func TestGlobalPhysical(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustUser(t, st, "alice", 10_000)

	mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "a.bin", Digest: testDigest(4), BlobKey: testBlobKey(4), SizeBytes: 10,
	})
	mustCommitUpload(t, st, EntryCommit{
		Owner: "alice", DisplayName: "b.bin", Digest: testDigest(5), BlobKey: testBlobKey(5), SizeBytes: 20,
	})

	count, bytes, err := st.GlobalPhysical(ctx)
	if err != nil {
		t.Fatalf("global physical: %v", err)
	}
	if count != 2 || bytes != 30 {
		t.Fatalf("expected 2 blobs / 30 bytes, got %d / %d", count, bytes)
	}
}
