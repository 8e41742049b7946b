package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
)

func testCAS(t *testing.T) *LocalCAS {
	t.Helper()
	cas, err := NewLocalCAS(t.TempDir(), digest.SHA256)
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	return cas
}

func TestStagePromoteOpenRemove(t *testing.T) {
	cas := testCAS(t)
	ctx := context.Background()

	staged, err := cas.Stage(ctx, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	wantSum := sha256.Sum256([]byte("hello"))
	if staged.Digest.Encoded() != hex.EncodeToString(wantSum[:]) {
		t.Fatalf("unexpected digest: %s", staged.Digest)
	}
	if staged.SizeBytes != 5 {
		t.Fatalf("expected size 5, got %d", staged.SizeBytes)
	}

	res, err := cas.Promote(ctx, staged, 5)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !res.Created {
		t.Fatal("expected created=true on first promote")
	}
	if !strings.HasPrefix(res.BlobKey, "sha256/") {
		t.Fatalf("unexpected blob key: %s", res.BlobKey)
	}

	if exists, err := cas.Exists(ctx, staged.Digest); err != nil || !exists {
		t.Fatalf("expected exists=true after promote (exists=%v err=%v)", exists, err)
	}

	rc, err := cas.Open(ctx, staged.Digest)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	if err := cas.Remove(ctx, staged.Digest); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := cas.Remove(ctx, staged.Digest); err != nil {
		t.Fatalf("remove missing should be noop: %v", err)
	}
	if _, err := cas.Open(ctx, staged.Digest); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist after remove, got %v", err)
	}
	if exists, err := cas.Exists(ctx, staged.Digest); err != nil || exists {
		t.Fatalf("expected exists=false after remove (exists=%v err=%v)", exists, err)
	}
}

func TestPromoteDuplicateIsNoop(t *testing.T) {
	cas := testCAS(t)
	ctx := context.Background()

	first, err := cas.Stage(ctx, strings.NewReader("same content"))
	if err != nil {
		t.Fatalf("stage first: %v", err)
	}
	if _, err := cas.Promote(ctx, first, first.SizeBytes); err != nil {
		t.Fatalf("promote first: %v", err)
	}

	second, err := cas.Stage(ctx, strings.NewReader("same content"))
	if err != nil {
		t.Fatalf("stage second: %v", err)
	}
	res, err := cas.Promote(ctx, second, second.SizeBytes)
	if err != nil {
		t.Fatalf("promote second: %v", err)
	}
	if res.Created {
		t.Fatal("expected created=false for duplicate content")
	}
}

func TestPromoteSizeMismatch(t *testing.T) {
	cas := testCAS(t)
	ctx := context.Background()

	staged, err := cas.Stage(ctx, strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := cas.Promote(ctx, staged, 4); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := cas.Open(ctx, digest.FromString("abc")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("mismatched promote must not store content, got %v", err)
	}
}

func TestPutByDigest(t *testing.T) {
	cas := testCAS(t)
	ctx := context.Background()
	content := []byte("put by digest")
	dgst := digest.FromBytes(content)

	res, err := cas.Put(ctx, dgst, bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !res.Created {
		t.Fatal("expected created=true")
	}

	// Duplicate put drains the stream and reports created=false.
	res, err = cas.Put(ctx, dgst, bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("put duplicate: %v", err)
	}
	if res.Created {
		t.Fatal("expected created=false for duplicate put")
	}

	// A stream that does not hash to the declared digest is rejected.
	other := digest.FromString("something else entirely")
	if _, err := cas.Put(ctx, other, bytes.NewReader(content), int64(len(content))); err == nil {
		t.Fatal("expected digest mismatch error")
	}
}

func TestStageReadFailureLeavesNothing(t *testing.T) {
	cas := testCAS(t)
	broken := io.MultiReader(strings.NewReader("partial"), &failingReader{})
	if _, err := cas.Stage(context.Background(), broken); err == nil {
		t.Fatal("expected read error")
	}
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("injected read failure")
}

func TestEmptyContentHasStableDigest(t *testing.T) {
	cas := testCAS(t)
	ctx := context.Background()

	staged, err := cas.Stage(ctx, strings.NewReader(""))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if staged.SizeBytes != 0 {
		t.Fatalf("expected size 0, got %d", staged.SizeBytes)
	}
	if staged.Digest != digest.FromBytes(nil) {
		t.Fatalf("unexpected empty digest: %s", staged.Digest)
	}
	res, err := cas.Promote(ctx, staged, 0)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !res.Created {
		t.Fatal("expected created=true for empty blob")
	}
}

func TestBlake2bAlgorithm(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir(), AlgorithmBLAKE2b256)
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	staged, err := cas.Stage(context.Background(), strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if staged.Digest.Algorithm() != AlgorithmBLAKE2b256 {
		t.Fatalf("unexpected algorithm: %s", staged.Digest.Algorithm())
	}
	if len(staged.Digest.Encoded()) != 64 {
		t.Fatalf("expected 256-bit hex digest, got %q", staged.Digest.Encoded())
	}
	cas.Discard(staged)
}

func TestParseAlgorithm(t *testing.T) {
	cases := map[string]digest.Algorithm{
		"":            digest.SHA256,
		"sha256":      digest.SHA256,
		"BLAKE2b-256": AlgorithmBLAKE2b256,
		"blake2b256":  AlgorithmBLAKE2b256,
	}
	for in, want := range cases {
		got, err := ParseAlgorithm(in)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseAlgorithm(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseAlgorithm("md5"); err == nil {
		t.Fatal("expected error for md5")
	}
}

func TestKeyFromDigest(t *testing.T) {
	dgst := digest.FromString("layout")
	key, err := KeyFromDigest(dgst)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	encoded := dgst.Encoded()
	want := "sha256/" + encoded[0:2] + "/" + encoded[2:4] + "/" + encoded
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}

	if _, err := KeyFromDigest(digest.Digest("sha256:short")); err == nil {
		t.Fatal("expected error for malformed digest")
	}
}
