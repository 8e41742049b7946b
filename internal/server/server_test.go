package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"

	"filecask/internal/api"
	"filecask/internal/blobstore"
	"filecask/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv(apiTokenEnvKey, "")
	t.Setenv(adminTokenEnvKey, "")

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "filecask.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cas, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"), digest.SHA256)
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	return New("127.0.0.1:0", st, cas, testLogger(t), Options{DefaultQuotaBytes: 1000})
}

func seedUser(t *testing.T, srv *Server, username string, quota int64) {
	t.Helper()
	if _, err := srv.store.CreateUser(context.Background(), username, quota); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
}

func doJSON(t *testing.T, srv *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

func uploadFile(t *testing.T, srv *Server, user, name, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			t.Fatalf("write form field %s: %v", key, err)
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

func mustUpload(t *testing.T, srv *Server, user, name, content string) api.FileResponse {
	t.Helper()
	w := uploadFile(t, srv, user, name, content, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload %s: expected 201, got %d (%s)", name, w.Code, w.Body.String())
	}
	var resp api.FileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return resp
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7343")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7343" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		if _, err := ListenAddr("http://0.0.0.0:7343"); err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7343")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7343" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestAPITokenGuard(t *testing.T) {
	t.Setenv(apiTokenEnvKey, "")
	srv := newTestServer(t)
	srv.apiToken = "sekrit"
	seedUser(t, srv, "alice", 1000)

	w := doJSON(t, srv, http.MethodGet, "/v1/usage", "alice", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.ErrorCode != ErrCodeUnauthorized {
		t.Fatalf("expected error_code %d, got %d", ErrCodeUnauthorized, errResp.ErrorCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req.Header.Set(userHeader, "alice")
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestUploadDownloadRoundtrip(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "alice", 1000)

	created := mustUpload(t, srv, "alice", "notes.txt", "hello filecask")
	if created.Owner != "alice" {
		t.Fatalf("expected owner alice, got %q", created.Owner)
	}
	if created.LogicalSize != int64(len("hello filecask")) {
		t.Fatalf("unexpected logical size %d", created.LogicalSize)
	}
	wantDigest := digest.FromString("hello filecask").String()
	if created.Digest != wantDigest {
		t.Fatalf("expected digest %s, got %s", wantDigest, created.Digest)
	}

	w := doJSON(t, srv, http.MethodGet, "/v1/files/"+created.ID+"/content", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello filecask" {
		t.Fatalf("unexpected download body %q", w.Body.String())
	}
	if got := w.Header().Get("X-Content-Digest"); got != wantDigest {
		t.Fatalf("expected digest header %s, got %s", wantDigest, got)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "notes.txt") {
		t.Fatalf("expected filename in disposition, got %q", w.Header().Get("Content-Disposition"))
	}

	w = doJSON(t, srv, http.MethodGet, "/v1/files/"+created.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("meta: expected 200, got %d", w.Code)
	}

	// A single copy saves nothing globally.
	w = doJSON(t, srv, http.MethodGet, "/v1/usage", "alice", nil)
	var usage api.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.LogicalBytesUsed != created.LogicalSize {
		t.Fatalf("expected used %d, got %d", created.LogicalSize, usage.LogicalBytesUsed)
	}
	if usage.SavedBytesGlobal != 0 {
		t.Fatalf("expected zero global savings, got %d", usage.SavedBytesGlobal)
	}
}

func TestUploadUnknownUser(t *testing.T) {
	srv := newTestServer(t)

	w := uploadFile(t, srv, "ghost", "a.txt", "data", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d (%s)", w.Code, w.Body.String())
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.ErrorCode != ErrCodeUserNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodeUserNotFound, errResp.ErrorCode)
	}
}

func TestUploadMissingIdentity(t *testing.T) {
	srv := newTestServer(t)

	w := uploadFile(t, srv, "", "a.txt", "data", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", w.Code)
	}
}

func TestQuotaExceededOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "bob", 10)

	w := uploadFile(t, srv, "bob", "big.bin", strings.Repeat("x", 11), nil)
	if w.Code != http.StatusInsufficientStorage {
		t.Fatalf("expected 507, got %d (%s)", w.Code, w.Body.String())
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.ErrorCode != ErrCodeQuotaExceeded {
		t.Fatalf("expected error_code %d, got %d", ErrCodeQuotaExceeded, errResp.ErrorCode)
	}

	w = doJSON(t, srv, http.MethodGet, "/v1/usage", "bob", nil)
	var usage api.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.LogicalBytesUsed != 0 {
		t.Fatalf("rejected upload must not charge quota, used=%d", usage.LogicalBytesUsed)
	}

	// Exactly at the limit is allowed.
	mustUpload(t, srv, "bob", "fits.bin", strings.Repeat("y", 10))
}

func TestDedupAcrossUsersAndDelete(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "alice", 1000)
	seedUser(t, srv, "bob", 1000)

	content := strings.Repeat("d", 64)
	first := mustUpload(t, srv, "alice", "a.bin", content)
	second := mustUpload(t, srv, "bob", "b.bin", content)
	if first.Digest != second.Digest {
		t.Fatalf("same bytes must share a digest: %s vs %s", first.Digest, second.Digest)
	}

	w := doJSON(t, srv, http.MethodGet, "/v1/admin/stats", "", nil)
	var stats api.SystemStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.BlobCount != 1 {
		t.Fatalf("expected 1 blob, got %d", stats.BlobCount)
	}
	if stats.LogicalBytes != 128 || stats.PhysicalBytes != 64 || stats.SavedBytes != 64 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// The usage endpoint carries the same global savings figure.
	w = doJSON(t, srv, http.MethodGet, "/v1/usage", "alice", nil)
	var usage api.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.SavedBytesGlobal != 64 {
		t.Fatalf("expected 64 bytes saved globally, got %d", usage.SavedBytesGlobal)
	}

	// First delete drops one reference but keeps the bytes.
	w = doJSON(t, srv, http.MethodDelete, "/v1/files/"+first.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var del api.DeleteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &del); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if del.BlobCollected || del.RemainingRefs != 1 {
		t.Fatalf("expected surviving blob with 1 ref, got %+v", del)
	}

	w = doJSON(t, srv, http.MethodGet, "/v1/files/"+second.ID+"/content", "bob", nil)
	if w.Code != http.StatusOK || w.Body.String() != content {
		t.Fatalf("survivor download broken: %d %q", w.Code, w.Body.String())
	}

	// Last delete collects the blob.
	w = doJSON(t, srv, http.MethodDelete, "/v1/files/"+second.ID, "bob", nil)
	var last api.DeleteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &last); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if !last.BlobCollected || last.RemainingRefs != 0 {
		t.Fatalf("expected blob collection, got %+v", last)
	}
	if _, err := srv.blobs.Open(context.Background(), digest.Digest(first.Digest)); err == nil {
		t.Fatal("expected physical bytes removed after last delete")
	}

	// With nothing stored the savings collapse back to zero.
	w = doJSON(t, srv, http.MethodGet, "/v1/usage", "alice", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.SavedBytesGlobal != 0 {
		t.Fatalf("expected zero savings after all deletes, got %d", usage.SavedBytesGlobal)
	}
}

func TestLinkExistingByDigest(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "alice", 1000)
	seedUser(t, srv, "bob", 1000)

	created := mustUpload(t, srv, "alice", "orig.txt", "shared bytes")

	w := doJSON(t, srv, http.MethodPost, "/v1/files/link", "bob", api.LinkRequest{
		Digest:      created.Digest,
		DisplayName: "copy.txt",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("link: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var linked api.FileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &linked); err != nil {
		t.Fatalf("decode link response: %v", err)
	}
	if linked.Digest != created.Digest || linked.Owner != "bob" {
		t.Fatalf("unexpected linked entry %+v", linked)
	}

	// Linking charges the full logical size.
	w = doJSON(t, srv, http.MethodGet, "/v1/usage", "bob", nil)
	var usage api.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.LogicalBytesUsed != int64(len("shared bytes")) {
		t.Fatalf("expected link to charge quota, used=%d", usage.LogicalBytesUsed)
	}

	w = doJSON(t, srv, http.MethodPost, "/v1/files/link", "bob", api.LinkRequest{
		Digest:      digest.FromString("never stored").String(),
		DisplayName: "nope.txt",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown digest, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/v1/files/link", "bob", api.LinkRequest{
		Digest:      "sha256:zznothex",
		DisplayName: "bad.txt",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed digest, got %d", w.Code)
	}
}

func TestRenameMoveVisibilityPatch(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "alice", 1000)
	created := mustUpload(t, srv, "alice", "old.txt", "abc")

	w := doJSON(t, srv, http.MethodPost, "/v1/folders", "alice", api.FolderRequest{Name: "docs"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create folder: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var folder api.FolderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}

	name := "new.txt"
	visibility := "public"
	w = doJSON(t, srv, http.MethodPatch, "/v1/files/"+created.ID, "alice", api.FileUpdateRequest{
		DisplayName: &name,
		FolderID:    &folder.ID,
		Visibility:  &visibility,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var updated api.FileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode patch response: %v", err)
	}
	if updated.DisplayName != "new.txt" || updated.FolderID != folder.ID || updated.Visibility != "public" {
		t.Fatalf("patch not applied: %+v", updated)
	}

	// Moving into a foreign folder is rejected.
	seedUser(t, srv, "bob", 1000)
	theirs := mustUpload(t, srv, "bob", "b.txt", "xyz")
	w = doJSON(t, srv, http.MethodPatch, "/v1/files/"+theirs.ID, "bob", api.FileUpdateRequest{FolderID: &folder.ID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 moving into foreign folder, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPatch, "/v1/files/"+created.ID, "alice", api.FileUpdateRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", w.Code)
	}
}

func TestMutationRateLimit(t *testing.T) {
	srv := newTestServer(t)
	srv.limiter = newUploadRateLimiter(2, time.Minute)
	seedUser(t, srv, "alice", 1000)

	mustUpload(t, srv, "alice", "one.txt", "1")
	mustUpload(t, srv, "alice", "two.txt", "2")

	w := uploadFile(t, srv, "alice", "three.txt", "3", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.ErrorCode != ErrCodeRateLimited {
		t.Fatalf("expected error_code %d, got %d", ErrCodeRateLimited, errResp.ErrorCode)
	}

	// Reads are not limited.
	w = doJSON(t, srv, http.MethodGet, "/v1/files", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected read to pass, got %d", w.Code)
	}
}

func TestAdminUserLifecycle(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/v1/admin/users", "", api.UserCreateRequest{Username: "Carol"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var user api.UserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Username != "carol" {
		t.Fatalf("expected normalized username carol, got %q", user.Username)
	}
	if user.QuotaLimitBytes != 1000 {
		t.Fatalf("expected configured default quota, got %d", user.QuotaLimitBytes)
	}

	w = doJSON(t, srv, http.MethodPost, "/v1/admin/users", "", api.UserCreateRequest{Username: "carol"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate user, got %d", w.Code)
	}

	mustUpload(t, srv, "carol", "f.txt", strings.Repeat("z", 100))

	// Shrinking below current usage is refused.
	w = doJSON(t, srv, http.MethodPut, "/v1/admin/users/carol/quota", "", api.QuotaUpdateRequest{QuotaLimitBytes: 50})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 shrinking below usage, got %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPut, "/v1/admin/users/carol/quota", "", api.QuotaUpdateRequest{QuotaLimitBytes: 5000})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 raising quota, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/v1/admin/users", "", nil)
	var users []api.UserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 1 || users[0].QuotaLimitBytes != 5000 {
		t.Fatalf("unexpected users listing: %+v", users)
	}
}
