package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"filecask/internal/api"
	"filecask/internal/store"
)

func exportCatalogYAML(t *testing.T, srv *Server) string {
	t.Helper()
	w := doJSON(t, srv, http.MethodGet, "/v1/admin/export", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	return w.Body.String()
}

func importCatalogYAML(t *testing.T, srv *Server, catalog, query string) api.ImportResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/import"+query, strings.NewReader(catalog))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.ImportResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode import response: %v", err)
	}
	return resp
}

func newImportTarget(t *testing.T, source *Server) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatalf("open import store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	// Shares the source's blob tree, the way a restore onto the same
	// storage volume would.
	return New("127.0.0.1:0", st, source.blobs, testLogger(t), Options{DefaultQuotaBytes: 1000})
}

func TestCatalogImportRoundtrip(t *testing.T) {
	src := newTestServer(t)
	seedUser(t, src, "alice", 1000)
	seedUser(t, src, "bob", 1000)

	fw := doJSON(t, src, http.MethodPost, "/v1/folders", "alice", api.FolderRequest{Name: "reports"})
	if fw.Code != http.StatusCreated {
		t.Fatalf("create folder: expected 201, got %d (%s)", fw.Code, fw.Body.String())
	}
	var folder api.FolderResponse
	if err := json.Unmarshal(fw.Body.Bytes(), &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}

	uw := uploadFile(t, src, "alice", "q3.txt", "quarterly numbers", map[string]string{"folder_id": folder.ID})
	if uw.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d (%s)", uw.Code, uw.Body.String())
	}
	var aliceFile api.FileResponse
	if err := json.Unmarshal(uw.Body.Bytes(), &aliceFile); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	bobFile := mustUpload(t, src, "bob", "copy.txt", "quarterly numbers")

	catalog := exportCatalogYAML(t, src)

	dst := newImportTarget(t, src)
	resp := importCatalogYAML(t, dst, catalog, "")
	if resp.UsersCreated != 2 {
		t.Fatalf("expected 2 users created, got %d", resp.UsersCreated)
	}
	if resp.FoldersCreated != 1 {
		t.Fatalf("expected 1 folder created, got %d", resp.FoldersCreated)
	}
	if resp.EntriesCreated != 2 {
		t.Fatalf("expected 2 entries created, got %d", resp.EntriesCreated)
	}
	if resp.Errors != 0 {
		t.Fatalf("expected no errors, got %d (%v)", resp.Errors, resp.Messages)
	}

	// Identity survives: the original entry ID resolves on the target and
	// its content is readable from the shared blob tree.
	gw := doJSON(t, dst, http.MethodGet, "/v1/files/"+aliceFile.ID, "alice", nil)
	if gw.Code != http.StatusOK {
		t.Fatalf("get imported entry: expected 200, got %d (%s)", gw.Code, gw.Body.String())
	}
	var imported api.FileResponse
	if err := json.Unmarshal(gw.Body.Bytes(), &imported); err != nil {
		t.Fatalf("decode imported entry: %v", err)
	}
	if imported.FolderID != folder.ID {
		t.Fatalf("expected folder %s, got %s", folder.ID, imported.FolderID)
	}
	if imported.Digest != aliceFile.Digest || imported.Digest != bobFile.Digest {
		t.Fatalf("digest mismatch after import")
	}

	cw := doJSON(t, dst, http.MethodGet, "/v1/files/"+aliceFile.ID+"/content", "alice", nil)
	if cw.Code != http.StatusOK {
		t.Fatalf("download imported entry: expected 200, got %d", cw.Code)
	}
	if cw.Body.String() != "quarterly numbers" {
		t.Fatalf("unexpected content %q", cw.Body.String())
	}

	// Quota accounting was replayed, not copied blindly.
	qw := doJSON(t, dst, http.MethodGet, "/v1/usage", "alice", nil)
	if qw.Code != http.StatusOK {
		t.Fatalf("usage: expected 200, got %d", qw.Code)
	}
	var usage api.UsageResponse
	if err := json.Unmarshal(qw.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.LogicalBytesUsed != aliceFile.LogicalSize {
		t.Fatalf("expected %d bytes used, got %d", aliceFile.LogicalSize, usage.LogicalBytesUsed)
	}

	// Replaying the same catalog is a no-op.
	again := importCatalogYAML(t, dst, catalog, "")
	if again.UsersCreated != 0 || again.FoldersCreated != 0 || again.EntriesCreated != 0 {
		t.Fatalf("expected idempotent re-import, got %+v", again)
	}
	if again.Errors != 0 {
		t.Fatalf("expected no errors on re-import, got %v", again.Messages)
	}
}

func TestCatalogImportDryRun(t *testing.T) {
	src := newTestServer(t)
	seedUser(t, src, "alice", 1000)
	mustUpload(t, src, "alice", "note.txt", "hello import")

	catalog := exportCatalogYAML(t, src)

	dst := newImportTarget(t, src)
	resp := importCatalogYAML(t, dst, catalog, "?dry_run=true")
	if !resp.DryRun {
		t.Fatal("expected dry_run response")
	}
	if resp.UsersCreated != 1 || resp.EntriesCreated != 1 {
		t.Fatalf("expected counts without writes, got %+v", resp)
	}

	if exists, err := dst.store.UserExists(context.Background(), "alice"); err != nil || exists {
		t.Fatalf("dry run must not create users (exists=%v err=%v)", exists, err)
	}
}

func TestCatalogImportSkipsMissingBytes(t *testing.T) {
	src := newTestServer(t)
	seedUser(t, src, "alice", 1000)
	file := mustUpload(t, src, "alice", "gone.txt", "ephemeral")

	catalog := exportCatalogYAML(t, src)

	// Deleting the last reference collects the physical bytes, so the
	// exported entry can no longer be replayed.
	dw := doJSON(t, src, http.MethodDelete, "/v1/files/"+file.ID, "alice", nil)
	if dw.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d (%s)", dw.Code, dw.Body.String())
	}

	dst := newImportTarget(t, src)
	resp := importCatalogYAML(t, dst, catalog, "")
	if resp.EntriesCreated != 0 {
		t.Fatalf("expected no entries created, got %d", resp.EntriesCreated)
	}
	if resp.Skipped == 0 {
		t.Fatal("expected the entry to be skipped")
	}

	gw := doJSON(t, dst, http.MethodGet, "/v1/files/"+file.ID, "alice", nil)
	if gw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for skipped entry, got %d", gw.Code)
	}
}
