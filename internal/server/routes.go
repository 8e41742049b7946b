package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Files collection.
	mux.HandleFunc("POST /v1/files", s.handleUpload)
	mux.HandleFunc("GET /v1/files", s.handleListFiles)
	mux.HandleFunc("POST /v1/files/link", s.handleLinkExisting)

	// Single file.
	mux.HandleFunc("GET /v1/files/{id}", s.handleGetFileMeta)
	mux.HandleFunc("GET /v1/files/{id}/content", s.handleDownload)
	mux.HandleFunc("PATCH /v1/files/{id}", s.handleUpdateFile)
	mux.HandleFunc("DELETE /v1/files/{id}", s.handleDeleteFile)
	mux.HandleFunc("POST /v1/files/{id}/copy", s.handleCopyFile)

	// Sharing.
	mux.HandleFunc("GET /v1/files/{id}/shares", s.handleListShares)
	mux.HandleFunc("POST /v1/files/{id}/shares", s.handleAddShare)
	mux.HandleFunc("DELETE /v1/files/{id}/shares/{grantee}", s.handleRemoveShare)
	mux.HandleFunc("POST /v1/files/{id}/share-link", s.handleCreateShareLink)
	mux.HandleFunc("DELETE /v1/share-links/{token}", s.handleRevokeShareLink)
	mux.HandleFunc("GET /v1/shared-with-me", s.handleSharedWithMe)
	mux.HandleFunc("GET /s/{token}", s.handleSharedDownload)

	// Folders.
	mux.HandleFunc("POST /v1/folders", s.handleCreateFolder)
	mux.HandleFunc("GET /v1/folders", s.handleListFolders)

	// Accounting.
	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	// Admin.
	mux.HandleFunc("POST /v1/admin/users", s.handleAdminCreateUser)
	mux.HandleFunc("GET /v1/admin/users", s.handleAdminListUsers)
	mux.HandleFunc("PUT /v1/admin/users/{username}/quota", s.handleAdminSetQuota)
	mux.HandleFunc("GET /v1/admin/stats", s.handleAdminStats)
	mux.HandleFunc("GET /v1/admin/export", s.handleAdminExport)
	mux.HandleFunc("POST /v1/admin/import", s.handleAdminImport)

	return s.withRequestLogging(mux)
}
