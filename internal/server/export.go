package server

import (
	"net/http"
	"time"

	"gopkg.in/yaml.v3"
)

// exportCatalog is the YAML document served by the admin export. It is a
// metadata snapshot for audits and offline inspection; blob bytes are not
// included and can be refetched by digest.
type exportCatalog struct {
	ExportedAt time.Time      `yaml:"exported_at"`
	Version    string         `yaml:"version"`
	Users      []exportUser   `yaml:"users"`
	Folders    []exportFolder `yaml:"folders"`
	Entries    []exportEntry  `yaml:"entries"`
	Blobs      []exportBlob   `yaml:"blobs"`
}

type exportUser struct {
	Username         string `yaml:"username"`
	LogicalBytesUsed int64  `yaml:"logical_bytes_used"`
	QuotaLimitBytes  int64  `yaml:"quota_limit_bytes"`
}

type exportFolder struct {
	ID    string `yaml:"id"`
	Owner string `yaml:"owner"`
	Name  string `yaml:"name"`
}

type exportEntry struct {
	ID          string    `yaml:"id"`
	Owner       string    `yaml:"owner"`
	DisplayName string    `yaml:"display_name"`
	FolderID    string    `yaml:"folder_id,omitempty"`
	Digest      string    `yaml:"digest"`
	LogicalSize int64     `yaml:"logical_size"`
	Visibility  string    `yaml:"visibility"`
	CreatedAt   time.Time `yaml:"created_at"`
}

type exportBlob struct {
	Digest    string `yaml:"digest"`
	SizeBytes int64  `yaml:"size_bytes"`
	RefCount  int64  `yaml:"ref_count"`
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}
	ctx := r.Context()

	catalog := exportCatalog{
		ExportedAt: time.Now().UTC(),
		Version:    serverVersion,
		Users:      []exportUser{},
		Folders:    []exportFolder{},
		Entries:    []exportEntry{},
		Blobs:      []exportBlob{},
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}
	for _, user := range users {
		catalog.Users = append(catalog.Users, exportUser{
			Username:         user.Username,
			LogicalBytesUsed: user.LogicalBytesUsed,
			QuotaLimitBytes:  user.QuotaLimitBytes,
		})
	}

	folders, err := s.store.ListAllFolders(ctx)
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}
	for _, folder := range folders {
		catalog.Folders = append(catalog.Folders, exportFolder{
			ID:    folder.ID,
			Owner: folder.Owner,
			Name:  folder.Name,
		})
	}

	entries, err := s.store.ListAllEntries(ctx)
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}
	seen := map[string]bool{}
	for _, entry := range entries {
		catalog.Entries = append(catalog.Entries, exportEntry{
			ID:          entry.ID,
			Owner:       entry.Owner,
			DisplayName: entry.DisplayName,
			FolderID:    entry.FolderID,
			Digest:      entry.Digest,
			LogicalSize: entry.LogicalSize,
			Visibility:  entry.Visibility,
			CreatedAt:   entry.CreatedAt,
		})
		if seen[entry.Digest] {
			continue
		}
		seen[entry.Digest] = true
		blob, err := s.store.GetBlob(ctx, entry.Digest)
		if err != nil {
			s.writeServiceError(w, r, serviceError(err))
			return
		}
		catalog.Blobs = append(catalog.Blobs, exportBlob{
			Digest:    blob.Digest,
			SizeBytes: blob.SizeBytes,
			RefCount:  blob.RefCount,
		})
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(catalog); err != nil {
		s.log().Error("encode export catalog", "error", err)
	}
}
