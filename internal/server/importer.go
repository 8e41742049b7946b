package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"

	"filecask/internal/api"
	"filecask/internal/blobstore"
	"filecask/internal/models"
	"filecask/internal/store"
)

const importMaxBody = 64 << 20 // 64 MiB

// catalogImporter replays an exported metadata catalog in phases: users,
// then folders, then entries. Each phase is idempotent, so a partially
// applied import can be re-run. Entries whose physical bytes are not
// present in the blob store are skipped, never fabricated.
type catalogImporter struct {
	store             *store.Store
	blobs             blobstore.BlobStore
	defaultQuotaBytes int64
}

func (i *catalogImporter) run(ctx context.Context, catalog exportCatalog, dryRun bool) (api.ImportResponse, error) {
	resp := api.ImportResponse{DryRun: dryRun, Messages: []string{}}

	if err := i.importUsers(ctx, catalog.Users, dryRun, &resp); err != nil {
		return resp, err
	}
	if err := i.importFolders(ctx, catalog.Folders, dryRun, &resp); err != nil {
		return resp, err
	}
	if err := i.importEntries(ctx, catalog.Entries, dryRun, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (i *catalogImporter) importUsers(ctx context.Context, users []exportUser, dryRun bool, resp *api.ImportResponse) error {
	for _, u := range users {
		username, err := models.NormalizeUsername(u.Username)
		if err != nil {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("user %q: %v", u.Username, err))
			continue
		}

		exists, err := i.store.UserExists(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			resp.Skipped++
			continue
		}

		limit := u.QuotaLimitBytes
		if limit <= 0 {
			limit = i.defaultQuotaBytes
		}
		if limit <= 0 {
			limit = models.DefaultQuotaLimitBytes
		}

		if !dryRun {
			if _, err := i.store.CreateUser(ctx, username, limit); err != nil {
				if errors.Is(err, store.ErrConflict) {
					resp.Skipped++
					continue
				}
				return err
			}
		}
		resp.UsersCreated++
	}
	return nil
}

func (i *catalogImporter) importFolders(ctx context.Context, folders []exportFolder, dryRun bool, resp *api.ImportResponse) error {
	for _, f := range folders {
		owner, err := models.NormalizeUsername(f.Owner)
		if err != nil {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("folder %s: %v", f.ID, err))
			continue
		}
		exists, err := i.store.UserExists(ctx, owner)
		if err != nil {
			return err
		}
		if !exists {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("folder %s: unknown owner %s", f.ID, owner))
			continue
		}

		if dryRun {
			if _, err := i.store.GetFolder(ctx, f.ID); err == nil {
				resp.Skipped++
			} else if errors.Is(err, store.ErrNotFound) {
				resp.FoldersCreated++
			} else {
				return err
			}
			continue
		}

		created, err := i.store.RestoreFolder(ctx, models.Folder{ID: f.ID, Owner: owner, Name: f.Name})
		if err != nil {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("folder %s: %v", f.ID, err))
			continue
		}
		if created {
			resp.FoldersCreated++
		} else {
			resp.Skipped++
		}
	}
	return nil
}

func (i *catalogImporter) importEntries(ctx context.Context, entries []exportEntry, dryRun bool, resp *api.ImportResponse) error {
	for _, e := range entries {
		dgst, err := parseDigestParam(e.Digest)
		if err != nil {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("entry %s: invalid digest %q", e.ID, e.Digest))
			continue
		}

		present, err := i.blobs.Exists(ctx, dgst)
		if err != nil {
			return err
		}
		if !present {
			resp.Skipped++
			resp.Messages = append(resp.Messages, fmt.Sprintf("entry %s: blob bytes for %s are absent", e.ID, dgst))
			continue
		}

		if dryRun {
			if _, err := i.store.GetEntry(ctx, e.ID); err == nil {
				resp.Skipped++
			} else if errors.Is(err, store.ErrNotFound) {
				resp.EntriesCreated++
			} else {
				return err
			}
			continue
		}

		key, err := blobstore.KeyFromDigest(dgst)
		if err != nil {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("entry %s: %v", e.ID, err))
			continue
		}

		created, err := i.store.RestoreEntryRow(ctx, store.RestoreEntry{
			ID:          e.ID,
			Owner:       e.Owner,
			DisplayName: e.DisplayName,
			FolderID:    e.FolderID,
			Digest:      dgst.String(),
			BlobKey:     key,
			LogicalSize: e.LogicalSize,
			Visibility:  e.Visibility,
			CreatedAt:   e.CreatedAt,
		})
		if err != nil {
			resp.Errors++
			resp.Messages = append(resp.Messages, fmt.Sprintf("entry %s: %v", e.ID, err))
			continue
		}
		if created {
			resp.EntriesCreated++
		} else {
			resp.Skipped++
		}
	}
	return nil
}

func (s *Server) handleAdminImport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, importMaxBody)
	var catalog exportCatalog
	if err := yaml.NewDecoder(r.Body).Decode(&catalog); err != nil {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("decode catalog: %v", err), ErrCodeInvalidJSON))
		return
	}

	dryRun := r.URL.Query().Get("dry_run") == "true"
	importer := &catalogImporter{
		store:             s.store,
		blobs:             s.blobs,
		defaultQuotaBytes: s.defaultQuotaBytes,
	}

	resp, err := importer.run(r.Context(), catalog, dryRun)
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}

	s.log().Info("catalog import",
		"dry_run", dryRun,
		"users_created", resp.UsersCreated,
		"folders_created", resp.FoldersCreated,
		"entries_created", resp.EntriesCreated,
		"skipped", resp.Skipped,
		"errors", resp.Errors)
	s.writeJSON(w, http.StatusOK, resp)
}
