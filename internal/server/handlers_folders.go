package server

import (
	"net/http"

	"filecask/internal/api"
	"filecask/internal/models"
)

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}

	var req api.FolderRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	folder, err := s.service.CreateFolder(r.Context(), actor, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFolderResponse(*folder))
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}

	folders, err := s.service.ListFolders(r.Context(), s.actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.FolderResponse, 0, len(folders))
	for _, folder := range folders {
		resp = append(resp, toFolderResponse(folder))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}

	report, err := s.service.Usage(r.Context(), s.actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	quota := report.Quota
	s.writeJSON(w, http.StatusOK, api.UsageResponse{
		Username:         quota.Username,
		LogicalBytesUsed: quota.LogicalBytesUsed,
		QuotaLimitBytes:  quota.QuotaLimitBytes,
		RemainingBytes:   quota.QuotaLimitBytes - quota.LogicalBytesUsed,
		SavedBytesGlobal: report.SavedBytesGlobal,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}

	stats, err := s.service.Stats(r.Context(), s.actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatsResponse{
		Username:      stats.Username,
		EntryCount:    stats.EntryCount,
		LogicalBytes:  stats.LogicalBytes,
		PhysicalBytes: stats.PhysicalBytes,
		SavedBytes:    stats.SavedBytes,
	})
}

func toFolderResponse(folder models.Folder) api.FolderResponse {
	return api.FolderResponse{
		ID:        folder.ID,
		Owner:     folder.Owner,
		Name:      folder.Name,
		CreatedAt: folder.CreatedAt,
	}
}
