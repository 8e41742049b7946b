package server

import (
	"fmt"
	"net/http"

	"filecask/internal/api"
	"filecask/internal/models"
)

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}

	var req api.UserCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	username, err := models.NormalizeUsername(req.Username)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
		return
	}
	limit := req.QuotaLimitBytes
	if limit <= 0 {
		limit = s.defaultQuotaBytes
	}
	if limit <= 0 {
		limit = models.DefaultQuotaLimitBytes
	}

	user, err := s.store.CreateUser(r.Context(), username, limit)
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}

	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}

	resp := make([]api.UserResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, toUserResponse(user))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSetQuota(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}
	username, err := requirePathValue(r, "username")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var req api.QuotaUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.QuotaLimitBytes <= 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequest(fmt.Errorf("quota_limit_bytes must be positive")))
		return
	}

	if err := s.store.SetQuotaLimit(r.Context(), username, req.QuotaLimitBytes); err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}
	user, err := s.store.GetUser(r.Context(), username)
	if err != nil {
		s.writeServiceError(w, r, serviceError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}

	stats, err := s.service.SystemStats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SystemStatsResponse{
		UserCount:     stats.UserCount,
		EntryCount:    stats.EntryCount,
		BlobCount:     stats.BlobCount,
		PhysicalBytes: stats.PhysicalBytes,
		LogicalBytes:  stats.LogicalBytes,
		SavedBytes:    stats.SavedBytes,
	})
}

func toUserResponse(user models.UserQuota) api.UserResponse {
	return api.UserResponse{
		Username:         user.Username,
		LogicalBytesUsed: user.LogicalBytesUsed,
		QuotaLimitBytes:  user.QuotaLimitBytes,
		CreatedAt:        user.CreatedAt,
	}
}
