package server

import (
	"net/http"

	"filecask/internal/api"
	"filecask/internal/models"
)

func (s *Server) handleAddShare(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}
	id, err := requirePathValue(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var req api.ShareRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	grant, err := s.service.Share(r.Context(), actor, id, req.Grantee)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toShareGrantResponse(*grant))
}

func (s *Server) handleRemoveShare(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}
	id, err := requirePathValue(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	grantee, err := requirePathValue(r, "grantee")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	if err := s.service.Unshare(r.Context(), actor, id, grantee); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entry_id": id, "grantee": grantee})
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	id, err := requirePathValue(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	grants, err := s.service.ListGrants(r.Context(), s.actor(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.ShareGrantResponse, 0, len(grants))
	for _, grant := range grants {
		resp = append(resp, toShareGrantResponse(grant))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSharedWithMe(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}

	shared, err := s.service.ListSharedWithMe(r.Context(), s.actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.SharedEntryResponse, 0, len(shared))
	for _, item := range shared {
		resp = append(resp, api.SharedEntryResponse{
			Entry:    toFileResponse(item.Entry),
			SharedBy: item.SharedBy,
			SharedAt: item.SharedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateShareLink(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}
	id, err := requirePathValue(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	link, err := s.service.CreateShareLink(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toShareLinkResponse(*link))
}

func (s *Server) handleRevokeShareLink(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}
	token, err := requirePathValue(r, "token")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	if err := s.service.RevokeShareLink(r.Context(), actor, token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "revoked": true})
}

// handleSharedDownload serves share-link downloads. The route is public
// and relies on token unguessability, so no API token or user identity
// is required.
func (s *Server) handleSharedDownload(w http.ResponseWriter, r *http.Request) {
	token, err := requirePathValue(r, "token")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	content, err := s.service.OpenSharedByToken(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	s.streamContent(w, r, content)
}

func toShareGrantResponse(grant models.ShareGrant) api.ShareGrantResponse {
	return api.ShareGrantResponse{
		EntryID:  grant.EntryID,
		Grantee:  grant.Grantee,
		SharedAt: grant.SharedAt,
	}
}

func toShareLinkResponse(link models.ShareLink) api.ShareLinkResponse {
	return api.ShareLinkResponse{
		Token:         link.Token,
		EntryID:       link.EntryID,
		URL:           "/s/" + link.Token,
		CreatedAt:     link.CreatedAt,
		DownloadCount: link.DownloadCount,
	}
}
