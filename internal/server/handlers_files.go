package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"filecask/internal/api"
	"filecask/internal/models"
)

const (
	uploadMaxBody         = 512 << 20 // 512 MiB
	uploadMultipartMemory = 8 << 20   // 8 MiB
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(uploadMaxBody))
	if err := r.ParseMultipartForm(uploadMultipartMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("file is required"), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	name := r.FormValue("display_name")
	if name == "" {
		name = header.Filename
	}

	entry, err := s.service.Upload(r.Context(), actor, UploadInput{
		DisplayName: name,
		FolderID:    r.FormValue("folder_id"),
		Visibility:  r.FormValue("visibility"),
		Content:     file,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toFileResponse(*entry))
}

func (s *Server) handleLinkExisting(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	actor := s.actor(r)
	if !s.allowMutation(w, r, actor) {
		return
	}

	var req api.LinkRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	entry, err := s.service.LinkExisting(r.Context(), actor, LinkInput{
		Digest:      req.Digest,
		DisplayName: req.DisplayName,
		FolderID:    req.FolderID,
		Visibility:  req.Visibility,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toFileResponse(*entry))
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}

	entries, err := s.service.List(r.Context(), s.actor(r), r.URL.Query().Get("folder"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.FileResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, toFileResponse(entry))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFileMeta(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	id, err := requirePathValue(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	entry, err := s.service.GetMeta(r.Context(), s.actor(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFileResponse(*entry))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPIToken(w, r) {
		return
	}
	id, err := requirePathValue(r, "id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	content, err := s.service.Download(r.Context(), s.actor(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	s.streamContent(w, r, content)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
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

	var req api.FileUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.DisplayName == nil && req.FolderID == nil && req.Visibility == nil {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("nothing to update"), ErrCodeMissingRequired))
		return
	}

	var entry *models.FileEntry
	ctx := r.Context()
	if req.DisplayName != nil {
		entry, err = s.service.Rename(ctx, actor, id, *req.DisplayName)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	if req.FolderID != nil {
		entry, err = s.service.Move(ctx, actor, id, *req.FolderID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	if req.Visibility != nil {
		entry, err = s.service.SetVisibility(ctx, actor, id, *req.Visibility)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, toFileResponse(*entry))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
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

	res, err := s.service.Delete(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.DeleteResponse{
		ID:            res.Entry.ID,
		Digest:        res.Entry.Digest,
		RemainingRefs: res.NewRefCount,
		BlobCollected: res.Collected,
		ReleasedBytes: res.Entry.LogicalSize,
	})
}

func (s *Server) handleCopyFile(w http.ResponseWriter, r *http.Request) {
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

	var req api.CopyRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	entry, err := s.service.CopyEntry(r.Context(), actor, id, CopyInput{
		DisplayName: req.DisplayName,
		FolderID:    req.FolderID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toFileResponse(*entry))
}

func (s *Server) streamContent(w http.ResponseWriter, r *http.Request, content *FileContent) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": content.DisplayName})
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Content-Digest", content.Digest)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, content.Reader); err != nil {
		// Headers are gone; all we can do is log the broken stream.
		s.log().Warn("stream content", "digest", content.Digest, "error", err)
	}
}

func toFileResponse(entry models.FileEntry) api.FileResponse {
	return api.FileResponse{
		ID:          entry.ID,
		Owner:       entry.Owner,
		DisplayName: entry.DisplayName,
		FolderID:    entry.FolderID,
		Digest:      entry.Digest,
		LogicalSize: entry.LogicalSize,
		Visibility:  entry.Visibility,
		CreatedAt:   entry.CreatedAt,
	}
}

func classifyMultipartError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return makeAPIError(http.StatusRequestEntityTooLarge, "request_too_large", ErrCodeRequestTooLarge,
			fmt.Errorf("request body too large"))
	}
	return badRequestCode(fmt.Errorf("invalid multipart form: %w", err), ErrCodeInvalidArgument)
}
