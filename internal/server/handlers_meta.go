package server

import (
	"net/http"

	"filecask/internal/api"
)

const serverVersion = "0.2.0"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.InfoResponse{
		Name:      "filecask",
		Version:   serverVersion,
		Algorithm: string(s.blobs.Algorithm()),
	})
}
