package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
)

type statsResponse struct {
	TotalChunks int    `json:"total_chunks"`
	Dimension   int    `json:"dimension"`
	Files       int    `json:"files"`
	Model       string `json:"model,omitempty"`
}

type fileResponse struct {
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	Extension  string `json:"extension"`
	ChunkCount int    `json:"chunk_count"`
	Hash       string `json:"hash"`
}

// handleStats reports live index counts. Safe to call mid-run; it reflects
// the last committed state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalChunks: stats.TotalChunks,
		Dimension:   stats.Dimension,
		Files:       stats.Files,
		Model:       s.store.Model(),
	})
}

// handleFiles lists the tracked files with their live chunk counts.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListFiles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	files := make([]fileResponse, 0, len(entries))
	for _, e := range entries {
		files = append(files, fileResponse{
			FilePath:   e.FilePath,
			FileName:   e.FileName,
			Extension:  e.Extension,
			ChunkCount: e.ChunkCount,
			Hash:       e.Hash,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
