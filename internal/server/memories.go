package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/storage"
)

type createMemoryRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type updateMemoryRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memories, err := s.store.ListMemories(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list memories", "err", err, "user", user.ID)
		writeUpstreamError(w, "Failed to list memories", err)
		return
	}
	if memories == nil {
		memories = []storage.Memory{}
	}
	writeJSON(w, http.StatusOK, memories)
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	var payload createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}

	memory, err := s.store.CreateMemory(r.Context(), user.ID, payload.Title, payload.Description)
	if err != nil {
		s.logger.Error("create memory", "err", err, "user", user.ID)
		writeUpstreamError(w, "Failed to create memory", err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memoryID := r.PathValue("id")

	var payload updateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	changes := storage.MemoryChanges{
		Title:       payload.Title,
		Description: payload.Description,
	}
	// No effective changes is a distinguishable no-op, not an error, and
	// the store is never touched.
	if changes.Empty() {
		writeJSON(w, http.StatusOK, map[string]bool{"updated": false})
		return
	}
	if changes.Title != nil && strings.TrimSpace(*changes.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "title must be non-empty")
		return
	}

	memory, err := s.store.UpdateMemory(r.Context(), user.ID, memoryID, changes)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.logger.Error("update memory", "err", err, "user", user.ID, "memory_id", memoryID)
		writeUpstreamError(w, "Failed to update memory", err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memoryID := r.PathValue("id")

	count, err := s.store.DeleteMemory(r.Context(), user.ID, memoryID)
	if err != nil {
		s.logger.Error("delete memory", "err", err, "user", user.ID, "memory_id", memoryID)
		writeUpstreamError(w, "Failed to delete memory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "count": count})
}
