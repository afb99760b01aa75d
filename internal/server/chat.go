package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/storage"
)

type chatSendRequest struct {
	MemoryID string `json:"memory_id"`
	Message  string `json:"message"`
}

type chatSendResponse struct {
	Message storage.ChatMessage `json:"message"`
	// RelevantContext is informational for the caller (or a future
	// assistant); this layer does not act on it.
	RelevantContext []index.Match `json:"relevant_context"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memoryID := r.PathValue("id")

	messages, err := s.store.ListMessages(r.Context(), user.ID, memoryID)
	if err != nil {
		s.logger.Error("list messages", "err", err, "user", user.ID, "memory_id", memoryID)
		writeUpstreamError(w, "Failed to list messages", err)
		return
	}
	if messages == nil {
		messages = []storage.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	var payload chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if payload.MemoryID == "" {
		writeError(w, http.StatusUnprocessableEntity, "memory_id is required")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	// Best-effort relevance lookup before persisting; a search failure
	// degrades to an empty context list.
	relevant := s.index.Search(r.Context(), user.ID, payload.MemoryID, payload.Message, relevantContextLimit)
	if relevant == nil {
		relevant = []index.Match{}
	}

	// v1 only stores user messages; assistant replies are a future
	// extension that would consume relevant_context.
	message, err := s.store.CreateMessage(r.Context(), user.ID, payload.MemoryID, "user", payload.Message)
	if err != nil {
		s.logger.Error("send message", "err", err, "user", user.ID, "memory_id", payload.MemoryID)
		writeUpstreamError(w, "Failed to send message", err)
		return
	}

	writeJSON(w, http.StatusOK, chatSendResponse{
		Message:         message,
		RelevantContext: relevant,
	})
}
