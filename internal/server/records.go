package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/storage"
)

type createRecordRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memoryID := r.PathValue("id")

	records, err := s.store.ListRecords(r.Context(), user.ID, memoryID)
	if err != nil {
		s.logger.Error("list records", "err", err, "user", user.ID, "memory_id", memoryID)
		writeUpstreamError(w, "Failed to list records", err)
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memoryID := r.PathValue("id")

	var payload createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		writeError(w, http.StatusUnprocessableEntity, "content is required")
		return
	}

	record, err := s.store.CreateRecord(r.Context(), user.ID, memoryID, payload.Content, payload.Metadata)
	if err != nil {
		s.logger.Error("create record", "err", err, "user", user.ID, "memory_id", memoryID)
		writeUpstreamError(w, "Failed to create record", err)
		return
	}

	// Register with the search index. Best-effort: the record's creation
	// is already decided by the store insert above.
	s.index.Add(r.Context(), user.ID, memoryID, record.ID, payload.Content)

	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request, user auth.Identity) {
	memoryID := r.PathValue("id")
	recordID := r.PathValue("rid")

	count, err := s.store.DeleteRecord(r.Context(), user.ID, memoryID, recordID)
	if err != nil {
		s.logger.Error("delete record", "err", err, "user", user.ID, "record_id", recordID)
		writeUpstreamError(w, "Failed to delete record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "count": count})
}
