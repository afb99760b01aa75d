package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the uniform error body {"detail": ...}.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeUpstreamError writes a 500 carrying the upstream failure's message
// and type name. The message is passed through unredacted; acceptable for
// an internal tool, flagged as a disclosure concern for hardening.
func writeUpstreamError(w http.ResponseWriter, msg string, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"detail": fmt.Sprintf("%s: %v", msg, err),
		"type":   fmt.Sprintf("%T", err),
	})
}
