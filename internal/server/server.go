// Package server exposes the HTTP surface: owner-scoped CRUD for
// memories, records, and chat messages under /api, plus a liveness
// endpoint. Handlers are thin orchestrations: resolve identity, validate
// the payload, issue one store operation, and (for records and chat)
// make a best-effort search index call.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/storage"
)

// TokenVerifier resolves an Authorization header value to a caller
// identity. Implemented by auth.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, authorization string) (auth.Identity, error)
}

// SearchIndex is the best-effort semantic index consumed by the record
// and chat handlers. Implemented by index.Client.
type SearchIndex interface {
	Add(ctx context.Context, ownerID, memoryID, recordID, content string)
	Search(ctx context.Context, ownerID, memoryID, query string, limit int) []index.Match
}

// relevantContextLimit is the number of records bundled with a chat send.
const relevantContextLimit = 3

// Server holds handler dependencies.
type Server struct {
	store          storage.Store
	index          SearchIndex
	verifier       TokenVerifier
	logger         *log.Logger
	allowedOrigins []string
}

// New creates a Server.
func New(store storage.Store, idx SearchIndex, verifier TokenVerifier, allowedOrigins []string, logger *log.Logger) *Server {
	return &Server{
		store:          store,
		index:          idx,
		verifier:       verifier,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

// Handler builds the route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/memories", s.authed(s.handleListMemories))
	mux.HandleFunc("POST /api/memories", s.authed(s.handleCreateMemory))
	mux.HandleFunc("PATCH /api/memories/{id}", s.authed(s.handleUpdateMemory))
	mux.HandleFunc("DELETE /api/memories/{id}", s.authed(s.handleDeleteMemory))

	mux.HandleFunc("GET /api/memories/{id}/records", s.authed(s.handleListRecords))
	mux.HandleFunc("POST /api/memories/{id}/records", s.authed(s.handleCreateRecord))
	mux.HandleFunc("DELETE /api/memories/{id}/records/{rid}", s.authed(s.handleDeleteRecord))

	mux.HandleFunc("GET /api/chat/memories/{id}/messages", s.authed(s.handleListMessages))
	mux.HandleFunc("POST /api/chat/send", s.authed(s.handleChatSend))

	return s.requestID(s.logRequests(s.cors(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authed resolves the caller identity before the handler runs. Requests
// without a valid bearer token never reach the store.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				writeError(w, http.StatusUnauthorized, "Missing bearer token")
			case errors.Is(err, auth.ErrNotConfigured):
				writeError(w, http.StatusInternalServerError, "Supabase not configured")
			default:
				writeError(w, http.StatusUnauthorized, "Invalid token")
			}
			return
		}
		next(w, r, user)
	}
}
