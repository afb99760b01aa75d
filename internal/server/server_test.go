package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/storage"
)

type testEnv struct {
	store    *fakeStore
	index    *fakeIndex
	verifier *fakeVerifier
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		index:    &fakeIndex{},
		verifier: &fakeVerifier{userID: "user-1"},
	}
	srv := New(env.store, env.index, env.verifier, nil, log.New(io.Discard))
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthNoAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, w))
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	endpoints := []struct{ method, path string }{
		{http.MethodGet, "/api/memories"},
		{http.MethodPost, "/api/memories"},
		{http.MethodPatch, "/api/memories/m1"},
		{http.MethodDelete, "/api/memories/m1"},
		{http.MethodGet, "/api/memories/m1/records"},
		{http.MethodPost, "/api/memories/m1/records"},
		{http.MethodDelete, "/api/memories/m1/records/r1"},
		{http.MethodGet, "/api/chat/memories/m1/messages"},
		{http.MethodPost, "/api/chat/send"},
	}

	for _, ep := range endpoints {
		req := httptest.NewRequest(ep.method, ep.path, nil)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s without token", ep.method, ep.path)

		req = httptest.NewRequest(ep.method, ep.path, nil)
		req.Header.Set("Authorization", "Bearer bad")
		w = httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s with bad token", ep.method, ep.path)
	}

	// Rejected requests must never reach the store.
	assert.Zero(t, env.store.calls)
}

func TestAuthNotConfiguredIsServerError(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.err = auth.ErrNotConfigured

	w := env.do(t, http.MethodGet, "/api/memories", "")

	// Operator fault, not a caller fault: 500, not 401.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "Supabase not configured", body["detail"])
	assert.Zero(t, env.store.calls)
}

func TestUpstreamErrorBody(t *testing.T) {
	env := newTestEnv(t)
	store := erroringStore{fakeStore: env.store, err: errors.New("connection refused")}
	srv := New(store, env.index, env.verifier, nil, log.New(io.Discard))
	env.handler = srv.Handler()

	w := env.do(t, http.MethodGet, "/api/memories", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[map[string]string](t, w)
	assert.Contains(t, body["detail"], "Failed to list memories")
	assert.Contains(t, body["detail"], "connection refused")
	assert.Equal(t, "*errors.errorString", body["type"])
}

func TestListMemoriesEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/memories", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestMemoryRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	// Create.
	w := env.do(t, http.MethodPost, "/api/memories", `{"title": "T"}`)
	require.Equal(t, http.StatusOK, w.Code)
	created := decode[storage.Memory](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "T", created.Title)
	assert.Equal(t, "user-1", created.OwnerID)

	// List contains it.
	w = env.do(t, http.MethodGet, "/api/memories", "")
	listed := decode[[]storage.Memory](t, w)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	// Patch description only; title untouched.
	w = env.do(t, http.MethodPatch, "/api/memories/"+created.ID, `{"description": "D"}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[storage.Memory](t, w)
	assert.Equal(t, "T", updated.Title)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "D", *updated.Description)

	// Delete.
	w = env.do(t, http.MethodDelete, "/api/memories/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[map[string]any](t, w)
	assert.Equal(t, true, deleted["deleted"])
	assert.Equal(t, float64(1), deleted["count"])
}

func TestListMemoriesMostRecentFirst(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/memories", `{"title": "first"}`)
	env.do(t, http.MethodPost, "/api/memories", `{"title": "second"}`)

	w := env.do(t, http.MethodGet, "/api/memories", "")
	listed := decode[[]storage.Memory](t, w)
	require.Len(t, listed, 2)
	assert.Equal(t, "second", listed[0].Title)
	assert.Equal(t, "first", listed[1].Title)
}

func TestCreateMemoryValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/memories", `{"title": "  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/memories", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMemoryNoFieldsIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	before := env.store.calls
	w := env.do(t, http.MethodPatch, "/api/memories/whatever", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"updated": false}, decode[map[string]bool](t, w))
	assert.Equal(t, before, env.store.calls, "no-op update must not touch the store")
}

func TestUpdateMemoryNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPatch, "/api/memories/missing", `{"title": "new"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMemoryIdempotent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodDelete, "/api/memories/never-existed", "")
	assert.Equal(t, http.StatusOK, w.Code)
	deleted := decode[map[string]any](t, w)
	assert.Equal(t, float64(0), deleted["count"])
}

func TestOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/memories", `{"title": "mine"}`)
	created := decode[storage.Memory](t, w)

	// Same requests as a different caller behave like the resource does
	// not exist.
	env.verifier.userID = "user-2"

	w = env.do(t, http.MethodGet, "/api/memories", "")
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodPatch, "/api/memories/"+created.ID, `{"title": "stolen"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/memories/"+created.ID, "")
	deleted := decode[map[string]any](t, w)
	assert.Equal(t, float64(0), deleted["count"])
}

func TestRecordRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/memories/m1/records", `{"content": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	created := decode[storage.Record](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "hello", created.Content)
	assert.Equal(t, map[string]any{}, created.Metadata)

	w = env.do(t, http.MethodGet, "/api/memories/m1/records", "")
	listed := decode[[]storage.Record](t, w)
	require.Len(t, listed, 1)
	assert.Equal(t, "hello", listed[0].Content)

	// Created record was registered with the index.
	assert.Equal(t, []string{created.ID}, env.index.adds)

	w = env.do(t, http.MethodDelete, "/api/memories/m1/records/"+created.ID, "")
	deleted := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), deleted["count"])
}

func TestCreateRecordSurvivesIndexOutage(t *testing.T) {
	env := newTestEnv(t)
	env.index.fail = true

	w := env.do(t, http.MethodPost, "/api/memories/m1/records", `{"content": "still stored"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/memories/m1/records", "")
	listed := decode[[]storage.Record](t, w)
	require.Len(t, listed, 1)
	assert.Equal(t, "still stored", listed[0].Content)
}

func TestCreateRecordValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/memories/m1/records", `{"content": ""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestChatSend(t *testing.T) {
	env := newTestEnv(t)
	env.index.results = []index.Match{
		{RecordID: "r1", MemoryID: "m1", Content: "context", Score: 0.9},
	}

	w := env.do(t, http.MethodPost, "/api/chat/send", `{"memory_id": "m1", "message": "hi there"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Message         storage.ChatMessage `json:"message"`
		RelevantContext []index.Match       `json:"relevant_context"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "user", resp.Message.Role)
	assert.Equal(t, "hi there", resp.Message.Content)
	assert.Equal(t, "m1", resp.Message.MemoryID)
	require.Len(t, resp.RelevantContext, 1)
	assert.Equal(t, "r1", resp.RelevantContext[0].RecordID)

	// Message was persisted.
	w = env.do(t, http.MethodGet, "/api/chat/memories/m1/messages", "")
	messages := decode[[]storage.ChatMessage](t, w)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi there", messages[0].Content)
}

func TestChatSendSurvivesSearchOutage(t *testing.T) {
	env := newTestEnv(t)
	env.index.fail = true

	w := env.do(t, http.MethodPost, "/api/chat/send", `{"memory_id": "m1", "message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// relevant_context must be present and an empty array, not null.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Contains(t, raw, "relevant_context")
	assert.Equal(t, "[]", string(raw["relevant_context"]))

	w = env.do(t, http.MethodGet, "/api/chat/memories/m1/messages", "")
	messages := decode[[]storage.ChatMessage](t, w)
	require.Len(t, messages, 1)
}

func TestChatSendValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/chat/send", `{"message": "no memory"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/chat/send", `{"memory_id": "m1", "message": ""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
