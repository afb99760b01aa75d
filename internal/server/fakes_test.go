package server

import (
	"context"
	"fmt"
	"time"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/storage"
)

// fakeVerifier resolves every well-formed bearer token to a fixed user.
// With err set it fails every verification with that error.
type fakeVerifier struct {
	userID string
	err    error
}

func (v *fakeVerifier) Verify(ctx context.Context, authorization string) (auth.Identity, error) {
	if v.err != nil {
		return auth.Identity{}, v.err
	}
	if authorization == "" {
		return auth.Identity{}, auth.ErrMissingToken
	}
	if authorization == "Bearer bad" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return auth.Identity{ID: v.userID}, nil
}

// fakeIndex records Add calls and serves canned Search results. With
// fail set it simulates a total index outage.
type fakeIndex struct {
	fail    bool
	adds    []string // record IDs passed to Add
	results []index.Match
}

func (f *fakeIndex) Add(ctx context.Context, ownerID, memoryID, recordID, content string) {
	if f.fail {
		return // best-effort no-op, like the real client
	}
	f.adds = append(f.adds, recordID)
}

func (f *fakeIndex) Search(ctx context.Context, ownerID, memoryID, query string, limit int) []index.Match {
	if f.fail {
		return nil
	}
	if len(f.results) > limit {
		return f.results[:limit]
	}
	return f.results
}

// fakeStore is an in-memory Store with the same scoping semantics as the
// Postgres implementation: every operation filters by owner, lists are
// most-recent-first, deletes are idempotent counts.
type fakeStore struct {
	memories []storage.Memory
	records  []storage.Record
	messages []storage.ChatMessage

	calls int // total store operations, for zero-store-call assertions
	seq   int
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) nextID() string {
	s.seq++
	return fmt.Sprintf("id-%d", s.seq)
}

// now spaces timestamps so created_at ordering is deterministic.
func (s *fakeStore) now() time.Time {
	return time.Unix(0, 0).Add(time.Duration(s.seq) * time.Second)
}

func (s *fakeStore) ListMemories(ctx context.Context, ownerID string) ([]storage.Memory, error) {
	s.calls++
	var out []storage.Memory
	for i := len(s.memories) - 1; i >= 0; i-- {
		if s.memories[i].OwnerID == ownerID {
			out = append(out, s.memories[i])
		}
	}
	return out, nil
}

func (s *fakeStore) CreateMemory(ctx context.Context, ownerID, title string, description *string) (storage.Memory, error) {
	s.calls++
	m := storage.Memory{
		ID:          s.nextID(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	s.memories = append(s.memories, m)
	return m, nil
}

func (s *fakeStore) UpdateMemory(ctx context.Context, ownerID, memoryID string, changes storage.MemoryChanges) (storage.Memory, error) {
	s.calls++
	for i := range s.memories {
		if s.memories[i].ID == memoryID && s.memories[i].OwnerID == ownerID {
			if changes.Title != nil {
				s.memories[i].Title = *changes.Title
			}
			if changes.Description != nil {
				s.memories[i].Description = changes.Description
			}
			return s.memories[i], nil
		}
	}
	return storage.Memory{}, storage.ErrNotFound
}

func (s *fakeStore) DeleteMemory(ctx context.Context, ownerID, memoryID string) (int64, error) {
	s.calls++
	for i := range s.memories {
		if s.memories[i].ID == memoryID && s.memories[i].OwnerID == ownerID {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) ListRecords(ctx context.Context, ownerID, memoryID string) ([]storage.Record, error) {
	s.calls++
	var out []storage.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.OwnerID == ownerID && r.MemoryID == memoryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateRecord(ctx context.Context, ownerID, memoryID, content string, metadata map[string]any) (storage.Record, error) {
	s.calls++
	if metadata == nil {
		metadata = map[string]any{}
	}
	r := storage.Record{
		ID:        s.nextID(),
		MemoryID:  memoryID,
		OwnerID:   ownerID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}
	s.records = append(s.records, r)
	return r, nil
}

func (s *fakeStore) DeleteRecord(ctx context.Context, ownerID, memoryID, recordID string) (int64, error) {
	s.calls++
	for i := range s.records {
		r := s.records[i]
		if r.ID == recordID && r.MemoryID == memoryID && r.OwnerID == ownerID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) ListMessages(ctx context.Context, ownerID, memoryID string) ([]storage.ChatMessage, error) {
	s.calls++
	var out []storage.ChatMessage
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.OwnerID == ownerID && m.MemoryID == memoryID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, ownerID, memoryID, role, content string) (storage.ChatMessage, error) {
	s.calls++
	if !storage.ValidRoles[role] {
		return storage.ChatMessage{}, fmt.Errorf("invalid role %q", role)
	}
	m := storage.ChatMessage{
		ID:        s.nextID(),
		MemoryID:  memoryID,
		OwnerID:   ownerID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, m)
	return m, nil
}

var _ storage.Store = (*fakeStore)(nil)

// erroringStore fails list operations, simulating a store outage.
type erroringStore struct {
	*fakeStore
	err error
}

func (s erroringStore) ListMemories(ctx context.Context, ownerID string) ([]storage.Memory, error) {
	return nil, s.err
}
