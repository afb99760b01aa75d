// Package chromem provides a chromem-go backed vector store for the
// search index. chromem-go is a pure Go, embedded vector database, which
// makes it the default backend: no extra infrastructure required.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/multimem/internal/index"
)

// Store keeps one chromem collection per owner for namespace isolation.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-memory chromem store.
func New() (*Store, error) {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the owner's collection, creating it on first use.
func (s *Store) collection(ownerID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[ownerID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[ownerID]; ok {
		return col, nil
	}

	// Embeddings are supplied by the caller, so no embedding func and the
	// default cosine distance.
	col, err := s.db.CreateCollection("owner_"+ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[ownerID] = col
	return col, nil
}

func (s *Store) Add(ctx context.Context, e index.Entry) error {
	col, err := s.collection(e.OwnerID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        e.ID,
		Content:   e.Content,
		Embedding: e.Embedding,
		Metadata: map[string]string{
			"owner_id":  e.OwnerID,
			"memory_id": e.MemoryID,
			"record_id": e.RecordID,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]index.Hit, error) {
	col, err := s.collection(ownerID)
	if err != nil {
		return nil, err
	}

	where := map[string]string{"owner_id": ownerID}

	// chromem rejects nResults larger than the collection size, so shrink
	// the limit until the query fits. An empty collection yields no hits.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, embedding, n, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, index.Hit{
			Entry: index.Entry{
				ID:       r.ID,
				OwnerID:  r.Metadata["owner_id"],
				MemoryID: r.Metadata["memory_id"],
				RecordID: r.Metadata["record_id"],
				Content:  r.Content,
			},
			Score: r.Similarity,
		})
	}
	return hits, nil
}

// isInsufficientDocsError matches chromem's nResults-vs-collection-size
// validation errors.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

var _ index.VectorStore = (*Store)(nil)
