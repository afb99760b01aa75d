// Package index wraps the semantic search engine used to retrieve
// records relevant to a chat message.
//
// Entries are scoped by owner at the engine level and by a memory-scope
// tag in per-entry metadata; searches post-filter on that tag because the
// engine itself scopes only by owner.
//
// Both operations are best-effort: the index never breaks the primary
// request. Failures degrade to a no-op (Add) or an empty result (Search)
// and are logged, never propagated.
package index

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local), openai (API-based).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Entry is a record's text registered with the vector store.
type Entry struct {
	ID        string
	OwnerID   string
	MemoryID  string
	RecordID  string
	Content   string
	Embedding []float32
}

// Hit is a store result with its similarity score.
type Hit struct {
	Entry Entry
	Score float32
}

// VectorStore is the vector storage backend.
// Implementations: chromem (embedded), pgvec (Postgres + pgvector).
// Query scopes by owner only; callers filter finer scopes themselves.
type VectorStore interface {
	Add(ctx context.Context, e Entry) error
	Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]Hit, error)
}

// Match is a search result returned to callers, shaped for the HTTP
// response's relevant_context field.
type Match struct {
	RecordID string  `json:"record_id"`
	MemoryID string  `json:"memory_id"`
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
}

// Client orchestrates embedding and vector store access.
type Client struct {
	store    VectorStore
	embedder Embedder
	logger   *log.Logger
}

// NewClient creates an index client.
func NewClient(store VectorStore, embedder Embedder, logger *log.Logger) *Client {
	return &Client{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// Add registers record text under the (owner, memory) scope. Best-effort:
// a failure leaves the index untouched and the caller unaffected.
func (c *Client) Add(ctx context.Context, ownerID, memoryID, recordID, content string) {
	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		c.logger.Warn("index add skipped", "record_id", recordID, "err", err)
		return
	}

	e := Entry{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		MemoryID:  memoryID,
		RecordID:  recordID,
		Content:   content,
		Embedding: embedding,
	}
	if err := c.store.Add(ctx, e); err != nil {
		c.logger.Warn("index add failed", "record_id", recordID, "err", err)
		return
	}

	c.logger.Debug("indexed record", "record_id", recordID, "memory_id", memoryID)
}

// Search returns up to limit matches within the given memory scope.
// Best-effort: any failure yields an empty result.
func (c *Client) Search(ctx context.Context, ownerID, memoryID, query string, limit int) []Match {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.logger.Warn("index search skipped", "memory_id", memoryID, "err", err)
		return nil
	}

	hits, err := c.store.Query(ctx, ownerID, embedding, limit)
	if err != nil {
		c.logger.Warn("index search failed", "memory_id", memoryID, "err", err)
		return nil
	}

	// The store scopes by owner only; narrow to the requested memory here.
	var matches []Match
	for _, h := range hits {
		if h.Entry.MemoryID != memoryID {
			continue
		}
		matches = append(matches, Match{
			RecordID: h.Entry.RecordID,
			MemoryID: h.Entry.MemoryID,
			Content:  h.Entry.Content,
			Score:    h.Score,
		})
		if len(matches) == limit {
			break
		}
	}

	c.logger.Debug("index search", "memory_id", memoryID, "hits", len(hits), "matches", len(matches))
	return matches
}
