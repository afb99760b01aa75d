// Package pgvec provides a Postgres + pgvector backed vector store for
// the search index. It shares the relational store's connection pool, so
// deployments already running against hosted Postgres get a durable index
// without extra infrastructure.
package pgvec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/becomeliminal/multimem/internal/index"
)

// Store persists entries in the record_index table (see schema.sql).
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pgvector store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Add(ctx context.Context, e index.Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO record_index (id, user_id, memory_id, record_id, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.OwnerID, e.MemoryID, e.RecordID, e.Content, pgvector.NewVector(e.Embedding))
	if err != nil {
		return fmt.Errorf("insert index entry: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]index.Hit, error) {
	vec := pgvector.NewVector(embedding)

	// Cosine distance; score mirrors chromem's similarity convention.
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, memory_id, record_id, content, 1 - (embedding <=> $2) AS score
		 FROM record_index
		 WHERE user_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		ownerID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var h index.Hit
		var score float64
		if err := rows.Scan(&h.Entry.ID, &h.Entry.OwnerID, &h.Entry.MemoryID,
			&h.Entry.RecordID, &h.Entry.Content, &score); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

var _ index.VectorStore = (*Store)(nil)
