package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Standard SELECT column lists.
const (
	memoryCols  = `id, user_id, title, description, created_at, updated_at`
	recordCols  = `id, memory_id, user_id, content, metadata, created_at`
	messageCols = `id, memory_id, user_id, role, content, created_at`
)

// Postgres implements Store over a pgx connection pool. The pool sits
// behind the acquire-use-release factory contract: each operation checks
// out a connection independently and no state is shared between calls.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to the store using the given DSN and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store DSN is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Pool exposes the underlying pool for components that share the same
// database (e.g. the pgvector index store).
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) ListMemories(ctx context.Context, ownerID string) ([]Memory, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+memoryCols+` FROM memories WHERE user_id = $1 ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Title, &m.Description, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateMemory(ctx context.Context, ownerID, title string, description *string) (Memory, error) {
	var m Memory
	err := p.pool.QueryRow(ctx,
		`INSERT INTO memories (user_id, title, description) VALUES ($1, $2, $3) RETURNING `+memoryCols,
		ownerID, title, description).
		Scan(&m.ID, &m.OwnerID, &m.Title, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Memory{}, fmt.Errorf("create memory: %w", err)
	}
	return m, nil
}

func (p *Postgres) UpdateMemory(ctx context.Context, ownerID, memoryID string, changes MemoryChanges) (Memory, error) {
	var set []string
	var args []any

	if changes.Title != nil {
		args = append(args, *changes.Title)
		set = append(set, fmt.Sprintf("title = $%d", len(args)))
	}
	if changes.Description != nil {
		args = append(args, *changes.Description)
		set = append(set, fmt.Sprintf("description = $%d", len(args)))
	}
	if len(set) == 0 {
		return Memory{}, fmt.Errorf("update memory: empty change set")
	}

	args = append(args, memoryID, ownerID)
	query := fmt.Sprintf(
		`UPDATE memories SET %s, updated_at = now() WHERE id = $%d AND user_id = $%d RETURNING `+memoryCols,
		strings.Join(set, ", "), len(args)-1, len(args))

	var m Memory
	err := p.pool.QueryRow(ctx, query, args...).
		Scan(&m.ID, &m.OwnerID, &m.Title, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Memory{}, ErrNotFound
	}
	if err != nil {
		return Memory{}, fmt.Errorf("update memory: %w", err)
	}
	return m, nil
}

func (p *Postgres) DeleteMemory(ctx context.Context, ownerID, memoryID string) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM memories WHERE id = $1 AND user_id = $2`,
		memoryID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete memory: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) ListRecords(ctx context.Context, ownerID, memoryID string) ([]Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+recordCols+` FROM memory_records WHERE memory_id = $1 AND user_id = $2 ORDER BY created_at DESC`,
		memoryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateRecord(ctx context.Context, ownerID, memoryID, content string, metadata map[string]any) (Record, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return Record{}, fmt.Errorf("marshal metadata: %w", err)
	}

	row := p.pool.QueryRow(ctx,
		`INSERT INTO memory_records (memory_id, user_id, content, metadata) VALUES ($1, $2, $3, $4) RETURNING `+recordCols,
		memoryID, ownerID, content, meta)
	r, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("create record: %w", err)
	}
	return r, nil
}

func (p *Postgres) DeleteRecord(ctx context.Context, ownerID, memoryID, recordID string) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM memory_records WHERE id = $1 AND memory_id = $2 AND user_id = $3`,
		recordID, memoryID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete record: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) ListMessages(ctx context.Context, ownerID, memoryID string) ([]ChatMessage, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+messageCols+` FROM chat_messages WHERE memory_id = $1 AND user_id = $2 ORDER BY created_at DESC`,
		memoryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.MemoryID, &m.OwnerID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateMessage(ctx context.Context, ownerID, memoryID, role, content string) (ChatMessage, error) {
	if !ValidRoles[role] {
		return ChatMessage{}, fmt.Errorf("invalid role %q", role)
	}

	var m ChatMessage
	err := p.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (memory_id, user_id, role, content) VALUES ($1, $2, $3, $4) RETURNING `+messageCols,
		memoryID, ownerID, role, content).
		Scan(&m.ID, &m.MemoryID, &m.OwnerID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// scanRecord scans a record row, decoding the jsonb metadata column.
func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var meta []byte
	if err := row.Scan(&r.ID, &r.MemoryID, &r.OwnerID, &r.Content, &meta, &r.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return Record{}, fmt.Errorf("decode record metadata: %w", err)
		}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return r, nil
}

// Compile-time interface check.
var _ Store = (*Postgres)(nil)
