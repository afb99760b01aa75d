// Package storage shapes requests to the external relational store.
//
// This layer never owns storage: referential integrity, cascades, and
// row-level security live in the store's own schema (see schema.sql).
// What it does guarantee is ownership scoping — every query carries an
// owner_id equality filter, so cross-owner access behaves exactly like
// the resource not existing.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an id-scoped mutation matches zero rows.
var ErrNotFound = errors.New("not found")

// Memory is a named collection owned by a user.
type Memory struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Record is a piece of text content filed under a memory. Immutable
// except deletion.
type Record struct {
	ID        string         `json:"id"`
	MemoryID  string         `json:"memory_id"`
	OwnerID   string         `json:"user_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// ChatMessage is an append-only conversational entry scoped to a memory.
type ChatMessage struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	OwnerID   string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRoles are the allowed chat message roles. v1 only ever writes
// "user"; the others exist for future assistant generation.
var ValidRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// MemoryChanges is the allow-list of mutable memory fields. Nil fields
// are left untouched.
type MemoryChanges struct {
	Title       *string
	Description *string
}

// Empty reports whether the change set would touch nothing.
func (c MemoryChanges) Empty() bool {
	return c.Title == nil && c.Description == nil
}

// Store is the owner-scoped persistence contract. Lists are ordered by
// created_at descending. Deletes return the affected row count and never
// error on zero rows; deletion is idempotent.
type Store interface {
	ListMemories(ctx context.Context, ownerID string) ([]Memory, error)
	CreateMemory(ctx context.Context, ownerID, title string, description *string) (Memory, error)
	// UpdateMemory applies the non-nil fields of changes. Returns
	// ErrNotFound when no row matches id and owner.
	UpdateMemory(ctx context.Context, ownerID, memoryID string, changes MemoryChanges) (Memory, error)
	DeleteMemory(ctx context.Context, ownerID, memoryID string) (int64, error)

	ListRecords(ctx context.Context, ownerID, memoryID string) ([]Record, error)
	CreateRecord(ctx context.Context, ownerID, memoryID, content string, metadata map[string]any) (Record, error)
	DeleteRecord(ctx context.Context, ownerID, memoryID, recordID string) (int64, error)

	ListMessages(ctx context.Context, ownerID, memoryID string) ([]ChatMessage, error)
	CreateMessage(ctx context.Context, ownerID, memoryID, role, content string) (ChatMessage, error)
}
