// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Store errors.
var (
	ErrNotFound            = errors.New("item not found")
	ErrAlreadyExists       = errors.New("item already exists")
	ErrInvalidID           = errors.New("invalid item ID")
	ErrNilEntity           = errors.New("entity cannot be nil")
	ErrConcurrencyConflict = errors.New("concurrency conflict: record changed or deleted since it was read")
)

// Entity is the constraint for types a Repository can manage: a pointer
// to T carrying a UUID key.
type Entity[T any] interface {
	*T
	Key() uuid.UUID
	SetKey(id uuid.UUID)
}

// Op is the kind of a staged change.
type Op string

// Staged change kinds.
const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one staged mutation awaiting commit.
type Change[T any] struct {
	Op     Op
	Entity T
}

// Backend is a durable keyed record store for entities of type T.
type Backend[T any] interface {
	// Load retrieves a record by its ID.
	Load(ctx context.Context, id uuid.UUID) (*T, error)

	// LoadAll returns every stored record.
	LoadAll(ctx context.Context) ([]T, error)

	// Commit applies changes atomically. An update or delete whose target
	// is missing fails with ErrConcurrencyConflict; an add whose key is
	// taken fails with ErrAlreadyExists. Nothing is applied on failure.
	Commit(ctx context.Context, changes []Change[T]) error

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Repository is a unit of work over a Backend. Add, Update and Delete
// only stage changes; SaveChanges commits them. Get and List read
// committed state and do not observe staged changes.
type Repository[T any] interface {
	// Get retrieves a record by its ID.
	Get(ctx context.Context, id uuid.UUID) (*T, error)

	// List returns a snapshot of all records.
	List(ctx context.Context) ([]T, error)

	// Add stages a new record, generating its ID if unset.
	Add(entity *T) (*T, error)

	// Update stages entity as the authoritative version of its record.
	Update(entity *T) (*T, error)

	// Delete stages removal of the record.
	Delete(entity *T) (*T, error)

	// SaveChanges commits all staged changes.
	SaveChanges(ctx context.Context) error
}
