package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UnitOfWork implements Repository by buffering changes in memory until
// SaveChanges hands them to the backend in a single commit.
// A UnitOfWork is not safe for concurrent use; open one per request.
type UnitOfWork[T any, P Entity[T]] struct {
	backend Backend[T]
	pending []Change[T]
}

// NewRepository opens a unit of work on backend.
func NewRepository[T any, P Entity[T]](backend Backend[T]) *UnitOfWork[T, P] {
	return &UnitOfWork[T, P]{backend: backend}
}

// Get retrieves a committed record by its ID.
func (u *UnitOfWork[T, P]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidID
	}
	return u.backend.Load(ctx, id)
}

// List returns all committed records.
func (u *UnitOfWork[T, P]) List(ctx context.Context) ([]T, error) {
	return u.backend.LoadAll(ctx)
}

// Add stages entity for insertion. A missing ID is generated and written
// back to entity.
func (u *UnitOfWork[T, P]) Add(entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("add: %w", ErrNilEntity)
	}
	if P(entity).Key() == uuid.Nil {
		P(entity).SetKey(uuid.New())
	}
	u.pending = append(u.pending, Change[T]{Op: OpAdd, Entity: *entity})
	return entity, nil
}

// Update stages entity as the new version of its record.
func (u *UnitOfWork[T, P]) Update(entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("update: %w", ErrNilEntity)
	}
	if P(entity).Key() == uuid.Nil {
		return nil, fmt.Errorf("update: %w", ErrInvalidID)
	}
	u.pending = append(u.pending, Change[T]{Op: OpUpdate, Entity: *entity})
	return entity, nil
}

// Delete stages removal of entity's record.
func (u *UnitOfWork[T, P]) Delete(entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("delete: %w", ErrNilEntity)
	}
	if P(entity).Key() == uuid.Nil {
		return nil, fmt.Errorf("delete: %w", ErrInvalidID)
	}
	u.pending = append(u.pending, Change[T]{Op: OpDelete, Entity: *entity})
	return entity, nil
}

// SaveChanges commits staged changes. On failure the changes stay staged.
func (u *UnitOfWork[T, P]) SaveChanges(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save changes: %w", ctx.Err())
	default:
	}

	if len(u.pending) == 0 {
		return nil
	}

	if err := u.backend.Commit(ctx, u.pending); err != nil {
		return fmt.Errorf("save changes: %w", err)
	}

	u.pending = nil
	return nil
}

// Pending returns the number of staged, uncommitted changes.
func (u *UnitOfWork[T, P]) Pending() int {
	return len(u.pending)
}
