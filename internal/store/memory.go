package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend implements Backend with in-memory storage.
type MemoryBackend[T any, P Entity[T]] struct {
	mu    sync.RWMutex
	items map[uuid.UUID]T
}

// NewMemoryBackend creates a new MemoryBackend instance.
func NewMemoryBackend[T any, P Entity[T]]() *MemoryBackend[T, P] {
	return &MemoryBackend[T, P]{
		items: make(map[uuid.UUID]T),
	}
}

// LoadAll returns all items from the store.
func (s *MemoryBackend[T, P]) LoadAll(ctx context.Context) ([]T, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list items: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]T, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}

	return items, nil
}

// Load retrieves an item by its ID.
func (s *MemoryBackend[T, P]) Load(ctx context.Context, id uuid.UUID) (*T, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get item: %w", ctx.Err())
	default:
	}

	if id == uuid.Nil {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, ErrNotFound
	}

	return &item, nil
}

// Commit validates every change against the current contents and then
// applies them all under one write lock.
func (s *MemoryBackend[T, P]) Commit(ctx context.Context, changes []Change[T]) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("commit: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// present tracks existence as the batch would leave it.
	present := make(map[uuid.UUID]bool, len(changes))
	exists := func(id uuid.UUID) bool {
		if p, ok := present[id]; ok {
			return p
		}
		_, ok := s.items[id]
		return ok
	}

	for _, c := range changes {
		entity := c.Entity
		id := P(&entity).Key()
		if id == uuid.Nil {
			return fmt.Errorf("commit %s: %w", c.Op, ErrInvalidID)
		}

		switch c.Op {
		case OpAdd:
			if exists(id) {
				return fmt.Errorf("commit add %s: %w", id, ErrAlreadyExists)
			}
			present[id] = true
		case OpUpdate:
			if !exists(id) {
				return fmt.Errorf("commit update %s: %w", id, ErrConcurrencyConflict)
			}
		case OpDelete:
			if !exists(id) {
				return fmt.Errorf("commit delete %s: %w", id, ErrConcurrencyConflict)
			}
			present[id] = false
		default:
			return fmt.Errorf("commit: unknown operation %q", c.Op)
		}
	}

	for _, c := range changes {
		entity := c.Entity
		id := P(&entity).Key()
		if c.Op == OpDelete {
			delete(s.items, id)
			continue
		}
		s.items[id] = entity
	}

	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryBackend[T, P]) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryBackend[T, P]) Close() error {
	return nil
}
