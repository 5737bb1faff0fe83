// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client-facing validation messages. They are returned verbatim in
// 400 responses and shown to users as-is.
const (
	MsgDescriptionRequired = "Description is required"
	MsgDescriptionExists   = "Description already exists"
	MsgIDMismatch          = "Id in path does not match Id in body"
)

// Validation errors for TodoItem.
var (
	ErrDescriptionRequired = errors.New(MsgDescriptionRequired)
	ErrDescriptionExists   = errors.New(MsgDescriptionExists)
	ErrIDMismatch          = errors.New(MsgIDMismatch)
)

// TodoItem is a single entry on the todo list.
type TodoItem struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	IsCompleted bool      `json:"isCompleted"`
}

// Key returns the item's identifier.
func (t *TodoItem) Key() uuid.UUID {
	return t.ID
}

// SetKey assigns the item's identifier.
func (t *TodoItem) SetKey(id uuid.UUID) {
	t.ID = id
}

// Validate checks if the TodoItem has valid field values.
func (t *TodoItem) Validate() error {
	if t.Description == "" {
		return ErrDescriptionRequired
	}
	return nil
}

// SameDescription reports whether the item's description equals desc
// under case-insensitive comparison.
func (t *TodoItem) SameDescription(desc string) bool {
	return NormalizeDescription(t.Description) == NormalizeDescription(desc)
}

// NormalizeDescription returns the form used for uniqueness checks.
func NormalizeDescription(desc string) string {
	return strings.ToLower(desc)
}

// FindOpenDuplicate returns the first incomplete item in items whose
// description matches desc, skipping the item with id exclude.
func FindOpenDuplicate(items []TodoItem, desc string, exclude uuid.UUID) (*TodoItem, bool) {
	for i := range items {
		it := &items[i]
		if it.IsCompleted || it.ID == exclude {
			continue
		}
		if it.SameDescription(desc) {
			return it, true
		}
	}
	return nil, false
}

// Incomplete filters items down to those not yet completed.
// The result is never nil.
func Incomplete(items []TodoItem) []TodoItem {
	out := make([]TodoItem, 0, len(items))
	for _, it := range items {
		if !it.IsCompleted {
			out = append(out, it)
		}
	}
	return out
}

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TodoEventType names a committed change to the todo list.
type TodoEventType string

// Todo event types.
const (
	EventTodoCreated TodoEventType = "todo.created"
	EventTodoUpdated TodoEventType = "todo.updated"
	EventTodoDeleted TodoEventType = "todo.deleted"
)

// TodoEvent is published after a change has been committed.
type TodoEvent struct {
	Type      TodoEventType `json:"type"`
	Item      TodoItem      `json:"item"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewTodoEvent creates an event for item stamped with the current UTC time.
func NewTodoEvent(eventType TodoEventType, item TodoItem) TodoEvent {
	return TodoEvent{
		Type:      eventType,
		Item:      item,
		Timestamp: time.Now().UTC(),
	}
}
