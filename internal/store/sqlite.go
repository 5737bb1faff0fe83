package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// todoSchema creates the todo table. The partial unique index enforces
// that open items have distinct descriptions after lower-casing.
const todoSchema = `
CREATE TABLE IF NOT EXISTS todo_items (
	id              TEXT PRIMARY KEY,
	description     TEXT NOT NULL,
	description_key TEXT NOT NULL,
	is_completed    BOOLEAN NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_todo_items_open_description
	ON todo_items (description_key)
	WHERE is_completed = 0;
`

// SQLiteBackend implements Backend for TodoItem on a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and
// ensures the schema exists. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers anyway; a single connection also keeps
	// ":memory:" databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, todoSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load retrieves a todo item by its ID.
func (b *SQLiteBackend) Load(ctx context.Context, id uuid.UUID) (*model.TodoItem, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidID
	}

	var (
		rawID string
		item  model.TodoItem
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT id, description, is_completed FROM todo_items WHERE id = ?",
		id.String(),
	).Scan(&rawID, &item.Description, &item.IsCompleted)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo item: %w", err)
	}

	item.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse todo item id %q: %w", rawID, err)
	}

	return &item, nil
}

// LoadAll returns every todo item.
func (b *SQLiteBackend) LoadAll(ctx context.Context) ([]model.TodoItem, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT id, description, is_completed FROM todo_items",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todo items: %w", err)
	}
	defer rows.Close()

	items := make([]model.TodoItem, 0)
	for rows.Next() {
		var (
			rawID string
			item  model.TodoItem
		)
		if err := rows.Scan(&rawID, &item.Description, &item.IsCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan todo item: %w", err)
		}
		item.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse todo item id %q: %w", rawID, err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todo items: %w", err)
	}

	return items, nil
}

// Commit applies changes inside one transaction.
func (b *SQLiteBackend) Commit(ctx context.Context, changes []Change[model.TodoItem]) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range changes {
		if err = applyChange(ctx, tx, c); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// applyChange executes a single staged change within tx.
func applyChange(ctx context.Context, tx *sql.Tx, c Change[model.TodoItem]) error {
	item := c.Entity
	if item.ID == uuid.Nil {
		return fmt.Errorf("commit %s: %w", c.Op, ErrInvalidID)
	}

	var (
		result sql.Result
		err    error
	)

	switch c.Op {
	case OpAdd:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO todo_items (id, description, description_key, is_completed) VALUES (?, ?, ?, ?)",
			item.ID.String(), item.Description, model.NormalizeDescription(item.Description), item.IsCompleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert todo item %s: %w", item.ID, translateSQLiteError(err))
		}
		return nil
	case OpUpdate:
		result, err = tx.ExecContext(ctx,
			"UPDATE todo_items SET description = ?, description_key = ?, is_completed = ? WHERE id = ?",
			item.Description, model.NormalizeDescription(item.Description), item.IsCompleted, item.ID.String(),
		)
	case OpDelete:
		result, err = tx.ExecContext(ctx, "DELETE FROM todo_items WHERE id = ?", item.ID.String())
	default:
		return fmt.Errorf("commit: unknown operation %q", c.Op)
	}

	if err != nil {
		return fmt.Errorf("failed to %s todo item %s: %w", c.Op, item.ID, translateSQLiteError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("commit %s %s: %w", c.Op, item.ID, ErrConcurrencyConflict)
	}

	return nil
}

// translateSQLiteError maps constraint violations to store errors.
func translateSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
	}
	return err
}

// Ping checks the database connection.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
