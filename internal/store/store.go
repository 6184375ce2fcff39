// Package store holds the sqlx repositories for all persisted entities.
// Methods are defined on a shared queries type so the same accessors are
// usable both on the connection pool and inside a transaction.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/database"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type queries struct {
	ext sqlx.ExtContext
}

// Store provides access to all repositories over the connection pool.
type Store struct {
	queries
	db *database.DB
}

// New creates a Store over an open database connection.
func New(db *database.DB) *Store {
	return &Store{queries: queries{ext: db.DB}, db: db}
}

// Tx provides the same repository methods inside a transaction.
type Tx struct {
	queries
	tx *sqlx.Tx
}

// Transact runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) Transact(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{queries: queries{ext: tx}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
