package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store is a Querier that can also run a function inside one transaction.
//
// Implementations:
// - SQLStore: Postgres through database/sql and the pgx stdlib driver
// - memstore.Store: in-process backend for development and tests
type Store interface {
	Querier

	// ExecTx runs fn in a transaction. The transaction commits if fn returns
	// nil and rolls back otherwise, including every write fn made.
	ExecTx(ctx context.Context, fn func(q Querier) error) error
}

// SQLStore implements Store on a *sql.DB.
type SQLStore struct {
	*Queries
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// ExecTx runs fn within a read-committed transaction. Row locks taken with
// SELECT ... FOR UPDATE inside fn are held until commit or rollback.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
