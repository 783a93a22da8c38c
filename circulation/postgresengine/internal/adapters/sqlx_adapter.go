package adapters

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Query executes a query using the sqlx.DB and returns wrapped rows.
func (s *SQLXAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	return stdQuery(ctx, s.db, query)
}

// Exec executes a statement using the sqlx.DB and returns the wrapped result.
func (s *SQLXAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	return stdExec(ctx, s.db, query)
}

// BeginTx opens a read-committed transaction.
func (s *SQLXAdapter) BeginTx(ctx context.Context) (DBTx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}

	return &sqlxTx{tx: tx}, nil
}

// sqlxTx wraps sqlx.Tx to implement DBTx.
type sqlxTx struct {
	tx *sqlx.Tx
}

func (s *sqlxTx) Query(ctx context.Context, query string) (DBRows, error) {
	return stdQuery(ctx, s.tx, query)
}

func (s *sqlxTx) Exec(ctx context.Context, query string) (DBResult, error) {
	return stdExec(ctx, s.tx, query)
}

func (s *sqlxTx) Commit(_ context.Context) error {
	return s.tx.Commit()
}

func (s *sqlxTx) Rollback(_ context.Context) error {
	return s.tx.Rollback()
}
