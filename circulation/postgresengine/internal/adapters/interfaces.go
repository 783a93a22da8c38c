package adapters

import "context"

// Querier runs plain SQL strings.
type Querier interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBAdapter defines the database operations needed by the ledger store.
// Query may be served by a replica when the context allows eventual consistency.
type DBAdapter interface {
	Querier
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx is an open transaction. All statements run on the primary.
type DBTx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
