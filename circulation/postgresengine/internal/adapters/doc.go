// Package adapters provide database adapter implementations for the PostgreSQL ledger store.
//
// pgxpool.Pool, sql.DB and sqlx.DB are wrapped behind the DBAdapter interface, so the store builds
// SQL once and runs it on any of them. Each adapter can open a transaction, which the store uses to
// hold the row lock on a license pool while an operation runs.
package adapters
