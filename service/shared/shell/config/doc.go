// Package config provides database configuration helpers for PostgreSQL connections.
//
// It builds connections for the three drivers the ledger store supports (pgxpool.Pool, sql.DB and
// sqlx.DB, the latter two through lib/pq) from a DSN and pool limits.
package config
