// Package postgresengine implements circulation.Ledger on PostgreSQL.
//
// The store works with pgxpool.Pool, sql.DB (lib/pq) and sqlx.DB through internal adapters and
// builds every statement with goqu. Operations on one license pool are serialized with
// SELECT ... FOR UPDATE on the pool row: the pool, its licenses, loans and holds are read inside
// the same transaction, handed to the caller as a circulation.PoolState, and written back when
// the caller asks for it.
//
// Tables are named <prefix>license_pools, <prefix>licenses, <prefix>loans and <prefix>holds.
// Migrate creates them from embedded SQL files under a PostgreSQL advisory lock.
//
// Read-only queries (PatronActivity, LoanByID, PoolByID) use the replica pool of
// NewLedgerStoreFromPGXPoolWithReplica when the context is marked with
// circulation.WithEventualConsistency.
package postgresengine
