// Package postgreswrapper creates ledger stores for integration tests on the driver selected by
// the ADAPTER_TYPE environment variable: "pgx.pool" (default), "sql.db" or "sqlx.db".
//
// Every store gets its own table prefix, is migrated on creation and has its tables dropped when
// the test ends.
package postgreswrapper
