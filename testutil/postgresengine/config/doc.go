// Package config provides the PostgreSQL DSN for integration tests of the ledger store.
package config
