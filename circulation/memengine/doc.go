// Package memengine implements circulation.Ledger in memory.
//
// Every pool has its own mutex, so operations on one pool are serialized while different pools
// proceed in parallel. State handed to a PoolTxFunc is a copy: nothing becomes visible to other
// callers unless the function asks for it to be persisted.
//
// The store is meant for tests, demos and single-process deployments.
package memengine
