// Package holdqueue orders the holds of a license pool, computes queue positions and reservation
// deadlines, and rebalances reservations whenever slots are freed or consumed.
//
// All functions operate on a circulation.PoolState that the caller holds the pool lock for.
// Nothing here talks to the distributor or the database.
//
// Reserved holds (position 0) keep their slot until their End passes. Queued holds (position > 0)
// never expire; their End is left unset in the ledger and only estimated for display by UpdateHold.
package holdqueue
