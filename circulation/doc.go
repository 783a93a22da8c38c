// Package circulation provides the ledger model and shared abstractions for circulating
// distributor-backed digital licenses to library patrons.
//
// The package defines the rows of the ledger (License, LicensePool, Loan, Hold), the locked
// PoolState aggregate that one patron operation mutates, collection settings, delivery mechanisms,
// the business error taxonomy, and the dependency-free observability interfaces shared by the
// storage engines and the command handlers.
//
// Key types:
//   - License: a distributor grant usable by up to TermsConcurrency simultaneous loans
//   - LicensePool: the aggregate availability ledger for one title in one collection
//   - Loan, Hold: a patron's checkout or place in the waiting queue
//   - PoolState: everything one operation reads and writes under the pool lock
//
// Common usage pattern:
//
//	err := store.WithPoolLock(ctx, poolID, patronID, func(ctx context.Context, state *circulation.PoolState) (bool, error) {
//		if _, ok := state.LoanFor(patronID); ok {
//			return false, circulation.ErrAlreadyCheckedOut
//		}
//		// mutate state ...
//		return true, nil
//	})
package circulation
