package circulation

import (
	"context"

	"github.com/google/uuid"
)

// PoolTxFunc runs inside the transaction that holds the pool lock.
// With persist true the mutated state is written and committed before err is returned,
// which lets an operation record a repair and still fail. With persist false everything is rolled back.
type PoolTxFunc func(ctx context.Context, state *PoolState) (persist bool, err error)

// Ledger persists pools, licenses, loans and holds. memengine and postgresengine implement it.
type Ledger interface {
	// WithPoolLock loads the pool's state under an exclusive per-pool lock, runs fn and persists
	// the state when fn asks for it. The Standing of the state is computed for patronID.
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn PoolTxFunc) error

	// PatronActivity returns the patron's loans and holds across all pools.
	PatronActivity(ctx context.Context, patronID uuid.UUID) (PatronActivity, error)

	// LoanByID returns one loan or ErrLoanNotFound.
	LoanByID(ctx context.Context, loanID uuid.UUID) (Loan, error)

	// PoolByID returns one pool or ErrPoolNotFound.
	PoolByID(ctx context.Context, poolID uuid.UUID) (LicensePool, error)

	// SaveLicensePool inserts or updates a pool and its licenses.
	SaveLicensePool(ctx context.Context, pool LicensePool, licenses []License) error
}

// PatronActivity is a patron's loans and holds across all pools.
type PatronActivity struct {
	PatronID uuid.UUID
	Loans    []Loan
	Holds    []Hold
}

// PoolIDs returns the distinct pools the patron has loans or holds on, in first-seen order.
func (a PatronActivity) PoolIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	poolIDs := make([]uuid.UUID, 0, len(a.Loans)+len(a.Holds))

	add := func(poolID uuid.UUID) {
		if _, ok := seen[poolID]; ok {
			return
		}
		seen[poolID] = struct{}{}
		poolIDs = append(poolIDs, poolID)
	}

	for _, loan := range a.Loans {
		add(loan.PoolID)
	}

	for _, hold := range a.Holds {
		add(hold.PoolID)
	}

	return poolIDs
}
