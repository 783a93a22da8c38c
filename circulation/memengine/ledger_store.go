package memengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	logMsgStatePersisted = "pool state persisted"
	logAttrPoolID        = "pool_id"
	logAttrLoans         = "loans"
	logAttrHolds         = "holds"

	metricPoolLockDuration = "ledger_pool_lock_duration_seconds"
	labelPersisted         = "persisted"
)

// LedgerStore keeps the ledger in maps guarded by one RWMutex plus one mutex per pool.
type LedgerStore struct {
	mu        sync.RWMutex
	pools     map[uuid.UUID]circulation.LicensePool
	licenses  map[uuid.UUID][]circulation.License
	loans     map[uuid.UUID]circulation.Loan
	holds     map[uuid.UUID]circulation.Hold
	poolLocks map[uuid.UUID]*sync.Mutex
	clock     circulation.Clock

	logger           circulation.Logger
	metricsCollector circulation.MetricsCollector
}

var _ circulation.Ledger = (*LedgerStore)(nil)

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore(options ...Option) (*LedgerStore, error) {
	store := &LedgerStore{
		pools:     make(map[uuid.UUID]circulation.LicensePool),
		licenses:  make(map[uuid.UUID][]circulation.License),
		loans:     make(map[uuid.UUID]circulation.Loan),
		holds:     make(map[uuid.UUID]circulation.Hold),
		poolLocks: make(map[uuid.UUID]*sync.Mutex),
		clock:     circulation.NewSystemClock(),
	}

	for _, option := range options {
		if err := option(store); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// WithPoolLock implements circulation.Ledger.
func (s *LedgerStore) WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.poolLock(poolID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	state, err := s.load(poolID, patronID, s.clock.Now())
	if err != nil {
		return err
	}

	persist, fnErr := fn(ctx, state)
	if persist {
		if err := s.apply(state); err != nil {
			return err
		}
		s.logPersisted(state)
	}

	s.recordLockDuration(time.Since(start), persist)

	return fnErr
}

// PatronActivity implements circulation.Ledger.
func (s *LedgerStore) PatronActivity(ctx context.Context, patronID uuid.UUID) (circulation.PatronActivity, error) {
	if err := ctx.Err(); err != nil {
		return circulation.PatronActivity{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	activity := circulation.PatronActivity{PatronID: patronID}
	for _, loan := range s.loans {
		if loan.PatronID == patronID {
			activity.Loans = append(activity.Loans, loan)
		}
	}

	for _, hold := range s.holds {
		if hold.PatronID == patronID {
			activity.Holds = append(activity.Holds, hold)
		}
	}

	sortLoans(activity.Loans)
	sortHolds(activity.Holds)

	return activity, nil
}

// LoanByID implements circulation.Ledger.
func (s *LedgerStore) LoanByID(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	if err := ctx.Err(); err != nil {
		return circulation.Loan{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, found := s.loans[loanID]
	if !found {
		return circulation.Loan{}, circulation.ErrLoanNotFound
	}

	return loan, nil
}

// PoolByID implements circulation.Ledger.
func (s *LedgerStore) PoolByID(ctx context.Context, poolID uuid.UUID) (circulation.LicensePool, error) {
	if err := ctx.Err(); err != nil {
		return circulation.LicensePool{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, found := s.pools[poolID]
	if !found {
		return circulation.LicensePool{}, circulation.ErrPoolNotFound
	}

	return pool, nil
}

// SaveLicensePool implements circulation.Ledger. Licenses of the pool not in licenses are kept.
func (s *LedgerStore) SaveLicensePool(ctx context.Context, pool circulation.LicensePool, licenses []circulation.License) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.poolLock(pool.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool.ID] = pool

	merged := append([]circulation.License(nil), s.licenses[pool.ID]...)
	for _, license := range licenses {
		license.PoolID = pool.ID

		replaced := false
		for i := range merged {
			if merged[i].ID == license.ID {
				merged[i] = license
				replaced = true
				break
			}
		}

		if !replaced {
			merged = append(merged, license)
		}
	}
	s.licenses[pool.ID] = merged

	return nil
}

func (s *LedgerStore) poolLock(poolID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, found := s.poolLocks[poolID]
	if !found {
		lock = &sync.Mutex{}
		s.poolLocks[poolID] = lock
	}

	return lock
}

func (s *LedgerStore) load(poolID, patronID uuid.UUID, now time.Time) (*circulation.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, found := s.pools[poolID]
	if !found {
		return nil, circulation.ErrPoolNotFound
	}

	var loans []circulation.Loan
	for _, loan := range s.loans {
		if loan.PoolID == poolID {
			loans = append(loans, loan)
		}
	}

	var holds []circulation.Hold
	for _, hold := range s.holds {
		if hold.PoolID == poolID {
			holds = append(holds, hold)
		}
	}

	sortLoans(loans)
	sortHolds(holds)

	return circulation.NewPoolState(pool, s.licenses[poolID], loans, holds, s.standing(pool.CollectionID, patronID, now)), nil
}

// standing counts the patron's active loans on licensed pools and all holds within the collection.
func (s *LedgerStore) standing(collectionID, patronID uuid.UUID, now time.Time) circulation.PatronStanding {
	standing := circulation.PatronStanding{PatronID: patronID}

	for _, loan := range s.loans {
		pool := s.pools[loan.PoolID]
		if loan.PatronID == patronID && pool.CollectionID == collectionID && !pool.OpenAccess && loan.IsActive(now) {
			standing.LoanCount++
		}
	}

	for _, hold := range s.holds {
		if hold.PatronID == patronID && s.pools[hold.PoolID].CollectionID == collectionID {
			standing.HoldCount++
		}
	}

	return standing
}

func (s *LedgerStore) apply(state *circulation.PoolState) error {
	if err := uniquePerPatron(state); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[state.Pool.ID] = state.Pool
	s.licenses[state.Pool.ID] = append([]circulation.License(nil), state.Licenses...)

	for _, loanID := range state.RemovedLoans() {
		delete(s.loans, loanID)
	}

	for _, holdID := range state.RemovedHolds() {
		delete(s.holds, holdID)
	}

	for _, loan := range state.Loans {
		s.loans[loan.ID] = loan
	}

	for _, hold := range state.Holds {
		s.holds[hold.ID] = hold
	}

	return nil
}

// uniquePerPatron mirrors the unique (patron_id, pool_id) constraints of the SQL schema.
func uniquePerPatron(state *circulation.PoolState) error {
	loanPatrons := make(map[uuid.UUID]struct{}, len(state.Loans))
	for _, loan := range state.Loans {
		if _, seen := loanPatrons[loan.PatronID]; seen {
			return fmt.Errorf("%w: duplicate loan for patron %s", circulation.ErrPersistingLedgerFailed, loan.PatronID)
		}
		loanPatrons[loan.PatronID] = struct{}{}
	}

	holdPatrons := make(map[uuid.UUID]struct{}, len(state.Holds))
	for _, hold := range state.Holds {
		if _, seen := holdPatrons[hold.PatronID]; seen {
			return fmt.Errorf("%w: duplicate hold for patron %s", circulation.ErrPersistingLedgerFailed, hold.PatronID)
		}
		holdPatrons[hold.PatronID] = struct{}{}
	}

	return nil
}
