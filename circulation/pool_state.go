package circulation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrInvariantViolated is returned by CheckInvariants.
var ErrInvariantViolated = errors.New("ledger invariant violated")

// PoolState is the locked aggregate for one license pool: the pool row, its licenses, loans and holds,
// and the standing of the patron whose operation holds the lock.
// Stores persist the current rows and delete everything removed through RemoveLoan and RemoveHold.
type PoolState struct {
	Pool     LicensePool
	Licenses []License
	Loans    []Loan
	Holds    []Hold
	Standing PatronStanding

	removedLoans []uuid.UUID
	removedHolds []uuid.UUID
}

// NewPoolState builds a PoolState with licenses sorted by identifier, then id.
func NewPoolState(pool LicensePool, licenses []License, loans []Loan, holds []Hold, standing PatronStanding) *PoolState {
	state := &PoolState{
		Pool:     pool,
		Licenses: append([]License(nil), licenses...),
		Loans:    append([]Loan(nil), loans...),
		Holds:    append([]Hold(nil), holds...),
		Standing: standing,
	}

	sort.SliceStable(state.Licenses, func(i, j int) bool {
		if state.Licenses[i].Identifier != state.Licenses[j].Identifier {
			return state.Licenses[i].Identifier < state.Licenses[j].Identifier
		}
		return state.Licenses[i].ID.String() < state.Licenses[j].ID.String()
	})

	return state
}

// RemovedLoans returns the ids of loans removed since the state was loaded.
func (s *PoolState) RemovedLoans() []uuid.UUID {
	return s.removedLoans
}

// RemovedHolds returns the ids of holds removed since the state was loaded.
func (s *PoolState) RemovedHolds() []uuid.UUID {
	return s.removedHolds
}

// LoanFor returns the patron's loan on this pool.
func (s *PoolState) LoanFor(patronID uuid.UUID) (Loan, bool) {
	for _, loan := range s.Loans {
		if loan.PatronID == patronID {
			return loan, true
		}
	}

	return Loan{}, false
}

// HoldFor returns the patron's hold on this pool.
func (s *PoolState) HoldFor(patronID uuid.UUID) (Hold, bool) {
	for _, hold := range s.Holds {
		if hold.PatronID == patronID {
			return hold, true
		}
	}

	return Hold{}, false
}

// LicenseByID returns a pointer into Licenses so callers can mutate the counters.
func (s *PoolState) LicenseByID(id uuid.UUID) (*License, bool) {
	for i := range s.Licenses {
		if s.Licenses[i].ID == id {
			return &s.Licenses[i], true
		}
	}

	return nil, false
}

// HasUsableLicense reports whether at least one license is neither exhausted nor expired.
func (s *PoolState) HasUsableLicense(now time.Time) bool {
	for _, license := range s.Licenses {
		if license.IsUsable(now) {
			return true
		}
	}

	return false
}

// LicenseForCheckout returns the first usable license with a free slot, in identifier order.
func (s *PoolState) LicenseForCheckout(now time.Time) (*License, bool) {
	for i := range s.Licenses {
		if s.Licenses[i].FreeSlots(now) > 0 {
			return &s.Licenses[i], true
		}
	}

	return nil, false
}

// ActiveLoans returns the loans that have not ended at now.
func (s *PoolState) ActiveLoans(now time.Time) []Loan {
	active := make([]Loan, 0, len(s.Loans))
	for _, loan := range s.Loans {
		if loan.IsActive(now) {
			active = append(active, loan)
		}
	}

	return active
}

// ActiveHolds returns the holds that are not expired, ordered by start then id.
func (s *PoolState) ActiveHolds(now time.Time) []Hold {
	active := make([]Hold, 0, len(s.Holds))
	for _, hold := range s.Holds {
		if !hold.IsExpired(now) {
			active = append(active, hold)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].QueuedBefore(active[j])
	})

	return active
}

// OwnedSlots is the number of licenses the pool owns: the concurrency of every usable license
// plus the slots still held by loans on licenses that became unusable.
func (s *PoolState) OwnedSlots(now time.Time) int {
	owned := 0
	loansPerLicense := s.activeLoansPerLicense(now)

	for _, license := range s.Licenses {
		if license.IsUsable(now) {
			owned += license.TermsConcurrency
			continue
		}

		owned += min(loansPerLicense[license.ID], license.TermsConcurrency)
	}

	return owned
}

// FreeSlots is the number of loans the usable licenses can still back.
func (s *PoolState) FreeSlots(now time.Time) int {
	free := 0
	for _, license := range s.Licenses {
		free += license.FreeSlots(now)
	}

	return free
}

func (s *PoolState) activeLoansPerLicense(now time.Time) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, loan := range s.Loans {
		if loan.LicenseID != nil && loan.IsActive(now) {
			counts[*loan.LicenseID]++
		}
	}

	return counts
}

// AddLoan creates a loan and consumes a slot of its license, if any.
func (s *PoolState) AddLoan(loan Loan) {
	if loan.LicenseID != nil {
		if license, ok := s.LicenseByID(*loan.LicenseID); ok {
			license.consume()
		}
	}

	s.Loans = append(s.Loans, loan)
}

// RemoveLoan deletes the loan and gives its slot back to its license.
func (s *PoolState) RemoveLoan(loanID uuid.UUID) (Loan, bool) {
	for i, loan := range s.Loans {
		if loan.ID != loanID {
			continue
		}

		if loan.LicenseID != nil {
			if license, ok := s.LicenseByID(*loan.LicenseID); ok {
				license.release()
			}
		}

		s.Loans = append(s.Loans[:i], s.Loans[i+1:]...)
		s.removedLoans = append(s.removedLoans, loanID)

		return loan, true
	}

	return Loan{}, false
}

// UpdateLoan replaces the stored loan with the same id.
func (s *PoolState) UpdateLoan(loan Loan) bool {
	for i := range s.Loans {
		if s.Loans[i].ID == loan.ID {
			s.Loans[i] = loan
			return true
		}
	}

	return false
}

// AddHold appends a hold.
func (s *PoolState) AddHold(hold Hold) {
	s.Holds = append(s.Holds, hold)
}

// RemoveHold deletes the hold.
func (s *PoolState) RemoveHold(holdID uuid.UUID) (Hold, bool) {
	for i, hold := range s.Holds {
		if hold.ID != holdID {
			continue
		}

		s.Holds = append(s.Holds[:i], s.Holds[i+1:]...)
		s.removedHolds = append(s.removedHolds, holdID)

		return hold, true
	}

	return Hold{}, false
}

// UpdateHold replaces the stored hold with the same id.
func (s *PoolState) UpdateHold(hold Hold) bool {
	for i := range s.Holds {
		if s.Holds[i].ID == hold.ID {
			s.Holds[i] = hold
			return true
		}
	}

	return false
}

// MarkLicenseUnavailable zeroes the free slots of a license the distributor reported as unavailable.
func (s *PoolState) MarkLicenseUnavailable(licenseID uuid.UUID) bool {
	license, ok := s.LicenseByID(licenseID)
	if !ok {
		return false
	}

	license.CheckoutsAvailable = 0

	return true
}

// CheckInvariants verifies the pool counters against the rows.
// Pools that bypass licensing are not counted and always pass.
func (s *PoolState) CheckInvariants(now time.Time) error {
	if s.Pool.BypassesLicensing() {
		return nil
	}

	pool := s.Pool
	activeLoans := len(s.ActiveLoans(now))

	if pool.LicensesAvailable < 0 || pool.LicensesReserved < 0 {
		return fmt.Errorf("%w: negative counters available=%d reserved=%d",
			ErrInvariantViolated, pool.LicensesAvailable, pool.LicensesReserved)
	}

	if pool.LicensesAvailable+pool.LicensesReserved+activeLoans > pool.LicensesOwned {
		return fmt.Errorf("%w: available=%d + reserved=%d + loans=%d exceeds owned=%d",
			ErrInvariantViolated, pool.LicensesAvailable, pool.LicensesReserved, activeLoans, pool.LicensesOwned)
	}

	patrons := make(map[uuid.UUID]struct{}, len(s.Loans)+len(s.Holds))
	for _, loan := range s.Loans {
		if _, seen := patrons[loan.PatronID]; seen {
			return fmt.Errorf("%w: patron %s has more than one loan", ErrInvariantViolated, loan.PatronID)
		}
		patrons[loan.PatronID] = struct{}{}
	}

	for _, hold := range s.Holds {
		if _, seen := patrons[hold.PatronID]; seen {
			return fmt.Errorf("%w: patron %s has a hold next to a loan or another hold", ErrInvariantViolated, hold.PatronID)
		}
		patrons[hold.PatronID] = struct{}{}

		if hold.Position < 0 {
			return fmt.Errorf("%w: hold %s has a negative position", ErrInvariantViolated, hold.ID)
		}
	}

	return nil
}
