package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
)

// LoanStatusChange says what ApplyLoanStatus did to a loan.
type LoanStatusChange int

const (
	// LoanUnchanged means the document confirmed the local loan.
	LoanUnchanged LoanStatusChange = iota
	// LoanEndUpdated means the loan end was moved to potential_rights.end.
	LoanEndUpdated
	// LoanRemoved means the distributor no longer considers the loan open and it was deleted.
	LoanRemoved
)

func (c LoanStatusChange) String() string {
	switch c {
	case LoanUnchanged:
		return "unchanged"
	case LoanEndUpdated:
		return "end_updated"
	case LoanRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ApplyLoanStatus reconciles the loan with a Loan Status Document.
//
// GIVEN: a loan on the locked pool and a fresh status document for it
// WHEN:  the status is terminal
// THEN:  the loan is removed and its slot goes back to its license
// WHEN:  the status is ready or active and the document carries potential_rights.end
// THEN:  the loan end follows it
// ERROR: ErrLoanNotFound when the pool has no loan with that id
//
// The caller rebalances the hold queue after LoanRemoved.
func ApplyLoanStatus(
	state *circulation.PoolState,
	loanID uuid.UUID,
	document loanstatus.LoanStatusDocument,
) (LoanStatusChange, error) {

	loan, found := loanByID(state, loanID)
	if !found {
		return LoanUnchanged, circulation.ErrLoanNotFound
	}

	if document.Status.IsTerminal() {
		state.RemoveLoan(loan.ID)
		return LoanRemoved, nil
	}

	end := document.End()
	if end == nil || (loan.End != nil && loan.End.Equal(*end)) {
		return LoanUnchanged, nil
	}

	updated := *end
	loan.End = &updated
	state.UpdateLoan(loan)

	return LoanEndUpdated, nil
}

// RebalanceAndVerify rebalances the hold queue and checks the pool invariants afterward.
// A violated invariant means the state must not be persisted.
func RebalanceAndVerify(
	state *circulation.PoolState,
	now time.Time,
	reservationPeriod time.Duration,
) (holdqueue.Summary, error) {

	summary := holdqueue.Rebalance(state, now, reservationPeriod)

	if err := state.CheckInvariants(now); err != nil {
		return summary, err
	}

	return summary, nil
}

func loanByID(state *circulation.PoolState, loanID uuid.UUID) (circulation.Loan, bool) {
	for _, loan := range state.Loans {
		if loan.ID == loanID {
			return loan, true
		}
	}

	return circulation.Loan{}, false
}
