package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/core"
)

// Plan is what the handler executes after a positive decision.
type Plan struct {
	// Bypass is set for open-access and unlimited pools: the loan takes no license and no remote call is made.
	Bypass bool

	// LicenseID is the license the distributor is asked to lend from.
	LicenseID uuid.UUID

	// HoldID is the patron's hold on the pool, deleted when the loan is created.
	HoldID *uuid.UUID

	// EndedLoanID is a loan of the patron that already ended and is removed first.
	EndedLoanID *uuid.UUID
}

// Decide implements the business rules that decide whether a patron may borrow from the locked pool.
// It reads the state and mutates nothing.
//
// Business Rules:
//
//	GIVEN: a patron and a locked license pool
//	WHEN:  Checkout command is received
//	THEN:  a Plan naming the license to lend from, or a bypass for open-access and unlimited pools
//	ERROR: AlreadyCheckedOut if the patron has an active loan on the pool
//	ERROR: PatronLoanLimitReached{limit} if the patron's loans in the collection reach the loan limit
//	ERROR: NoLicenses if no license is usable any more
//	ERROR: NoAvailableCopies if no slot is available and the patron holds no valid reservation
//
// Licenses are tried in identifier order; the first usable license with a free slot is chosen.
func Decide(
	state *circulation.PoolState,
	command Command,
	settings circulation.CollectionSettings,
	now time.Time,
) core.DecisionResult[Plan] {

	plan := Plan{}

	if loan, found := state.LoanFor(command.PatronID); found {
		if loan.IsActive(now) {
			return core.ErrorDecision[Plan](circulation.ErrAlreadyCheckedOut)
		}

		loanID := loan.ID
		plan.EndedLoanID = &loanID
	}

	if state.Pool.BypassesLicensing() {
		plan.Bypass = true
		return core.SuccessDecision(plan)
	}

	if settings.LoanLimitReached(state.Standing.LoanCount) {
		return core.ErrorDecision[Plan](circulation.PatronLoanLimitReachedError{Limit: *settings.LoanLimit})
	}

	if !state.HasUsableLicense(now) {
		return core.ErrorDecision[Plan](circulation.ErrNoLicenses)
	}

	hold, hasHold := state.HoldFor(command.PatronID)
	reserved := hasHold && hold.IsReserved() && !hold.IsExpired(now)

	if !reserved && state.Pool.LicensesAvailable < 1 {
		return core.ErrorDecision[Plan](circulation.ErrNoAvailableCopies)
	}

	license, found := state.LicenseForCheckout(now)
	if !found {
		return core.ErrorDecision[Plan](circulation.ErrNoAvailableCopies)
	}

	plan.LicenseID = license.ID

	if hasHold {
		holdID := hold.ID
		plan.HoldID = &holdID
	}

	return core.SuccessDecision(plan)
}
