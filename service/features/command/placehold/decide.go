package placehold

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/core"
)

// Plan is what the handler executes after a positive decision.
type Plan struct {
	// Start is when the hold joins the queue. Earlier starts are served first.
	Start time.Time

	// EndedLoanID is a loan of the patron on the pool that already ended and is removed first.
	EndedLoanID *uuid.UUID
}

// Decide implements the business rules that decide whether a patron may join the hold queue.
// It reads the state and mutates nothing.
//
// Business Rules:
//
//	GIVEN: a patron and a locked license pool
//	WHEN:  PlaceHold command is received
//	THEN:  a Plan starting the hold now, dropping the patron's ended loan on the pool if there is one
//	ERROR: HoldOnUnlimitedAccess if the pool is open access or unlimited
//	ERROR: HoldsNotPermitted if the collection's hold limit is zero
//	ERROR: AlreadyOnHold if the patron already has a hold on the pool
//	ERROR: AlreadyCheckedOut if the patron has an active loan on the pool
//	ERROR: CurrentlyAvailable if a copy can be borrowed right away
//	ERROR: PatronHoldLimitReached{limit} if the patron's holds in the collection reach the hold limit
func Decide(
	state *circulation.PoolState,
	command Command,
	settings circulation.CollectionSettings,
	now time.Time,
) core.DecisionResult[Plan] {

	if state.Pool.BypassesLicensing() {
		return core.ErrorDecision[Plan](circulation.ErrHoldOnUnlimitedAccess)
	}

	if !settings.HoldsPermitted() {
		return core.ErrorDecision[Plan](circulation.ErrHoldsNotPermitted)
	}

	if _, found := state.HoldFor(command.PatronID); found {
		return core.ErrorDecision[Plan](circulation.ErrAlreadyOnHold)
	}

	plan := Plan{Start: now}

	if loan, found := state.LoanFor(command.PatronID); found {
		if loan.IsActive(now) {
			return core.ErrorDecision[Plan](circulation.ErrAlreadyCheckedOut)
		}

		loanID := loan.ID
		plan.EndedLoanID = &loanID
	}

	if state.Pool.LicensesAvailable > 0 {
		return core.ErrorDecision[Plan](circulation.ErrCurrentlyAvailable)
	}

	if settings.HoldLimitReached(state.Standing.HoldCount) {
		return core.ErrorDecision[Plan](circulation.PatronHoldLimitReachedError{Limit: *settings.HoldLimit})
	}

	return core.SuccessDecision(plan)
}
