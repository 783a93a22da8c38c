package checkin

import (
	"errors"
	"fmt"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
)

var (
	// ErrNoReturnLink is returned when an open loan's status document offers no return link.
	ErrNoReturnLink = errors.New("loan status document has no return link")

	// ErrLoanStillOpen is returned when the distributor still reports the loan open after the return call.
	ErrLoanStillOpen = errors.New("loan still open after return")
)

// Plan is what the handler executes after a positive decision.
type Plan struct {
	// Loan is the patron's loan on the pool.
	Loan circulation.Loan

	// Local is set when the loan is not backed by a license; it is deleted without a distributor call.
	Local bool
}

// Decide implements the business rules for returning a title.
//
// Business Rules:
//
//	GIVEN: a patron and a locked license pool
//	WHEN:  Checkin command is received
//	THEN:  a Plan naming the loan to return
//	THEN:  loans of open-access and unlimited pools, and loans without a license, are returned locally
//	ERROR: NotCheckedOut if the patron has no loan on the pool
func Decide(state *circulation.PoolState, command Command) core.DecisionResult[Plan] {
	loan, found := state.LoanFor(command.PatronID)
	if !found {
		return core.ErrorDecision[Plan](circulation.ErrNotCheckedOut)
	}

	return core.SuccessDecision(Plan{
		Loan:  loan,
		Local: state.Pool.BypassesLicensing() || loan.LicenseID == nil,
	})
}

// DecideReturn inspects the loan's current status document.
//
//	GIVEN: the status document of an open loan
//	WHEN:  the status is terminal
//	THEN:  idempotent, the distributor already considers the loan returned
//	WHEN:  the status is ready or active
//	THEN:  the return link to call
//	ERROR: CannotReturn if there is no return link
func DecideReturn(document loanstatus.LoanStatusDocument) core.DecisionResult[string] {
	if document.Status.IsTerminal() {
		return core.IdempotentDecision[string]()
	}

	link, found := document.Links.Get(loanstatus.RelReturn, "")
	if !found || link.Href == "" {
		return core.ErrorDecision[string](errors.Join(circulation.ErrCannotReturn, ErrNoReturnLink))
	}

	return core.SuccessDecision(link.Href)
}

// VerifyReturned checks the document the return call answered with.
// Anything but a terminal status is CannotReturn.
func VerifyReturned(document loanstatus.LoanStatusDocument) error {
	if document.Status.IsTerminal() {
		return nil
	}

	return errors.Join(circulation.ErrCannotReturn, fmt.Errorf("%w: %s", ErrLoanStillOpen, document.Status))
}
