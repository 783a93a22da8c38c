package checkout

import (
	"errors"
	"fmt"

	"github.com/jonathangreen/circulation/circulation/loanstatus"
)

// ErrNoLoanIdentifier is returned when neither the status document nor the license document
// links to the loan's status document.
var ErrNoLoanIdentifier = errors.New("distributor returned no loan status link")

// ErrUnexpectedLoanStatus is returned when a checkout answers with a status other than ready or active.
var ErrUnexpectedLoanStatus = errors.New("unexpected loan status after checkout")

func unexpectedStatusError(status loanstatus.Status) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedLoanStatus, status)
}
