package circulation

import (
	"errors"
	"fmt"
)

// Business rule violations. They are returned synchronously, never retried,
// and the ledger is left untouched unless noted on the operation.
var (
	ErrAlreadyCheckedOut      = errors.New("patron already has an active loan for this title")
	ErrNotCheckedOut          = errors.New("patron has no active loan for this title")
	ErrAlreadyOnHold          = errors.New("patron already has a hold on this title")
	ErrNotOnHold              = errors.New("patron has no hold on this title")
	ErrNoAvailableCopies      = errors.New("no copies available to check out")
	ErrNoLicenses             = errors.New("no usable licenses for this title")
	ErrHoldOnUnlimitedAccess  = errors.New("holds are not needed for unlimited access titles")
	ErrHoldsNotPermitted      = errors.New("holds are not permitted in this collection")
	ErrPatronLoanLimitReached = errors.New("patron loan limit reached")
	ErrPatronHoldLimitReached = errors.New("patron hold limit reached")
	ErrCannotLoan             = errors.New("could not check out this title")
	ErrCannotReturn           = errors.New("could not return this title")
	ErrCannotFulfill          = errors.New("could not fulfill this loan")
	ErrCurrentlyAvailable     = errors.New("title is currently available, check it out instead")
)

// ErrIntegrationMisconfigured marks protocol failures caused by the distributor integration itself,
// for example a malformed authentication document or token grant.
var ErrIntegrationMisconfigured = errors.New("distributor integration misconfigured")

// Ledger persistence errors.
var (
	ErrNilDatabaseConnection   = errors.New("database connection must not be nil")
	ErrEmptyTablePrefix        = errors.New("empty table prefix supplied")
	ErrPoolNotFound            = errors.New("license pool not found")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrQueryingLedgerFailed    = errors.New("querying the ledger failed")
	ErrPersistingLedgerFailed  = errors.New("persisting the ledger failed")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrBeginTransactionFailed  = errors.New("beginning the transaction failed")
	ErrCommitFailed            = errors.New("committing the transaction failed")
	ErrMigrationFailed         = errors.New("applying migrations failed")
	ErrInvalidCollectionConfig = errors.New("invalid collection settings")
)

// PatronLoanLimitReachedError carries the configured loan limit.
// It matches ErrPatronLoanLimitReached with errors.Is.
type PatronLoanLimitReachedError struct {
	Limit int
}

func (e PatronLoanLimitReachedError) Error() string {
	return fmt.Sprintf("%s: limit is %d", ErrPatronLoanLimitReached.Error(), e.Limit)
}

// Is reports whether target is ErrPatronLoanLimitReached.
func (e PatronLoanLimitReachedError) Is(target error) bool {
	return target == ErrPatronLoanLimitReached
}

// PatronHoldLimitReachedError carries the configured hold limit.
// It matches ErrPatronHoldLimitReached with errors.Is.
type PatronHoldLimitReachedError struct {
	Limit int
}

func (e PatronHoldLimitReachedError) Error() string {
	return fmt.Sprintf("%s: limit is %d", ErrPatronHoldLimitReached.Error(), e.Limit)
}

// Is reports whether target is ErrPatronHoldLimitReached.
func (e PatronHoldLimitReachedError) Is(target error) bool {
	return target == ErrPatronHoldLimitReached
}

var businessErrors = []error{
	ErrAlreadyCheckedOut,
	ErrNotCheckedOut,
	ErrAlreadyOnHold,
	ErrNotOnHold,
	ErrNoAvailableCopies,
	ErrNoLicenses,
	ErrHoldOnUnlimitedAccess,
	ErrHoldsNotPermitted,
	ErrPatronLoanLimitReached,
	ErrPatronHoldLimitReached,
	ErrCannotLoan,
	ErrCannotReturn,
	ErrCannotFulfill,
	ErrCurrentlyAvailable,
}

// IsBusinessRuleViolation reports whether err belongs to the business error taxonomy.
func IsBusinessRuleViolation(err error) bool {
	for _, businessErr := range businessErrors {
		if errors.Is(err, businessErr) {
			return true
		}
	}

	return false
}

// BusinessErrorCode returns a stable snake_case code for a business rule violation,
// or "unknown" when err is not part of the taxonomy.
func BusinessErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyCheckedOut):
		return "already_checked_out"
	case errors.Is(err, ErrNotCheckedOut):
		return "not_checked_out"
	case errors.Is(err, ErrAlreadyOnHold):
		return "already_on_hold"
	case errors.Is(err, ErrNotOnHold):
		return "not_on_hold"
	case errors.Is(err, ErrNoAvailableCopies):
		return "no_available_copies"
	case errors.Is(err, ErrNoLicenses):
		return "no_licenses"
	case errors.Is(err, ErrHoldOnUnlimitedAccess):
		return "hold_on_unlimited_access"
	case errors.Is(err, ErrHoldsNotPermitted):
		return "holds_not_permitted"
	case errors.Is(err, ErrPatronLoanLimitReached):
		return "patron_loan_limit_reached"
	case errors.Is(err, ErrPatronHoldLimitReached):
		return "patron_hold_limit_reached"
	case errors.Is(err, ErrCannotLoan):
		return "cannot_loan"
	case errors.Is(err, ErrCannotReturn):
		return "cannot_return"
	case errors.Is(err, ErrCannotFulfill):
		return "cannot_fulfill"
	case errors.Is(err, ErrCurrentlyAvailable):
		return "currently_available"
	default:
		return "unknown"
	}
}
