// Package checkout implements lending a title to a patron.
//
// The pool is locked for the whole operation. Decide checks the business rules against the locked state
// and picks a license. The handler expands the license's checkout URL, asks the distributor for the loan,
// records the loan with the distributor's status document URL as its external identifier and rebalances
// the hold queue before the transaction commits.
//
// Open-access and unlimited pools bypass licensing: the loan is recorded without a license and without
// a distributor call.
package checkout
