package shell

import "github.com/jonathangreen/circulation/circulation/holdqueue"

// HandlerResult represents the outcome of a command handler execution.
// It captures business outcomes without coupling the handler to specific observability implementations.
type HandlerResult struct {
	// Idempotent indicates the ledger already matched the request and nothing was written.
	// A checkin against a loan the distributor had already closed is idempotent even though
	// the local loan is removed.
	Idempotent bool

	// Repaired indicates the local ledger was corrected to match the distributor
	// while the operation itself failed, for example a license zeroed before NoAvailableCopies.
	Repaired bool

	// Rebalance is the summary of the hold queue rebalancing the operation ran, if any.
	Rebalance *holdqueue.Summary
}

// Outcome implements Result.
func (r HandlerResult) Outcome() HandlerResult {
	return r
}

// NewSuccessResult creates a HandlerResult for operations that changed the ledger.
func NewSuccessResult(rebalance *holdqueue.Summary) HandlerResult {
	return HandlerResult{Rebalance: rebalance}
}

// NewIdempotentResult creates a HandlerResult for operations that needed no change.
func NewIdempotentResult(rebalance *holdqueue.Summary) HandlerResult {
	return HandlerResult{Idempotent: true, Rebalance: rebalance}
}

// NewRepairResult creates a HandlerResult for failed operations that still corrected the ledger.
func NewRepairResult(rebalance *holdqueue.Summary) HandlerResult {
	return HandlerResult{Repaired: true, Rebalance: rebalance}
}
