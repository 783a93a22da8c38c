package core

// DecisionResult represents the outcome of a business decision in a Decide function.
// P is the plan the command handler executes when the outcome is a success.
//
// IMPORTANT: DecisionResult should only be constructed using the provided factory methods:
// IdempotentDecision(), SuccessDecision(plan), or ErrorDecision(err).
type DecisionResult[P any] struct {
	Outcome string // "idempotent", "success", or "error"
	Plan    P
	Err     error
}

const (
	idempotentOutcome = "idempotent"
	successOutcome    = "success"
	errorOutcome      = "error"
)

// IdempotentDecision creates a DecisionResult indicating no state change is needed.
func IdempotentDecision[P any]() DecisionResult[P] {
	return DecisionResult[P]{
		Outcome: idempotentOutcome,
	}
}

// SuccessDecision creates a DecisionResult carrying the plan to execute.
func SuccessDecision[P any](plan P) DecisionResult[P] {
	return DecisionResult[P]{
		Outcome: successOutcome,
		Plan:    plan,
	}
}

// ErrorDecision creates a DecisionResult for a business rule violation.
func ErrorDecision[P any](err error) DecisionResult[P] {
	return DecisionResult[P]{
		Outcome: errorOutcome,
		Err:     err,
	}
}

// IsIdempotent returns true if nothing has to change.
func (r DecisionResult[P]) IsIdempotent() bool {
	return r.Outcome == idempotentOutcome
}

// HasPlan returns true if the handler has work to do.
func (r DecisionResult[P]) HasPlan() bool {
	return r.Outcome == successOutcome
}

// HasError returns the error if there is one, otherwise nil.
func (r DecisionResult[P]) HasError() error {
	if r.Outcome == errorOutcome {
		return r.Err
	}

	return nil
}
