package releasehold

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/core"
)

// Decide implements the business rules for releasing a hold.
// The plan is the id of the hold to delete.
//
// Business Rules:
//
//	GIVEN: a patron and a locked license pool
//	WHEN:  ReleaseHold command is received
//	THEN:  the patron's hold is deleted, a reserved slot passes to the next hold in line
//	ERROR: NotOnHold if the patron has no hold on the pool
func Decide(state *circulation.PoolState, command Command) core.DecisionResult[uuid.UUID] {
	hold, found := state.HoldFor(command.PatronID)
	if !found {
		return core.ErrorDecision[uuid.UUID](circulation.ErrNotOnHold)
	}

	return core.SuccessDecision(hold.ID)
}
