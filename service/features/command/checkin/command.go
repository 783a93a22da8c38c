package checkin

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	commandType = "Checkin"
)

// Command represents a patron returning a borrowed title.
type Command struct {
	PatronID uuid.UUID
	PoolID   uuid.UUID
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(patronID uuid.UUID, poolID uuid.UUID) Command {
	return Command{
		PatronID: patronID,
		PoolID:   poolID,
	}
}

// Result is the outcome of a checkin. Idempotent is set when the distributor had already closed the loan.
type Result struct {
	shell.HandlerResult
}
