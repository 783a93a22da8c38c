package placehold

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	commandType = "PlaceHold"
)

// Command represents a patron joining the hold queue of a license pool.
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

// Result is the outcome of placing a hold. Hold carries the queue position and the estimated end date.
type Result struct {
	shell.HandlerResult
	Hold circulation.Hold
}
