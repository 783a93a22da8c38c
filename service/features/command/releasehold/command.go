package releasehold

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	commandType = "ReleaseHold"
)

// Command represents a patron leaving the hold queue of a license pool.
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

// Result is the outcome of releasing a hold.
type Result struct {
	shell.HandlerResult
}
