package fulfill

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	commandType = "Fulfill"
)

// Command represents a patron asking for the content of a loan in one delivery mechanism.
type Command struct {
	PatronID  uuid.UUID
	PoolID    uuid.UUID
	Mechanism circulation.DeliveryMechanism
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(patronID uuid.UUID, poolID uuid.UUID, mechanism circulation.DeliveryMechanism) Command {
	return Command{
		PatronID:  patronID,
		PoolID:    poolID,
		Mechanism: mechanism,
	}
}

// Result is the outcome of a fulfill.
type Result struct {
	shell.HandlerResult
	Fulfillment circulation.Fulfillment
}
