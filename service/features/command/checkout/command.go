package checkout

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	commandType = "Checkout"
)

// Command represents a patron's request to borrow a title from a license pool.
// Passphrase is the patron's hashed LCP passphrase, forwarded to the distributor when set.
type Command struct {
	PatronID   uuid.UUID
	PoolID     uuid.UUID
	Passphrase string
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(patronID uuid.UUID, poolID uuid.UUID, passphrase string) Command {
	return Command{
		PatronID:   patronID,
		PoolID:     poolID,
		Passphrase: passphrase,
	}
}

// Result is the outcome of a checkout. Loan is the created loan on success.
type Result struct {
	shell.HandlerResult
	Loan circulation.Loan
}
