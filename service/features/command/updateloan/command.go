package updateloan

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	commandType = "UpdateLoan"
)

// Command asks to reconcile a loan with the distributor.
// Document is the status document the distributor pushed; when nil it is fetched.
type Command struct {
	LoanID   uuid.UUID
	Document *loanstatus.LoanStatusDocument
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(loanID uuid.UUID, document *loanstatus.LoanStatusDocument) Command {
	return Command{
		LoanID:   loanID,
		Document: document,
	}
}

// Result is the outcome of a loan update.
type Result struct {
	shell.HandlerResult
	Change core.LoanStatusChange
}
