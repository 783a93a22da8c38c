package updateloan

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

// Ledger defines the ledger operations needed by the CommandHandler.
type Ledger interface {
	LoanByID(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error)
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error
}

// LoanStatusClient defines the distributor calls needed by the CommandHandler.
type LoanStatusClient interface {
	Status(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
}

// CommandHandler orchestrates a loan update: Find -> Lock -> Remote status -> Apply -> Rebalance -> Commit.
// It serves distributor notifications and patron activity refreshes.
type CommandHandler struct {
	ledger   Ledger
	client   LoanStatusClient
	settings circulation.CollectionSettings
	clock    circulation.Clock
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithClock sets the clock used for reservation deadlines.
func WithClock(clock circulation.Clock) Option {
	return func(h *CommandHandler) {
		h.clock = clock
	}
}

// NewCommandHandler creates a new CommandHandler with optional configuration.
func NewCommandHandler(
	ledger Ledger,
	client LoanStatusClient,
	settings circulation.CollectionSettings,
	opts ...Option,
) CommandHandler {

	handler := CommandHandler{
		ledger:   ledger,
		client:   client,
		settings: settings,
		clock:    circulation.NewSystemClock(),
	}

	for _, opt := range opts {
		opt(&handler)
	}

	return handler
}

// Handle executes the loan update. ErrLoanNotFound is returned for unknown loans.
func (h CommandHandler) Handle(ctx context.Context, command Command) (Result, error) {
	loan, err := h.ledger.LoanByID(ctx, command.LoanID)
	if err != nil {
		return Result{}, err
	}

	var result Result

	err = h.ledger.WithPoolLock(ctx, loan.PoolID, loan.PatronID,
		func(ctx context.Context, state *circulation.PoolState) (bool, error) {
			var persist bool
			var execErr error

			result, persist, execErr = h.executeCommand(ctx, state, loan.PatronID, command)

			return persist, execErr
		},
	)

	return result, err
}

func (h CommandHandler) executeCommand(
	ctx context.Context,
	state *circulation.PoolState,
	patronID uuid.UUID,
	command Command,
) (Result, bool, error) {

	loan, found := state.LoanFor(patronID)
	if !found || loan.ID != command.LoanID {
		return Result{}, false, circulation.ErrLoanNotFound
	}

	if state.Pool.BypassesLicensing() || loan.LicenseID == nil {
		return Result{HandlerResult: shell.NewIdempotentResult(nil)}, false, nil
	}

	document, err := h.document(ctx, loan, command)
	if err != nil {
		return Result{}, false, err
	}

	change, err := core.ApplyLoanStatus(state, loan.ID, document)
	if err != nil {
		return Result{}, false, err
	}

	switch change {
	case core.LoanRemoved:
		summary, err := core.RebalanceAndVerify(state, h.clock.Now(), h.settings.ReservationPeriod)
		if err != nil {
			return Result{}, false, err
		}

		return Result{HandlerResult: shell.NewSuccessResult(&summary), Change: change}, true, nil

	case core.LoanEndUpdated:
		return Result{HandlerResult: shell.NewSuccessResult(nil), Change: change}, true, nil

	default:
		return Result{HandlerResult: shell.NewIdempotentResult(nil), Change: change}, false, nil
	}
}

func (h CommandHandler) document(ctx context.Context, loan circulation.Loan, command Command) (loanstatus.LoanStatusDocument, error) {
	if command.Document != nil {
		return *command.Document, nil
	}

	return h.client.Status(ctx, loan.ExternalIdentifier)
}
