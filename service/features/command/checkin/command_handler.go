package checkin

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

const (
	logMsgAlreadyReturned = "distributor already closed the loan, removing it locally"
	logAttrLoanID         = "loan_id"
	logAttrStatus         = "remote_status"
)

// Ledger defines the ledger operations needed by the CommandHandler.
type Ledger interface {
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error
}

// LoanStatusClient defines the distributor calls needed by the CommandHandler.
type LoanStatusClient interface {
	Status(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
	Return(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
}

// CommandHandler orchestrates a checkin: Lock -> Decide -> Remote status -> Remote return -> Remove -> Rebalance.
// The freed slot always goes through the hold queue so a waiting patron gets it before it becomes available.
type CommandHandler struct {
	ledger           Ledger
	client           LoanStatusClient
	settings         circulation.CollectionSettings
	clock            circulation.Clock
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithClock sets the clock used for rebalancing.
func WithClock(clock circulation.Clock) Option {
	return func(h *CommandHandler) {
		h.clock = clock
	}
}

// WithLogger sets the logger for loans the distributor already closed.
func WithLogger(logger circulation.Logger) Option {
	return func(h *CommandHandler) {
		h.logger = logger
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(h *CommandHandler) {
		h.contextualLogger = logger
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

// Handle executes the checkin.
func (h CommandHandler) Handle(ctx context.Context, command Command) (Result, error) {
	var result Result

	err := h.ledger.WithPoolLock(ctx, command.PoolID, command.PatronID,
		func(ctx context.Context, state *circulation.PoolState) (bool, error) {
			var persist bool
			var execErr error

			result, persist, execErr = h.executeCommand(ctx, state, command)

			return persist, execErr
		},
	)

	return result, err
}

func (h CommandHandler) executeCommand(
	ctx context.Context,
	state *circulation.PoolState,
	command Command,
) (Result, bool, error) {

	decision := Decide(state, command)
	if err := decision.HasError(); err != nil {
		return Result{}, false, err
	}

	loan := decision.Plan.Loan

	if decision.Plan.Local {
		state.RemoveLoan(loan.ID)
		return Result{HandlerResult: shell.NewSuccessResult(nil)}, true, nil
	}

	document, err := h.client.Status(ctx, loan.ExternalIdentifier)
	if err != nil {
		return Result{}, false, err
	}

	returnDecision := DecideReturn(document)
	if err := returnDecision.HasError(); err != nil {
		return Result{}, false, err
	}

	if returnDecision.IsIdempotent() {
		h.logAlreadyReturned(ctx, loan.ID, document.Status)

		summary, err := h.removeAndRebalance(state, loan.ID)
		if err != nil {
			return Result{}, false, err
		}

		return Result{HandlerResult: shell.NewIdempotentResult(&summary)}, true, nil
	}

	returned, err := h.client.Return(ctx, returnDecision.Plan)
	if err != nil {
		return Result{}, false, err
	}

	if err := VerifyReturned(returned); err != nil {
		return Result{}, false, err
	}

	summary, err := h.removeAndRebalance(state, loan.ID)
	if err != nil {
		return Result{}, false, err
	}

	return Result{HandlerResult: shell.NewSuccessResult(&summary)}, true, nil
}

func (h CommandHandler) removeAndRebalance(state *circulation.PoolState, loanID uuid.UUID) (holdqueue.Summary, error) {
	state.RemoveLoan(loanID)

	return core.RebalanceAndVerify(state, h.clock.Now(), h.settings.ReservationPeriod)
}

func (h CommandHandler) logAlreadyReturned(ctx context.Context, loanID uuid.UUID, status loanstatus.Status) {
	args := []any{logAttrLoanID, loanID.String(), logAttrStatus, string(status)}

	if h.contextualLogger != nil {
		h.contextualLogger.WarnContext(ctx, logMsgAlreadyReturned, args...)
	} else if h.logger != nil {
		h.logger.Warn(logMsgAlreadyReturned, args...)
	}
}
