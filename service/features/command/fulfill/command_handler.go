package fulfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/distributorauth"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

// Ledger defines the ledger operations needed by the CommandHandler.
type Ledger interface {
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error
}

// LoanStatusClient defines the distributor calls needed by the CommandHandler.
type LoanStatusClient interface {
	Status(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
}

// SessionTokenSource mints the distributor session token for bearer token deliveries.
// The distributorauth.Client caches it until it expires.
type SessionTokenSource interface {
	SessionToken(ctx context.Context) (distributorauth.Token, error)
}

// CommandHandler orchestrates a fulfill: Lock -> Decide -> Remote status -> Select link.
// A loan the distributor already closed is removed and the hold queue rebalanced before failing.
type CommandHandler struct {
	ledger   Ledger
	client   LoanStatusClient
	tokens   SessionTokenSource
	settings circulation.CollectionSettings
	clock    circulation.Clock
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithClock sets the clock used for rebalancing and token lifetimes.
func WithClock(clock circulation.Clock) Option {
	return func(h *CommandHandler) {
		h.clock = clock
	}
}

// WithSessionTokens enables bearer token deliveries.
func WithSessionTokens(tokens SessionTokenSource) Option {
	return func(h *CommandHandler) {
		h.tokens = tokens
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

// Handle executes the fulfill.
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

	if decision.Plan.Bypass {
		fulfillment, err := h.bypassFulfillment(ctx, command.Mechanism)
		if err != nil {
			return Result{}, false, err
		}

		return Result{HandlerResult: shell.NewSuccessResult(nil), Fulfillment: fulfillment}, false, nil
	}

	loan := decision.Plan.Loan

	document, err := h.client.Status(ctx, loan.ExternalIdentifier)
	if err != nil {
		return Result{}, false, err
	}

	if document.Status.IsTerminal() {
		state.RemoveLoan(loan.ID)

		summary, err := core.RebalanceAndVerify(state, h.clock.Now(), h.settings.ReservationPeriod)
		if err != nil {
			return Result{}, false, err
		}

		return Result{HandlerResult: shell.NewRepairResult(&summary)}, true,
			errors.Join(circulation.ErrCannotFulfill, fmt.Errorf("%w: %s", ErrLoanClosed, document.Status))
	}

	fulfillment, err := SelectLink(document, command.Mechanism)
	if err != nil {
		return Result{}, false, err
	}

	return Result{HandlerResult: shell.NewSuccessResult(nil), Fulfillment: fulfillment}, false, nil
}

func (h CommandHandler) bypassFulfillment(ctx context.Context, mechanism circulation.DeliveryMechanism) (circulation.Fulfillment, error) {
	if mechanism.DRMScheme != circulation.BearerTokenDRM {
		return BypassFulfillment(mechanism)
	}

	if h.tokens == nil {
		return circulation.Fulfillment{}, errors.Join(
			circulation.ErrCannotFulfill,
			fmt.Errorf("%w: %s", ErrUnsupportedMechanism, mechanism.DRMScheme),
		)
	}

	token, err := h.tokens.SessionToken(ctx)
	if err != nil {
		return circulation.Fulfillment{}, errors.Join(circulation.ErrCannotFulfill, err)
	}

	return BearerTokenFulfillment(token, mechanism, h.clock.Now())
}
