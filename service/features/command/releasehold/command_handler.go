package releasehold

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

// Ledger defines the ledger operations needed by the CommandHandler.
type Ledger interface {
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error
}

// CommandHandler orchestrates releasing a hold: Lock -> Decide -> Remove -> Rebalance -> Commit.
type CommandHandler struct {
	ledger   Ledger
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
func NewCommandHandler(ledger Ledger, settings circulation.CollectionSettings, opts ...Option) CommandHandler {
	handler := CommandHandler{
		ledger:   ledger,
		settings: settings,
		clock:    circulation.NewSystemClock(),
	}

	for _, opt := range opts {
		opt(&handler)
	}

	return handler
}

// Handle executes releasing the hold.
func (h CommandHandler) Handle(ctx context.Context, command Command) (Result, error) {
	var result Result

	err := h.ledger.WithPoolLock(ctx, command.PoolID, command.PatronID,
		func(ctx context.Context, state *circulation.PoolState) (bool, error) {
			var persist bool
			var execErr error

			result, persist, execErr = h.executeCommand(state, command)

			return persist, execErr
		},
	)

	return result, err
}

func (h CommandHandler) executeCommand(state *circulation.PoolState, command Command) (Result, bool, error) {
	decision := Decide(state, command)
	if err := decision.HasError(); err != nil {
		return Result{}, false, err
	}

	state.RemoveHold(decision.Plan)

	summary, err := core.RebalanceAndVerify(state, h.clock.Now(), h.settings.ReservationPeriod)
	if err != nil {
		return Result{}, false, err
	}

	return Result{HandlerResult: shell.NewSuccessResult(&summary)}, true, nil
}
