package placehold

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

// Ledger defines the ledger operations needed by the CommandHandler.
type Ledger interface {
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error
}

// CommandHandler orchestrates placing a hold: Lock -> Rebalance -> Decide -> Queue -> Estimate -> Commit.
// No distributor call is made.
type CommandHandler struct {
	ledger   Ledger
	settings circulation.CollectionSettings
	clock    circulation.Clock
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithClock sets the clock used for the hold start and its estimated end.
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

// Handle executes placing the hold.
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
	now := h.clock.Now()

	refreshed, err := core.RebalanceAndVerify(state, now, h.settings.ReservationPeriod)
	if err != nil {
		return Result{}, false, err
	}

	decision := Decide(state, command, h.settings, now)
	if err := decision.HasError(); err != nil {
		return rejected(refreshed, err)
	}

	if decision.Plan.EndedLoanID != nil {
		state.RemoveLoan(*decision.Plan.EndedLoanID)

		released, err := core.RebalanceAndVerify(state, now, h.settings.ReservationPeriod)
		if err != nil {
			return Result{}, false, err
		}

		refreshed = refreshed.Merge(released)

		if state.Pool.LicensesAvailable > 0 {
			return rejected(refreshed, circulation.ErrCurrentlyAvailable)
		}
	}

	hold := circulation.Hold{
		ID:       uuid.New(),
		PatronID: command.PatronID,
		PoolID:   state.Pool.ID,
		Start:    decision.Plan.Start,
	}

	state.AddHold(hold)

	hold = holdqueue.UpdateHold(state, hold, now, h.settings.LoanDuration, h.settings.ReservationPeriod)
	state.UpdateHold(hold)

	state.Pool.PatronsInHoldQueue++
	if hold.IsReserved() {
		state.Pool.LicensesReserved++
	}

	if err := state.CheckInvariants(now); err != nil {
		return Result{}, false, err
	}

	return Result{HandlerResult: shell.NewSuccessResult(&refreshed), Hold: hold}, true, nil
}

// rejected persists the rebalance that ran before the failure when it corrected the pool.
func rejected(refreshed holdqueue.Summary, err error) (Result, bool, error) {
	if !refreshed.Changed {
		return Result{}, false, err
	}

	return Result{HandlerResult: shell.NewRepairResult(&refreshed)}, true, err
}
