package patronactivity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
)

const (
	logMsgRefreshFailed = "refreshing loan status failed, listing the stored loan"
	logAttrLoanID       = "loan_id"
	logAttrError        = "error"
)

// Ledger defines the ledger operations needed by the QueryHandler.
type Ledger interface {
	PatronActivity(ctx context.Context, patronID uuid.UUID) (circulation.PatronActivity, error)
	WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error
}

// LoanStatusClient defines the distributor calls needed by the QueryHandler.
type LoanStatusClient interface {
	Status(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
}

// QueryHandler syncs and lists a patron's activity, one locked pool at a time.
// Expired reservations are deleted on the way and hold estimates are refreshed, so the query writes.
type QueryHandler struct {
	ledger           Ledger
	client           LoanStatusClient
	settings         circulation.CollectionSettings
	clock            circulation.Clock
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
}

// Option configures a QueryHandler.
type Option func(*QueryHandler)

// WithClock sets the clock used for expiry and estimates.
func WithClock(clock circulation.Clock) Option {
	return func(h *QueryHandler) {
		h.clock = clock
	}
}

// WithLogger sets the logger for failed loan refreshes.
func WithLogger(logger circulation.Logger) Option {
	return func(h *QueryHandler) {
		h.logger = logger
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(h *QueryHandler) {
		h.contextualLogger = logger
	}
}

// NewQueryHandler creates a new QueryHandler with optional configuration.
func NewQueryHandler(
	ledger Ledger,
	client LoanStatusClient,
	settings circulation.CollectionSettings,
	opts ...Option,
) QueryHandler {

	handler := QueryHandler{
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

// Handle executes the query. A failing distributor refresh is logged and skipped; ledger errors abort.
func (h QueryHandler) Handle(ctx context.Context, query Query) (Result, error) {
	activity, err := h.ledger.PatronActivity(ctx, query.PatronID)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Loans: make([]circulation.Loan, 0, len(activity.Loans)),
		Holds: make([]circulation.Hold, 0, len(activity.Holds)),
	}

	for _, poolID := range activity.PoolIDs() {
		err := h.ledger.WithPoolLock(ctx, poolID, query.PatronID,
			func(ctx context.Context, state *circulation.PoolState) (bool, error) {
				return h.syncPool(ctx, state, query, &result)
			},
		)
		if err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

func (h QueryHandler) syncPool(
	ctx context.Context,
	state *circulation.PoolState,
	query Query,
	result *Result,
) (bool, error) {

	now := h.clock.Now()

	if query.Refresh && !h.refreshLoan(ctx, state, query.PatronID, now) {
		result.RefreshFailures++
	}

	if _, err := core.RebalanceAndVerify(state, now, h.settings.ReservationPeriod); err != nil {
		return false, err
	}

	if hold, found := state.HoldFor(query.PatronID); found && !state.Pool.BypassesLicensing() {
		hold = holdqueue.UpdateHold(state, hold, now, h.settings.LoanDuration, h.settings.ReservationPeriod)
		state.UpdateHold(hold)
		result.Holds = append(result.Holds, hold)
	}

	if loan, found := state.LoanFor(query.PatronID); found && loan.IsActive(now) {
		result.Loans = append(result.Loans, loan)
	}

	return true, nil
}

// refreshLoan applies the distributor's status to the patron's license-backed loan.
// It reports false when the status could not be fetched or applied.
func (h QueryHandler) refreshLoan(ctx context.Context, state *circulation.PoolState, patronID uuid.UUID, now time.Time) bool {
	loan, found := state.LoanFor(patronID)
	if !found || loan.LicenseID == nil || state.Pool.BypassesLicensing() || !loan.IsActive(now) {
		return true
	}

	document, err := h.client.Status(ctx, loan.ExternalIdentifier)
	if err == nil {
		_, err = core.ApplyLoanStatus(state, loan.ID, document)
	}

	if err != nil {
		h.logRefreshFailed(ctx, loan.ID, err)
		return false
	}

	return true
}

func (h QueryHandler) logRefreshFailed(ctx context.Context, loanID uuid.UUID, err error) {
	args := []any{logAttrLoanID, loanID.String(), logAttrError, err.Error()}

	if h.contextualLogger != nil {
		h.contextualLogger.WarnContext(ctx, logMsgRefreshFailed, args...)
	} else if h.logger != nil {
		h.logger.Warn(logMsgRefreshFailed, args...)
	}
}
