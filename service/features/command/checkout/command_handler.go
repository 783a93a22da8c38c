package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
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
	Checkout(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
	LicenseDocument(ctx context.Context, url string) (loanstatus.LicenseDocument, error)
}

// CommandHandler orchestrates a checkout: Lock -> Rebalance -> Decide -> Remote checkout -> Apply -> Rebalance -> Commit.
// The distributor call runs while the pool lock is held so two checkouts cannot lend the same slot.
// External wrappers handle all observability concerns.
type CommandHandler struct {
	ledger   Ledger
	client   LoanStatusClient
	settings circulation.CollectionSettings
	clock    circulation.Clock
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithClock sets the clock used for loan start, end and reservation deadlines.
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

// Handle executes the checkout. Business rule violations leave the ledger untouched, with one exception:
// when the distributor reports the chosen license unavailable, the license is zeroed locally and the
// repair is committed before NoAvailableCopies is returned.
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

	now := h.clock.Now()

	refreshed, err := core.RebalanceAndVerify(state, now, h.settings.ReservationPeriod)
	if err != nil {
		return Result{}, false, err
	}

	decision := Decide(state, command, h.settings, now)
	if err := decision.HasError(); err != nil {
		return rejected(refreshed, err)
	}

	plan := decision.Plan

	if plan.EndedLoanID != nil {
		state.RemoveLoan(*plan.EndedLoanID)
	}

	if plan.Bypass {
		loan := circulation.Loan{
			ID:       uuid.New(),
			PatronID: command.PatronID,
			PoolID:   command.PoolID,
			Start:    now,
		}
		state.AddLoan(loan)

		return Result{HandlerResult: shell.NewSuccessResult(nil), Loan: loan}, true, nil
	}

	license, _ := state.LicenseByID(plan.LicenseID)
	chosen := *license

	loanID := uuid.New()
	expires := now.Add(h.settings.LoanDuration)

	checkoutURL, err := expandCheckoutURL(checkoutRequest{
		license:    chosen,
		loanID:     loanID,
		expires:    expires,
		passphrase: command.Passphrase,
	}, h.settings)
	if err != nil {
		return rejected(refreshed, errors.Join(circulation.ErrCannotLoan, err))
	}

	document, err := h.client.Checkout(ctx, checkoutURL)
	if err != nil {
		if loanstatus.IsCheckoutUnavailable(err) {
			return h.repairUnavailableLicense(state, chosen.ID, refreshed, now, err)
		}

		return rejected(refreshed, err)
	}

	if document.Status != loanstatus.StatusReady && document.Status != loanstatus.StatusActive {
		return rejected(refreshed, errors.Join(circulation.ErrCannotLoan, unexpectedStatusError(document.Status)))
	}

	externalIdentifier, err := h.externalIdentifier(ctx, document)
	if err != nil {
		return rejected(refreshed, errors.Join(circulation.ErrCannotLoan, err))
	}

	if plan.HoldID != nil {
		state.RemoveHold(*plan.HoldID)
	}

	end := expires
	if documentEnd := document.End(); documentEnd != nil {
		end = *documentEnd
	}

	licenseID := chosen.ID
	loan := circulation.Loan{
		ID:                 loanID,
		PatronID:           command.PatronID,
		PoolID:             command.PoolID,
		LicenseID:          &licenseID,
		Start:              now,
		End:                &end,
		ExternalIdentifier: externalIdentifier,
	}
	state.AddLoan(loan)

	summary, err := core.RebalanceAndVerify(state, now, h.settings.ReservationPeriod)
	if err != nil {
		return Result{}, false, err
	}

	summary = refreshed.Merge(summary)

	return Result{HandlerResult: shell.NewSuccessResult(&summary), Loan: loan}, true, nil
}

// rejected keeps the rebalance that ran before the decision when it corrected the pool,
// so expired reservations are not left locking slots after a failed checkout.
func rejected(refreshed holdqueue.Summary, err error) (Result, bool, error) {
	if !refreshed.Changed {
		return Result{}, false, err
	}

	return Result{HandlerResult: shell.NewRepairResult(&refreshed)}, true, err
}

// repairUnavailableLicense zeroes the license the distributor refused to lend from and rebalances,
// so the pool stops advertising the slot.
func (h CommandHandler) repairUnavailableLicense(
	state *circulation.PoolState,
	licenseID uuid.UUID,
	refreshed holdqueue.Summary,
	now time.Time,
	cause error,
) (Result, bool, error) {

	state.MarkLicenseUnavailable(licenseID)

	summary, err := core.RebalanceAndVerify(state, now, h.settings.ReservationPeriod)
	if err != nil {
		return Result{}, false, err
	}

	summary = refreshed.Merge(summary)

	return Result{HandlerResult: shell.NewRepairResult(&summary)}, true, errors.Join(circulation.ErrNoAvailableCopies, cause)
}

// externalIdentifier is the self link of the status document, or the status link of the license
// document when the status document has no self link.
func (h CommandHandler) externalIdentifier(ctx context.Context, document loanstatus.LoanStatusDocument) (string, error) {
	if self, found := document.Links.Get(loanstatus.RelSelf, ""); found && self.Href != "" {
		return self.Href, nil
	}

	licenseLink, found := document.Links.Get(loanstatus.RelLicense, "")
	if !found || licenseLink.Href == "" {
		return "", ErrNoLoanIdentifier
	}

	licenseDocument, err := h.client.LicenseDocument(ctx, licenseLink.Href)
	if err != nil {
		return "", errors.Join(ErrNoLoanIdentifier, err)
	}

	statusLink, found := licenseDocument.Links.Get(loanstatus.RelStatus, "")
	if !found || statusLink.Href == "" {
		return "", ErrNoLoanIdentifier
	}

	return statusLink.Href, nil
}
