package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/features/command/checkin"
	"github.com/jonathangreen/circulation/service/features/command/checkout"
	"github.com/jonathangreen/circulation/service/features/command/fulfill"
	"github.com/jonathangreen/circulation/service/features/command/placehold"
	"github.com/jonathangreen/circulation/service/features/command/releasehold"
	"github.com/jonathangreen/circulation/service/features/command/updateloan"
	"github.com/jonathangreen/circulation/service/features/query/patronactivity"
	"github.com/jonathangreen/circulation/service/shared/shell"
	"github.com/jonathangreen/circulation/service/shared/shell/observable"
)

// LoanStatusClient is the distributor protocol every handler together needs.
type LoanStatusClient interface {
	Status(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
	Checkout(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
	Return(ctx context.Context, url string) (loanstatus.LoanStatusDocument, error)
	LicenseDocument(ctx context.Context, url string) (loanstatus.LicenseDocument, error)
}

// Coordinator is the entry point for circulation operations of one collection.
// Every operation runs through its feature handler wrapped with the configured observability.
type Coordinator struct {
	ledger   circulation.Ledger
	client   LoanStatusClient
	settings circulation.CollectionSettings

	clock            circulation.Clock
	tokens           fulfill.SessionTokenSource
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector

	checkout    *observable.CommandWrapper[checkout.Command, checkout.Result]
	checkin     *observable.CommandWrapper[checkin.Command, checkin.Result]
	fulfill     *observable.CommandWrapper[fulfill.Command, fulfill.Result]
	placeHold   *observable.CommandWrapper[placehold.Command, placehold.Result]
	releaseHold *observable.CommandWrapper[releasehold.Command, releasehold.Result]
	updateLoan  *observable.CommandWrapper[updateloan.Command, updateloan.Result]
	activity    *observable.QueryWrapper[patronactivity.Query, patronactivity.Result]
}

// NewCoordinator validates the collection settings and wires every handler.
func NewCoordinator(
	ledger circulation.Ledger,
	client LoanStatusClient,
	settings circulation.CollectionSettings,
	options ...Option,
) (*Coordinator, error) {

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		ledger:   ledger,
		client:   client,
		settings: settings,
		clock:    circulation.NewSystemClock(),
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	if err := c.wire(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Coordinator) wire() error {
	var err error

	checkoutHandler := checkout.NewCommandHandler(c.ledger, c.client, c.settings, checkout.WithClock(c.clock))
	if c.checkout, err = observable.NewCommandWrapper(shell.CommandHandler[checkout.Command, checkout.Result](checkoutHandler), commandOptions[checkout.Command, checkout.Result](c)...); err != nil {
		return err
	}

	checkinHandler := checkin.NewCommandHandler(c.ledger, c.client, c.settings,
		checkin.WithClock(c.clock),
		checkin.WithLogger(c.logger),
		checkin.WithContextualLogger(c.contextualLogger),
	)
	if c.checkin, err = observable.NewCommandWrapper(shell.CommandHandler[checkin.Command, checkin.Result](checkinHandler), commandOptions[checkin.Command, checkin.Result](c)...); err != nil {
		return err
	}

	fulfillOptions := []fulfill.Option{fulfill.WithClock(c.clock)}
	if c.tokens != nil {
		fulfillOptions = append(fulfillOptions, fulfill.WithSessionTokens(c.tokens))
	}

	fulfillHandler := fulfill.NewCommandHandler(c.ledger, c.client, c.settings, fulfillOptions...)
	if c.fulfill, err = observable.NewCommandWrapper(shell.CommandHandler[fulfill.Command, fulfill.Result](fulfillHandler), commandOptions[fulfill.Command, fulfill.Result](c)...); err != nil {
		return err
	}

	placeHoldHandler := placehold.NewCommandHandler(c.ledger, c.settings, placehold.WithClock(c.clock))
	if c.placeHold, err = observable.NewCommandWrapper(shell.CommandHandler[placehold.Command, placehold.Result](placeHoldHandler), commandOptions[placehold.Command, placehold.Result](c)...); err != nil {
		return err
	}

	releaseHoldHandler := releasehold.NewCommandHandler(c.ledger, c.settings, releasehold.WithClock(c.clock))
	if c.releaseHold, err = observable.NewCommandWrapper(shell.CommandHandler[releasehold.Command, releasehold.Result](releaseHoldHandler), commandOptions[releasehold.Command, releasehold.Result](c)...); err != nil {
		return err
	}

	updateLoanHandler := updateloan.NewCommandHandler(c.ledger, c.client, c.settings, updateloan.WithClock(c.clock))
	if c.updateLoan, err = observable.NewCommandWrapper(shell.CommandHandler[updateloan.Command, updateloan.Result](updateLoanHandler), commandOptions[updateloan.Command, updateloan.Result](c)...); err != nil {
		return err
	}

	activityHandler := patronactivity.NewQueryHandler(c.ledger, c.client, c.settings,
		patronactivity.WithClock(c.clock),
		patronactivity.WithLogger(c.logger),
		patronactivity.WithContextualLogger(c.contextualLogger),
	)
	if c.activity, err = observable.NewQueryWrapper(shell.QueryHandler[patronactivity.Query, patronactivity.Result](activityHandler), queryOptions[patronactivity.Query, patronactivity.Result](c)...); err != nil {
		return err
	}

	return nil
}

// Checkout lends a copy of the pool's title to the patron.
func (c *Coordinator) Checkout(ctx context.Context, patronID, poolID uuid.UUID, passphrase string) (checkout.Result, error) {
	return c.checkout.Handle(ctx, checkout.BuildCommand(patronID, poolID, passphrase))
}

// Checkin returns the patron's loan on the pool.
func (c *Coordinator) Checkin(ctx context.Context, patronID, poolID uuid.UUID) (checkin.Result, error) {
	return c.checkin.Handle(ctx, checkin.BuildCommand(patronID, poolID))
}

// Fulfill hands out the content of the patron's loan in the requested delivery mechanism.
func (c *Coordinator) Fulfill(
	ctx context.Context,
	patronID, poolID uuid.UUID,
	mechanism circulation.DeliveryMechanism,
) (fulfill.Result, error) {

	return c.fulfill.Handle(ctx, fulfill.BuildCommand(patronID, poolID, mechanism))
}

// PlaceHold queues the patron for the pool's title.
func (c *Coordinator) PlaceHold(ctx context.Context, patronID, poolID uuid.UUID) (placehold.Result, error) {
	return c.placeHold.Handle(ctx, placehold.BuildCommand(patronID, poolID))
}

// ReleaseHold removes the patron from the pool's hold queue.
func (c *Coordinator) ReleaseHold(ctx context.Context, patronID, poolID uuid.UUID) (releasehold.Result, error) {
	return c.releaseHold.Handle(ctx, releasehold.BuildCommand(patronID, poolID))
}

// UpdateLoan reconciles a loan with a pushed status document, or with a fetched one when document is nil.
func (c *Coordinator) UpdateLoan(
	ctx context.Context,
	loanID uuid.UUID,
	document *loanstatus.LoanStatusDocument,
) (updateloan.Result, error) {

	return c.updateLoan.Handle(ctx, updateloan.BuildCommand(loanID, document))
}

// PatronActivity lists the patron's active loans and holds, refreshing loans from the distributor on request.
func (c *Coordinator) PatronActivity(ctx context.Context, patronID uuid.UUID, refresh bool) (patronactivity.Result, error) {
	return c.activity.Handle(ctx, patronactivity.BuildQuery(patronID, refresh))
}

// LoanByID looks up a loan, for example to validate a notification before applying it.
func (c *Coordinator) LoanByID(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	return c.ledger.LoanByID(ctx, loanID)
}

// Settings returns the collection settings the Coordinator runs with.
func (c *Coordinator) Settings() circulation.CollectionSettings {
	return c.settings
}

func commandOptions[C shell.Command, R shell.Result](c *Coordinator) []observable.CommandOption[C, R] {
	var opts []observable.CommandOption[C, R]

	if c.metricsCollector != nil {
		opts = append(opts, observable.WithCommandMetrics[C, R](c.metricsCollector))
	}

	if c.tracingCollector != nil {
		opts = append(opts, observable.WithCommandTracing[C, R](c.tracingCollector))
	}

	if c.contextualLogger != nil {
		opts = append(opts, observable.WithCommandContextualLogging[C, R](c.contextualLogger))
	}

	if c.logger != nil {
		opts = append(opts, observable.WithCommandLogging[C, R](c.logger))
	}

	return opts
}

func queryOptions[Q shell.Query, R any](c *Coordinator) []observable.QueryOption[Q, R] {
	var opts []observable.QueryOption[Q, R]

	if c.metricsCollector != nil {
		opts = append(opts, observable.WithQueryMetrics[Q, R](c.metricsCollector))
	}

	if c.tracingCollector != nil {
		opts = append(opts, observable.WithQueryTracing[Q, R](c.tracingCollector))
	}

	if c.contextualLogger != nil {
		opts = append(opts, observable.WithQueryContextualLogging[Q, R](c.contextualLogger))
	}

	if c.logger != nil {
		opts = append(opts, observable.WithQueryLogging[Q, R](c.logger))
	}

	return opts
}
