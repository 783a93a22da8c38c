package coordinator_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/circulation/memengine"
	"github.com/jonathangreen/circulation/service/coordinator"
	"github.com/jonathangreen/circulation/service/shared/shell"
	"github.com/jonathangreen/circulation/testutil/distributor"
	"github.com/jonathangreen/circulation/testutil/fixtures"
	"github.com/jonathangreen/circulation/testutil/observability/testdoubles"
)

const checkoutTemplate = "/checkout{?id,checkout_id,patron_id,expires,hint,hint_url,notification_url,passphrase}"

func Test_Coordinator_LoanAndHoldLifecycle(t *testing.T) {
	// arrange
	env := setupTestEnvironment(t)
	ctx := context.Background()
	borrower := uuid.New()
	waiting := uuid.New()

	// act & assert: the only copy is lent
	env.queueLoan(t, "/loans/1/status")
	loan, err := env.coordinator.Checkout(ctx, borrower, env.pool.ID, "")
	require.NoError(t, err)
	assert.Equal(t, env.server.Link("/loans/1/status"), loan.Loan.ExternalIdentifier)

	// act & assert: a second patron is turned away, then queues
	_, err = env.coordinator.Checkout(ctx, waiting, env.pool.ID, "")
	assert.ErrorIs(t, err, circulation.ErrNoAvailableCopies)

	hold, err := env.coordinator.PlaceHold(ctx, waiting, env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, hold.Hold.Position)

	// act & assert: the return hands the copy to the waiting patron
	env.server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusActive,
		Links:  loanstatus.Links{{Rel: loanstatus.RelReturn, Href: env.server.Link("/loans/1/return")}},
	})
	env.server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusReturned,
	})

	_, err = env.coordinator.Checkin(ctx, borrower, env.pool.ID)
	require.NoError(t, err)

	activity, err := env.coordinator.PatronActivity(ctx, waiting, false)
	require.NoError(t, err)
	require.Len(t, activity.Holds, 1)
	assert.Equal(t, 0, activity.Holds[0].Position)

	// act & assert: the reservation is claimed
	env.queueLoan(t, "/loans/2/status")
	_, err = env.coordinator.Checkout(ctx, waiting, env.pool.ID, "")
	require.NoError(t, err)

	state := fixtures.Inspect(t, env.ledger, env.pool.ID, waiting)
	assert.Empty(t, state.Holds)
	assert.Len(t, state.Loans, 1)
	assert.Equal(t, 0, state.Pool.LicensesReserved)
	assert.Equal(t, 0, state.Pool.PatronsInHoldQueue)

	// observability
	assert.True(t, env.metrics.HasCounter(shell.CommandHandlerCallsMetric, map[string]string{"command_type": "Checkout", "status": "success"}))
	assert.True(t, env.metrics.HasCounter(shell.CommandHandlerRejectedMetric, map[string]string{"command_type": "Checkout", "error_code": "no_available_copies"}))
	assert.True(t, env.metrics.HasCounter(shell.CommandHandlerCallsMetric, map[string]string{"command_type": "PlaceHold", "status": "success"}))
	assert.True(t, env.metrics.HasCounter(shell.QueryHandlerCallsMetric, map[string]string{"query_type": "PatronActivity", "status": "success"}))
	assert.True(t, env.logs.HasInfoLog(shell.LogMsgHoldQueueRebalanced).WithAttr("command_type", "Checkin").Assert())

	span, found := env.tracing.FinishedSpan(shell.SpanNameCommandHandle)
	require.True(t, found)
	assert.True(t, span.Finished)
}

func Test_Coordinator_UpdateLoan_RevocationFreesCopy(t *testing.T) {
	// arrange
	env := setupTestEnvironment(t)
	ctx := context.Background()
	borrower := uuid.New()

	env.queueLoan(t, "/loans/1/status")
	loan, err := env.coordinator.Checkout(ctx, borrower, env.pool.ID, "")
	require.NoError(t, err)

	document := loanstatus.LoanStatusDocument{Status: loanstatus.StatusRevoked}

	// act
	_, err = env.coordinator.UpdateLoan(ctx, loan.Loan.ID, &document)

	// assert
	require.NoError(t, err)
	state := fixtures.Inspect(t, env.ledger, env.pool.ID, borrower)
	assert.Empty(t, state.Loans)
	assert.Equal(t, 1, state.Pool.LicensesAvailable)

	_, err = env.coordinator.LoanByID(ctx, loan.Loan.ID)
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound)
}

func Test_Coordinator_ReleaseHoldAndFulfill(t *testing.T) {
	// arrange
	env := setupTestEnvironment(t)
	ctx := context.Background()
	borrower := uuid.New()
	waiting := uuid.New()

	env.queueLoan(t, "/loans/1/status")
	_, err := env.coordinator.Checkout(ctx, borrower, env.pool.ID, "")
	require.NoError(t, err)

	_, err = env.coordinator.PlaceHold(ctx, waiting, env.pool.ID)
	require.NoError(t, err)

	env.server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusActive,
		Links:  loanstatus.Links{{Rel: loanstatus.RelLicense, Href: "http://acsm", Type: circulation.MediaTypeAdobeACSM}},
	})

	// act
	fulfilled, fulfillErr := env.coordinator.Fulfill(ctx, borrower, env.pool.ID, circulation.DeliveryMechanism{DRMScheme: circulation.AdobeDRM})
	_, releaseErr := env.coordinator.ReleaseHold(ctx, waiting, env.pool.ID)
	_, secondReleaseErr := env.coordinator.ReleaseHold(ctx, waiting, env.pool.ID)

	// assert
	require.NoError(t, fulfillErr)
	assert.Equal(t, "http://acsm", fulfilled.Fulfillment.ContentLink)
	require.NoError(t, releaseErr)
	assert.ErrorIs(t, secondReleaseErr, circulation.ErrNotOnHold)
	assert.Equal(t, 0, fixtures.Inspect(t, env.ledger, env.pool.ID, waiting).Pool.PatronsInHoldQueue)
}

func Test_NewCoordinator_RejectsInvalidSettings(t *testing.T) {
	// arrange
	ledger, err := memengine.NewLedgerStore(memengine.WithClock(fixtures.Clock(0)))
	require.NoError(t, err)

	settings := fixtures.Settings()
	settings.LibraryShortName = ""

	// act
	_, err = coordinator.NewCoordinator(ledger, nil, settings)

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidCollectionConfig)
}

// Test helper functions

type testEnvironment struct {
	ledger      *memengine.LedgerStore
	server      *distributor.Server
	coordinator *coordinator.Coordinator
	pool        circulation.LicensePool
	metrics     *testdoubles.MetricsCollectorSpy
	tracing     *testdoubles.TracingCollectorSpy
	logs        *testdoubles.LogHandlerSpy
}

func setupTestEnvironment(t *testing.T) testEnvironment {
	t.Helper()

	ledger, err := memengine.NewLedgerStore(memengine.WithClock(fixtures.Clock(0)))
	require.NoError(t, err)

	server := distributor.NewServer(t)

	client, err := loanstatus.NewClient(server.Client())
	require.NoError(t, err)

	pool, licenses := fixtures.NewPool(uuid.New(), []circulation.License{
		fixtures.NewLicense(server.Link(checkoutTemplate), 1),
	})
	fixtures.Seed(t, ledger, pool, licenses)

	metrics := testdoubles.NewMetricsCollectorSpy()
	tracing := testdoubles.NewTracingCollectorSpy()
	logs := testdoubles.NewLogHandlerSpy(false)

	c, err := coordinator.NewCoordinator(ledger, client, fixtures.Settings(),
		coordinator.WithClock(fixtures.Clock(0)),
		coordinator.WithMetrics(metrics),
		coordinator.WithTracing(tracing),
		coordinator.WithLogger(slog.New(logs)),
	)
	require.NoError(t, err)

	return testEnvironment{
		ledger:      ledger,
		server:      server,
		coordinator: c,
		pool:        pool,
		metrics:     metrics,
		tracing:     tracing,
		logs:        logs,
	}
}

func (e testEnvironment) queueLoan(t *testing.T, statusPath string) {
	t.Helper()

	e.server.QueueJSON(t, http.StatusCreated, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusReady,
		Links:  loanstatus.Links{{Rel: loanstatus.RelSelf, Href: e.server.Link(statusPath)}},
	})
}
