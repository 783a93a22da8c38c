package checkin_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/circulation/memengine"
	"github.com/jonathangreen/circulation/service/features/command/checkin"
	"github.com/jonathangreen/circulation/testutil/distributor"
	"github.com/jonathangreen/circulation/testutil/fixtures"
	"github.com/jonathangreen/circulation/testutil/observability/testdoubles"
)

func Test_CommandHandler_Handle_Success_PromotesWaitingHold(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	pool, license := seedPool(t, ledger, 1)

	borrower := uuid.New()
	waiting := uuid.New()
	statusURL := server.Link("/loans/1/status")

	fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
		state.AddLoan(fixtures.ActiveLoan(borrower, license, fixtures.Now.Add(7*fixtures.Day), statusURL))
		state.AddHold(fixtures.QueuedHold(waiting, pool.ID, fixtures.Now.Add(-time.Hour), 1))
		state.Pool.LicensesAvailable = 0
		state.Pool.PatronsInHoldQueue = 1
	})

	server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusActive,
		Links:  loanstatus.Links{{Rel: loanstatus.RelReturn, Href: server.Link("/loans/1/return")}},
	})
	server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusReturned,
	})

	// act
	result, err := handler.Handle(context.Background(), checkin.BuildCommand(borrower, pool.ID))

	// assert
	require.NoError(t, err)
	assert.False(t, result.Idempotent)
	require.NotNil(t, result.Rebalance)
	assert.Equal(t, 1, result.Rebalance.Promoted)

	state := fixtures.Inspect(t, ledger, pool.ID, borrower)
	assert.Empty(t, state.Loans)
	assert.Equal(t, 0, state.Pool.LicensesAvailable)
	assert.Equal(t, 1, state.Pool.LicensesReserved)
	assert.Equal(t, 1, state.Pool.PatronsInHoldQueue)

	hold, found := state.HoldFor(waiting)
	require.True(t, found)
	assert.Equal(t, 0, hold.Position)
	require.NotNil(t, hold.End)
	assert.True(t, fixtures.Now.Add(circulation.DefaultReservationPeriod).Equal(*hold.End))

	stored, _ := state.LicenseByID(license.ID)
	assert.Equal(t, 1, stored.CheckoutsAvailable)

	requests := server.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodGet, requests[0].Method)
	assert.Equal(t, "/loans/1/status", requests[0].Path)
	assert.Equal(t, http.MethodPut, requests[1].Method)
	assert.Equal(t, "/loans/1/return", requests[1].Path)
}

func Test_CommandHandler_Handle_Idempotent_RemoteAlreadyRevoked(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	logHandler := testdoubles.NewLogHandlerSpy(false)
	handler := createHandler(t, ledger, server, checkin.WithLogger(slog.New(logHandler)))
	pool, license := seedPool(t, ledger, 2)
	borrower := uuid.New()

	fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
		state.AddLoan(fixtures.ActiveLoan(borrower, license, fixtures.Now.Add(7*fixtures.Day), server.Link("/loans/1/status")))
		state.Pool.LicensesAvailable = 1
	})

	server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusRevoked,
	})

	// act
	result, err := handler.Handle(context.Background(), checkin.BuildCommand(borrower, pool.ID))

	// assert
	require.NoError(t, err)
	assert.True(t, result.Idempotent)
	assert.Len(t, server.Requests(), 1)
	assert.True(t, logHandler.HasLog(slog.LevelWarn, "distributor already closed the loan, removing it locally").
		WithAttr("remote_status", "revoked").Assert())

	state := fixtures.Inspect(t, ledger, pool.ID, borrower)
	assert.Empty(t, state.Loans)
	assert.Equal(t, 2, state.Pool.LicensesAvailable)

	// a second checkin finds nothing to return
	_, err = handler.Handle(context.Background(), checkin.BuildCommand(borrower, pool.ID))
	assert.ErrorIs(t, err, circulation.ErrNotCheckedOut)
	assert.Len(t, server.Requests(), 1)
}

func Test_CommandHandler_Handle_Error_NotCheckedOut(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	pool, _ := seedPool(t, ledger, 1)

	// act
	_, err := handler.Handle(context.Background(), checkin.BuildCommand(uuid.New(), pool.ID))

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotCheckedOut)
	assert.Empty(t, server.Requests())
}

func Test_CommandHandler_Handle_Error_CannotReturn(t *testing.T) {
	testCases := []struct {
		name      string
		responses []loanstatus.LoanStatusDocument
	}{
		{
			name:      "no return link",
			responses: []loanstatus.LoanStatusDocument{{Status: loanstatus.StatusActive}},
		},
		{
			name: "still active after return",
			responses: []loanstatus.LoanStatusDocument{
				{Status: loanstatus.StatusActive, Links: loanstatus.Links{{Rel: loanstatus.RelReturn, Href: "RETURN"}}},
				{Status: loanstatus.StatusActive},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			ledger, server := setupTestEnvironment(t)
			handler := createHandler(t, ledger, server)
			pool, license := seedPool(t, ledger, 1)
			borrower := uuid.New()

			fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
				state.AddLoan(fixtures.ActiveLoan(borrower, license, fixtures.Now.Add(fixtures.Day), server.Link("/loans/1/status")))
				state.Pool.LicensesAvailable = 0
			})

			for _, response := range tc.responses {
				for i := range response.Links {
					response.Links[i].Href = server.Link("/loans/1/return")
				}
				server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, response)
			}

			// act
			_, err := handler.Handle(context.Background(), checkin.BuildCommand(borrower, pool.ID))

			// assert
			assert.ErrorIs(t, err, circulation.ErrCannotReturn)

			state := fixtures.Inspect(t, ledger, pool.ID, borrower)
			assert.Len(t, state.Loans, 1)
			assert.Equal(t, 0, state.Pool.LicensesAvailable)
		})
	}
}

func Test_CommandHandler_Handle_Error_DistributorTimeout(t *testing.T) {
	// arrange
	ledger := newLedger(t)
	client, err := loanstatus.NewClient(timeoutDoer{})
	require.NoError(t, err)
	handler := checkin.NewCommandHandler(ledger, client, fixtures.Settings(), checkin.WithClock(fixtures.Clock(0)))
	pool, license := seedPool(t, ledger, 1)
	borrower := uuid.New()

	fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
		state.AddLoan(fixtures.ActiveLoan(borrower, license, fixtures.Now.Add(fixtures.Day), "https://distributor.test/loans/1/status"))
		state.Pool.LicensesAvailable = 0
	})

	// act
	_, err = handler.Handle(context.Background(), checkin.BuildCommand(borrower, pool.ID))

	// assert
	assert.ErrorIs(t, err, loanstatus.ErrRequestTimedOut)
	assert.Len(t, fixtures.Inspect(t, ledger, pool.ID, borrower).Loans, 1)
}

func Test_CommandHandler_Handle_OpenAccess_SkipsDistributor(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	pool, _ := fixtures.NewPool(uuid.New(), nil, fixtures.OpenAccess())
	fixtures.Seed(t, ledger, pool, nil)
	borrower := uuid.New()

	fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
		state.AddLoan(circulation.Loan{ID: uuid.New(), PatronID: borrower, PoolID: pool.ID, Start: fixtures.Now})
	})

	// act
	result, err := handler.Handle(context.Background(), checkin.BuildCommand(borrower, pool.ID))

	// assert
	require.NoError(t, err)
	assert.Nil(t, result.Rebalance)
	assert.Empty(t, server.Requests())
	assert.Empty(t, fixtures.Inspect(t, ledger, pool.ID, borrower).Loans)
}

// Test helper functions

type timeoutDoer struct{}

func (timeoutDoer) Do(req *http.Request) (*http.Response, error) {
	return nil, context.DeadlineExceeded
}

func newLedger(t *testing.T) *memengine.LedgerStore {
	t.Helper()

	ledger, err := memengine.NewLedgerStore(memengine.WithClock(fixtures.Clock(0)))
	require.NoError(t, err)

	return ledger
}

func setupTestEnvironment(t *testing.T) (*memengine.LedgerStore, *distributor.Server) {
	t.Helper()

	return newLedger(t), distributor.NewServer(t)
}

func createHandler(t *testing.T, ledger checkin.Ledger, server *distributor.Server, opts ...checkin.Option) checkin.CommandHandler {
	t.Helper()

	client, err := loanstatus.NewClient(server.Client())
	require.NoError(t, err)

	return checkin.NewCommandHandler(ledger, client, fixtures.Settings(), append([]checkin.Option{checkin.WithClock(fixtures.Clock(0))}, opts...)...)
}

func seedPool(t *testing.T, ledger circulation.Ledger, concurrency int) (circulation.LicensePool, circulation.License) {
	t.Helper()

	pool, licenses := fixtures.NewPool(uuid.New(), []circulation.License{
		fixtures.NewLicense("https://distributor.test/checkout", concurrency),
	})
	fixtures.Seed(t, ledger, pool, licenses)

	return pool, licenses[0]
}
