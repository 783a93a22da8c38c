package fulfill_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/distributorauth"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/circulation/memengine"
	"github.com/jonathangreen/circulation/service/features/command/fulfill"
	"github.com/jonathangreen/circulation/testutil/distributor"
	"github.com/jonathangreen/circulation/testutil/fixtures"
)

func Test_CommandHandler_Handle_Success_LCP(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	pool, license := seedPool(t, ledger, 1)
	patronID := uuid.New()
	seedLoan(t, ledger, server, pool, license, patronID)

	server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{
		Status: loanstatus.StatusActive,
		Links:  loanstatus.Links{{Rel: loanstatus.RelLicense, Href: "http://lcp", Type: circulation.MediaTypeLCPLicense}},
	})

	// act
	result, err := handler.Handle(context.Background(), fulfill.BuildCommand(patronID, pool.ID, circulation.DeliveryMechanism{
		ContentType: circulation.MediaTypeEPUB,
		DRMScheme:   circulation.LCPDRM,
	}))

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.FetchFulfillment, result.Fulfillment.Kind)
	assert.Equal(t, "http://lcp", result.Fulfillment.ContentLink)
	assert.Equal(t, circulation.MediaTypeLCPLicense, result.Fulfillment.ContentType)

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/loans/1/status", requests[0].Path)
}

func Test_CommandHandler_Handle_CannotFulfill(t *testing.T) {
	testCases := []struct {
		name              string
		status            loanstatus.Status
		expectedRemoved   bool
		expectedAvailable int
	}{
		{name: "revoked", status: loanstatus.StatusRevoked, expectedRemoved: true, expectedAvailable: 7},
		{name: "cancelled", status: loanstatus.StatusCancelled, expectedRemoved: true, expectedAvailable: 7},
		{name: "missing link", status: loanstatus.StatusActive, expectedAvailable: 6},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			ledger, server := setupTestEnvironment(t)
			handler := createHandler(t, ledger, server)
			pool, license := seedPool(t, ledger, 7)
			patronID := uuid.New()
			seedLoan(t, ledger, server, pool, license, patronID)

			server.QueueJSON(t, http.StatusOK, circulation.MediaTypeLoanStatusDocument, loanstatus.LoanStatusDocument{Status: tc.status})

			// act
			result, err := handler.Handle(context.Background(), fulfill.BuildCommand(patronID, pool.ID, circulation.DeliveryMechanism{
				DRMScheme: circulation.AdobeDRM,
			}))

			// assert
			assert.ErrorIs(t, err, circulation.ErrCannotFulfill)
			assert.Equal(t, tc.expectedRemoved, result.Repaired)

			state := fixtures.Inspect(t, ledger, pool.ID, patronID)
			assert.Equal(t, tc.expectedAvailable, state.Pool.LicensesAvailable)
			_, found := state.LoanFor(patronID)
			assert.Equal(t, !tc.expectedRemoved, found)
		})
	}
}

func Test_CommandHandler_Handle_Error_NotCheckedOut(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	pool, _ := seedPool(t, ledger, 1)

	// act
	_, err := handler.Handle(context.Background(), fulfill.BuildCommand(uuid.New(), pool.ID, circulation.DeliveryMechanism{}))

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotCheckedOut)
	assert.Empty(t, server.Requests())
}

func Test_CommandHandler_Handle_OpenAccess_Redirects(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	patronID := uuid.New()
	pool := seedBypassPool(t, ledger, patronID, fixtures.OpenAccess())

	mechanism := circulation.DeliveryMechanism{ContentType: circulation.MediaTypeEPUB, ResourceURL: "https://books.test/1.epub"}

	// act
	result, err := handler.Handle(context.Background(), fulfill.BuildCommand(patronID, pool.ID, mechanism))

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RedirectFulfillment, result.Fulfillment.Kind)
	assert.Equal(t, mechanism.ResourceURL, result.Fulfillment.ContentLink)
	assert.Equal(t, circulation.MediaTypeEPUB, result.Fulfillment.ContentType)
	assert.Empty(t, server.Requests())

	_, err = handler.Handle(context.Background(), fulfill.BuildCommand(patronID, pool.ID, circulation.DeliveryMechanism{}))
	assert.ErrorIs(t, err, circulation.ErrCannotFulfill)
}

func Test_CommandHandler_Handle_BearerToken_ReusesSessionToken(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)

	cache := distributorauth.NewTokenCache()
	cache.StoreTokenURL(server.Link("/authenticate"))
	auth, err := distributorauth.NewClient(server.Client(), distributorauth.AuthOAuth,
		distributorauth.WithCredentials("username", "password"),
		distributorauth.WithTokenCache(cache),
		distributorauth.WithClock(fixtures.Clock(0)),
	)
	require.NoError(t, err)

	handler := createHandler(t, ledger, server, fulfill.WithSessionTokens(auth))
	patronID := uuid.New()
	pool := seedBypassPool(t, ledger, patronID, fixtures.UnlimitedAccess())

	server.Queue(http.StatusOK, `{"access_token": "session", "token_type": "Bearer", "expires_in": 3600}`)

	command := fulfill.BuildCommand(patronID, pool.ID, circulation.DeliveryMechanism{
		ContentType: circulation.MediaTypeEPUB,
		DRMScheme:   circulation.BearerTokenDRM,
		ResourceURL: "https://books.test/1.epub",
	})

	// act
	first, err := handler.Handle(context.Background(), command)
	require.NoError(t, err)
	second, err := handler.Handle(context.Background(), command)
	require.NoError(t, err)

	// assert
	assert.Equal(t, circulation.DirectFulfillment, first.Fulfillment.Kind)
	assert.Equal(t, circulation.MediaTypeBearerTokenDocument, first.Fulfillment.ContentType)
	assert.JSONEq(t,
		`{"access_token": "session", "expires_in": 3600, "token_type": "Bearer", "location": "https://books.test/1.epub"}`,
		string(first.Fulfillment.Content),
	)
	assert.Equal(t, first.Fulfillment.Content, second.Fulfillment.Content)

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/authenticate", requests[0].Path)
}

func Test_CommandHandler_Handle_BearerToken_WithoutTokenSource(t *testing.T) {
	// arrange
	ledger, server := setupTestEnvironment(t)
	handler := createHandler(t, ledger, server)
	patronID := uuid.New()
	pool := seedBypassPool(t, ledger, patronID, fixtures.UnlimitedAccess())

	// act
	_, err := handler.Handle(context.Background(), fulfill.BuildCommand(patronID, pool.ID, circulation.DeliveryMechanism{
		DRMScheme:   circulation.BearerTokenDRM,
		ResourceURL: "https://books.test/1.epub",
	}))

	// assert
	assert.ErrorIs(t, err, circulation.ErrCannotFulfill)
	assert.ErrorIs(t, err, fulfill.ErrUnsupportedMechanism)
}

// Test helper functions

func setupTestEnvironment(t *testing.T) (*memengine.LedgerStore, *distributor.Server) {
	t.Helper()

	ledger, err := memengine.NewLedgerStore(memengine.WithClock(fixtures.Clock(0)))
	require.NoError(t, err)

	return ledger, distributor.NewServer(t)
}

func createHandler(t *testing.T, ledger fulfill.Ledger, server *distributor.Server, opts ...fulfill.Option) fulfill.CommandHandler {
	t.Helper()

	client, err := loanstatus.NewClient(server.Client())
	require.NoError(t, err)

	return fulfill.NewCommandHandler(ledger, client, fixtures.Settings(), append([]fulfill.Option{fulfill.WithClock(fixtures.Clock(0))}, opts...)...)
}

func seedPool(t *testing.T, ledger circulation.Ledger, concurrency int) (circulation.LicensePool, circulation.License) {
	t.Helper()

	pool, licenses := fixtures.NewPool(uuid.New(), []circulation.License{
		fixtures.NewLicense("https://distributor.test/checkout", concurrency),
	})
	fixtures.Seed(t, ledger, pool, licenses)

	return pool, licenses[0]
}

func seedLoan(
	t *testing.T,
	ledger circulation.Ledger,
	server *distributor.Server,
	pool circulation.LicensePool,
	license circulation.License,
	patronID uuid.UUID,
) {
	t.Helper()

	fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
		state.AddLoan(fixtures.ActiveLoan(patronID, license, fixtures.Now.Add(7*fixtures.Day), server.Link("/loans/1/status")))
		state.Pool.LicensesAvailable--
	})
}

func seedBypassPool(t *testing.T, ledger circulation.Ledger, patronID uuid.UUID, option fixtures.PoolOption) circulation.LicensePool {
	t.Helper()

	pool, _ := fixtures.NewPool(uuid.New(), nil, option)
	fixtures.Seed(t, ledger, pool, nil)

	fixtures.Mutate(t, ledger, pool.ID, func(state *circulation.PoolState) {
		state.AddLoan(circulation.Loan{ID: uuid.New(), PatronID: patronID, PoolID: pool.ID, Start: fixtures.Now})
	})

	return pool
}
