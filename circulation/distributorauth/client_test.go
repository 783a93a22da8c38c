package distributorauth_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/distributorauth"
	"github.com/jonathangreen/circulation/testutil/distributor"
	"github.com/jonathangreen/circulation/testutil/observability/testdoubles"
)

const (
	username        = "username"
	password        = "password"
	grantedToken    = "token"
	authDocMimeType = "application/vnd.opds.authentication.v1.0+json"
)

var now = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

type oauthFixture struct {
	server    *distributor.Server
	feedURL   string
	authURL   string
	targetURL string
	cache     *distributorauth.TokenCache
}

func newOAuthFixture(t *testing.T) *oauthFixture {
	server := distributor.NewServer(t)

	return &oauthFixture{
		server:    server,
		feedURL:   server.Link("/feed"),
		authURL:   server.Link("/authenticate"),
		targetURL: server.Link("/123"),
		cache:     distributorauth.NewTokenCache(),
	}
}

func (f *oauthFixture) client(t *testing.T, options ...distributorauth.Option) *distributorauth.Client {
	options = append([]distributorauth.Option{
		distributorauth.WithCredentials(username, password),
		distributorauth.WithFeedURL(f.feedURL),
		distributorauth.WithTokenCache(f.cache),
		distributorauth.WithClock(circulation.NewFixedClock(now)),
	}, options...)

	client, err := distributorauth.NewClient(http.DefaultClient, distributorauth.AuthOAuth, options...)
	require.NoError(t, err)

	return client
}

// initialize stores a known authenticate URL and a cached token, as if a previous request had refreshed it.
func (f *oauthFixture) initialize(expired bool) {
	expiresAt := now.Add(time.Hour)
	if expired {
		expiresAt = now.Add(-time.Second)
	}

	f.cache.StoreTokenURL(f.authURL)
	f.cache.Store(distributorauth.Token{AccessToken: grantedToken, ExpiresAt: expiresAt})
}

func (f *oauthFixture) queue(t *testing.T, names ...string) {
	for _, name := range names {
		switch name {
		case "auth_document_401":
			f.server.Queue(http.StatusUnauthorized, `{
				"id": "http://example.com/auth",
				"title": "Authentication Document",
				"authentication": [{
					"type": "http://opds-spec.org/auth/oauth/client_credentials",
					"links": [{"rel": "authenticate", "href": "`+f.authURL+`"}]
				}]
			}`, "Content-Type", authDocMimeType)
		case "other_401":
			f.server.Queue(http.StatusUnauthorized, "Unauthorized", "Content-Type", "text/plain")
		case "token_grant":
			f.server.Queue(http.StatusOK, `{"access_token": "`+grantedToken+`", "token_type": "Bearer", "expires_in": 3600}`)
		case "data":
			f.server.Queue(http.StatusOK, "Data")
		default:
			t.Fatalf("unknown response %q", name)
		}
	}
}

func (f *oauthFixture) get(t *testing.T) *http.Request {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, f.targetURL, nil)
	require.NoError(t, err)
	req.Header.Set("header", "value")

	return req
}

type expectedCall struct {
	method        string
	path          string
	authorization string
}

func (f *oauthFixture) assertCalls(t *testing.T, expected ...string) {
	calls := map[string]expectedCall{
		"feed_url_no_auth":   {method: http.MethodGet, path: "/feed"},
		"token_grant":        {method: http.MethodPost, path: "/authenticate", authorization: basicAuth(username, password)},
		"request_with_token": {method: http.MethodGet, path: "/123", authorization: "Bearer " + grantedToken},
	}

	requests := f.server.Requests()
	require.Len(t, requests, len(expected))

	for i, name := range expected {
		call := calls[name]
		assert.Equal(t, call.method, requests[i].Method, name)
		assert.Equal(t, call.path, requests[i].Path, name)
		assert.Equal(t, call.authorization, requests[i].Header.Get("Authorization"), name)

		switch name {
		case "token_grant":
			assert.Equal(t, "application/x-www-form-urlencoded", requests[i].Header.Get("Content-Type"))
			assert.Equal(t, "grant_type=client_credentials", requests[i].Body)
		case "request_with_token":
			assert.Equal(t, "value", requests[i].Header.Get("header"))
		}
	}
}

func Test_Client_OAuth_Flows(t *testing.T) {
	testCases := []struct {
		name           string
		responses      []string
		calls          []string
		initialized    bool
		expired        bool
		expectedStatus int
	}{
		{
			name:           "first request does a full token refresh",
			responses:      []string{"auth_document_401", "token_grant", "data"},
			calls:          []string{"feed_url_no_auth", "token_grant", "request_with_token"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "initialized token is used directly",
			responses:      []string{"data"},
			calls:          []string{"request_with_token"},
			initialized:    true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "expired token is refreshed with the known url",
			responses:      []string{"token_grant", "data"},
			calls:          []string{"token_grant", "request_with_token"},
			initialized:    true,
			expired:        true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "401 after a fresh token is returned without another refresh",
			responses:      []string{"token_grant", "other_401"},
			calls:          []string{"token_grant", "request_with_token"},
			initialized:    true,
			expired:        true,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unexpected 401 refreshes once and retries",
			responses:      []string{"auth_document_401", "token_grant", "data"},
			calls:          []string{"request_with_token", "token_grant", "request_with_token"},
			initialized:    true,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			fixture := newOAuthFixture(t)
			if tc.initialized {
				fixture.initialize(tc.expired)
			}
			fixture.queue(t, tc.responses...)
			client := fixture.client(t)

			// act
			response, err := client.Do(fixture.get(t))

			// assert
			require.NoError(t, err)
			defer response.Body.Close()
			assert.Equal(t, tc.expectedStatus, response.StatusCode)
			fixture.assertCalls(t, tc.calls...)
			assert.Zero(t, fixture.server.Pending())
		})
	}
}

func Test_Client_OAuth_FirstRequestReturnsFinalResponse(t *testing.T) {
	// arrange
	fixture := newOAuthFixture(t)
	fixture.queue(t, "auth_document_401", "token_grant", "data")
	client := fixture.client(t)

	// act
	response, err := client.Do(fixture.get(t))

	// assert
	require.NoError(t, err)
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Equal(t, "Data", string(body))

	token, found := fixture.cache.Token()
	require.True(t, found)
	assert.Equal(t, grantedToken, token.AccessToken)
	assert.Equal(t, now.Add(time.Hour), token.ExpiresAt)
	assert.Equal(t, fixture.authURL, fixture.cache.TokenURL())
}

func Test_Client_OAuth_FailedAuthDocumentRequest(t *testing.T) {
	// arrange
	fixture := newOAuthFixture(t)
	fixture.queue(t, "other_401")
	client := fixture.client(t)

	// act
	_, err := client.Do(fixture.get(t))

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, distributorauth.ErrAuthDocumentUnavailable)
	assert.ErrorIs(t, err, circulation.ErrIntegrationMisconfigured)
	assert.Contains(t, err.Error(), "Unable to fetch OPDS authentication document")
	fixture.assertCalls(t, "feed_url_no_auth")
}

func Test_Client_OAuth_DiscoversThroughTargetWithoutFeedURL(t *testing.T) {
	// arrange
	fixture := newOAuthFixture(t)
	fixture.queue(t, "auth_document_401", "token_grant", "data")
	client := fixture.client(t, distributorauth.WithFeedURL(""))

	// act
	response, err := client.Do(fixture.get(t))

	// assert
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)

	requests := fixture.server.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, "/123", requests[0].Path)
	assert.Empty(t, requests[0].Header.Get("Authorization"))
}

func Test_Client_Request_AllowedResponseCodes(t *testing.T) {
	// arrange
	fixture := newOAuthFixture(t)
	fixture.initialize(false)
	fixture.queue(t, "auth_document_401", "token_grant", "other_401")
	client := fixture.client(t)

	// act
	_, err := client.Request(fixture.get(t), circulation.SuccessOnly)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, distributorauth.ErrDisallowedStatus)
	assert.Equal(t, "Got status code 401 from external server, but can only continue on: 2xx.", err.Error())
	fixture.assertCalls(t, "request_with_token", "token_grant", "request_with_token")
}

func Test_Client_OAuth_RetriesRequestBody(t *testing.T) {
	// arrange
	fixture := newOAuthFixture(t)
	fixture.initialize(false)
	fixture.queue(t, "other_401", "token_grant", "data")
	client := fixture.client(t)

	req, err := http.NewRequestWithContext(
		context.Background(), http.MethodPost, fixture.targetURL, io.NopCloser(strings.NewReader("payload")),
	)
	require.NoError(t, err)

	// act
	response, err := client.Do(req)

	// assert
	require.NoError(t, err)
	defer response.Body.Close()

	requests := fixture.server.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, "payload", requests[0].Body)
	assert.Equal(t, "payload", requests[2].Body)
}

func Test_Client_BasicAndNone(t *testing.T) {
	testCases := []struct {
		name                  string
		authType              distributorauth.AuthType
		expectedAuthorization string
	}{
		{name: "basic", authType: distributorauth.AuthBasic, expectedAuthorization: basicAuth(username, password)},
		{name: "none", authType: distributorauth.AuthNone, expectedAuthorization: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			server := distributor.NewServer(t)
			server.Queue(http.StatusOK, "Data")

			client, err := distributorauth.NewClient(
				http.DefaultClient, tc.authType, distributorauth.WithCredentials(username, password),
			)
			require.NoError(t, err)

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.Link("/123"), nil)
			require.NoError(t, err)

			// act
			response, err := client.Do(req)

			// assert
			require.NoError(t, err)
			defer response.Body.Close()
			requests := server.Requests()
			require.Len(t, requests, 1)
			assert.Equal(t, tc.expectedAuthorization, requests[0].Header.Get("Authorization"))
		})
	}
}

func Test_NewClient_Validation(t *testing.T) {
	t.Run("unknown auth type", func(t *testing.T) {
		// act
		_, err := distributorauth.NewClient(http.DefaultClient, distributorauth.AuthType("invalid"))

		// assert
		assert.ErrorIs(t, err, distributorauth.ErrInvalidAuthType)
		assert.ErrorIs(t, err, circulation.ErrIntegrationMisconfigured)
	})

	t.Run("oauth without credentials", func(t *testing.T) {
		// act
		_, err := distributorauth.NewClient(http.DefaultClient, distributorauth.AuthOAuth)

		// assert
		assert.ErrorIs(t, err, distributorauth.ErrMissingCredentials)
	})
}

func Test_Client_SessionToken(t *testing.T) {
	t.Run("refreshes a missing token", func(t *testing.T) {
		// arrange
		fixture := newOAuthFixture(t)
		fixture.queue(t, "auth_document_401", "token_grant")

		metrics := testdoubles.NewMetricsCollectorSpy()
		logHandler := testdoubles.NewLogHandlerSpy(false)
		client := fixture.client(t, distributorauth.WithMetrics(metrics), distributorauth.WithLogger(slog.New(logHandler)))

		// act
		token, err := client.SessionToken(context.Background())

		// assert
		require.NoError(t, err)
		assert.Equal(t, grantedToken, token.AccessToken)
		fixture.assertCalls(t, "feed_url_no_auth", "token_grant")
		assert.True(t, metrics.HasCounter("distributor_token_refreshes_total", map[string]string{"reason": "missing", "status": "success"}))
		assert.True(t, logHandler.HasInfoLog("distributor token refreshed").WithAttr("reason", "missing").Assert())
	})

	t.Run("invalidate forces a refresh with the known url", func(t *testing.T) {
		// arrange
		fixture := newOAuthFixture(t)
		fixture.initialize(false)
		fixture.queue(t, "token_grant")
		client := fixture.client(t)

		// act
		client.Invalidate()
		_, err := client.SessionToken(context.Background())

		// assert
		require.NoError(t, err)
		fixture.assertCalls(t, "token_grant")
	})

	t.Run("not available without oauth", func(t *testing.T) {
		// arrange
		client, err := distributorauth.NewClient(http.DefaultClient, distributorauth.AuthNone)
		require.NoError(t, err)

		// act
		_, err = client.SessionToken(context.Background())

		// assert
		assert.ErrorIs(t, err, distributorauth.ErrNoSessionToken)
	})
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
