package distributorauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	refreshMissing      = "missing"
	refreshExpired      = "expired"
	refreshUnauthorized = "unauthorized"
)

// HTTPDoer sends HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client authenticates requests to a distributor before sending them through an inner HTTPDoer.
type Client struct {
	doer     HTTPDoer
	authType AuthType
	username string
	password string
	feedURL  string
	cache    *TokenCache
	clock    circulation.Clock

	// refreshMu serializes token refreshes so concurrent callers share one grant.
	refreshMu sync.Mutex

	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
}

// NewClient creates a Client for authType. Basic and OAuth modes require WithCredentials.
func NewClient(doer HTTPDoer, authType AuthType, options ...Option) (*Client, error) {
	if !authType.IsValid() {
		return nil, errors.Join(circulation.ErrIntegrationMisconfigured, invalidAuthTypeError(string(authType)))
	}

	client := &Client{
		doer:     doer,
		authType: authType,
		cache:    NewTokenCache(),
		clock:    circulation.NewSystemClock(),
	}

	for _, option := range options {
		if err := option(client); err != nil {
			return nil, err
		}
	}

	if authType != AuthNone && (client.username == "" || client.password == "") {
		return nil, errors.Join(circulation.ErrIntegrationMisconfigured, ErrMissingCredentials)
	}

	return client, nil
}

// AuthType returns the configured authentication mode.
func (c *Client) AuthType() AuthType {
	return c.authType
}

// Do sends req with credentials attached. In OAuth mode a missing or expired token is refreshed first,
// and a 401 answer to a request made with a previously cached token triggers exactly one refresh and retry.
// A 401 after a fresh token is returned to the caller unmodified.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	switch c.authType {
	case AuthNone:
		return c.doer.Do(req)
	case AuthBasic:
		basic := req.Clone(req.Context())
		basic.SetBasicAuth(c.username, c.password)

		return c.doer.Do(basic)
	case AuthOAuth:
		return c.doOAuth(req)
	default:
		return nil, invalidAuthTypeError(string(c.authType))
	}
}

// RoundTrip lets the Client serve as the transport of an *http.Client.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Do(req)
}

// Request sends req like Do, then fails with a *DisallowedStatusError when allowed is not empty
// and the final status is not in it. The body of a rejected response is consumed and closed.
func (c *Client) Request(req *http.Request, allowed circulation.ResponseCodes) (*http.Response, error) {
	response, err := c.Do(req)
	if err != nil {
		return nil, err
	}

	if len(allowed) == 0 || allowed.Allows(response.StatusCode) {
		return response, nil
	}

	body, _ := io.ReadAll(response.Body)
	_ = response.Body.Close()

	return nil, &DisallowedStatusError{StatusCode: response.StatusCode, Allowed: allowed, Body: string(body)}
}

// SessionToken returns a valid OAuth token, refreshing it when needed.
func (c *Client) SessionToken(ctx context.Context) (Token, error) {
	if c.authType != AuthOAuth {
		return Token{}, errors.Join(circulation.ErrIntegrationMisconfigured, ErrNoSessionToken)
	}

	token, _, err := c.validToken(ctx, c.feedURL)

	return token, err
}

// Invalidate drops the cached token so the next request refreshes it.
func (c *Client) Invalidate() {
	c.cache.Invalidate()
}

// Refresh grants a new token, discovering the authenticate URL first when it is not known yet.
func (c *Client) Refresh(ctx context.Context) (Token, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	return c.refresh(ctx, c.feedURL, refreshMissing)
}

func (c *Client) doOAuth(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	token, refreshed, err := c.validToken(ctx, req.URL.String())
	if err != nil {
		return nil, err
	}

	response, err := c.doer.Do(withBearer(req, token))
	if err != nil || response.StatusCode != http.StatusUnauthorized || refreshed {
		return response, err
	}

	drain(response)

	token, err = c.refreshAfterRejection(ctx, req.URL.String(), token)
	if err != nil {
		return nil, err
	}

	return c.doer.Do(withBearer(req, token))
}

// validToken returns the cached token or refreshes it. refreshed is true when a new token was granted.
func (c *Client) validToken(ctx context.Context, targetURL string) (token Token, refreshed bool, err error) {
	if token, found := c.cache.Valid(c.clock.Now()); found {
		return token, false, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if token, found := c.cache.Valid(c.clock.Now()); found {
		return token, true, nil
	}

	reason := refreshMissing
	if _, found := c.cache.Token(); found {
		reason = refreshExpired
	}

	token, err = c.refresh(ctx, targetURL, reason)

	return token, true, err
}

func (c *Client) refreshAfterRejection(ctx context.Context, targetURL string, rejected Token) (Token, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current, found := c.cache.Valid(c.clock.Now()); found && current.AccessToken != rejected.AccessToken {
		return current, nil
	}

	return c.refresh(ctx, targetURL, refreshUnauthorized)
}

// refresh must be called with refreshMu held.
func (c *Client) refresh(ctx context.Context, targetURL, reason string) (Token, error) {
	tokenURL := c.cache.TokenURL()
	if tokenURL == "" {
		discovered, err := c.discover(ctx, targetURL)
		if err != nil {
			c.logError(ctx, logMsgDiscoveryFailed, err)
			c.recordRefresh(ctx, reason, circulation.StatusError)
			return Token{}, err
		}

		tokenURL = discovered
		c.cache.StoreTokenURL(tokenURL)
	}

	token, err := c.grant(ctx, tokenURL)
	if err != nil {
		c.logError(ctx, logMsgGrantFailed, err)
		c.recordRefresh(ctx, reason, circulation.StatusError)
		return Token{}, err
	}

	c.cache.Store(token)
	c.logRefresh(ctx, reason, token)
	c.recordRefresh(ctx, reason, circulation.StatusSuccess)

	return token, nil
}

// discover fetches the feed unauthenticated and expects a 401 carrying an OPDS authentication document.
func (c *Client) discover(ctx context.Context, targetURL string) (string, error) {
	discoveryURL := c.feedURL
	if discoveryURL == "" {
		discoveryURL = targetURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return "", integrationError(ErrAuthDocumentUnavailable, "building request: %w", err)
	}

	response, err := c.doer.Do(req)
	if err != nil {
		return "", integrationError(ErrAuthDocumentUnavailable, "requesting '%s': %w", discoveryURL, err)
	}
	defer drain(response)

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", integrationError(ErrAuthDocumentUnavailable, "reading response: %w", err)
	}

	if response.StatusCode != http.StatusUnauthorized || !isAuthDocument(response.Header.Get("Content-Type")) {
		return "", integrationError(
			ErrAuthDocumentUnavailable,
			"Unable to fetch OPDS authentication document. Incorrect status code: %d. Content-Type: %s.",
			response.StatusCode, response.Header.Get("Content-Type"),
		)
	}

	c.logDiscovery(ctx, discoveryURL)

	return ParseAuthenticateURL(body)
}

func (c *Client) grant(ctx context.Context, tokenURL string) (Token, error) {
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, integrationError(ErrTokenGrantFailed, "building request: %w", err)
	}
	req.Header.Set("Content-Type", circulation.MediaTypeFormURLEncoded)
	req.SetBasicAuth(c.username, c.password)

	response, err := c.doer.Do(req)
	if err != nil {
		return Token{}, integrationError(ErrTokenGrantFailed, "requesting '%s': %w", tokenURL, err)
	}
	defer drain(response)

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return Token{}, integrationError(ErrTokenGrantFailed, "reading response: %w", err)
	}

	if !circulation.SuccessOnly.Allows(response.StatusCode) {
		return Token{}, integrationError(
			ErrTokenGrantFailed, "%w", &DisallowedStatusError{
				StatusCode: response.StatusCode,
				Allowed:    circulation.SuccessOnly,
				Body:       string(body),
			},
		)
	}

	return ParseTokenGrant(body, c.clock.Now())
}

func isAuthDocument(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == circulation.MediaTypeOPDSAuthDocument
}

// replayable buffers a request body that cannot be re-read so the request can be retried.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}

	buffered := req.Clone(req.Context())
	buffered.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	buffered.Body, _ = buffered.GetBody()

	return buffered, nil
}

func withBearer(req *http.Request, token Token) *http.Request {
	authorized := req.Clone(req.Context())
	if req.GetBody != nil {
		authorized.Body, _ = req.GetBody()
	}
	authorized.Header.Set("Authorization", "Bearer "+token.AccessToken)

	return authorized
}

func drain(response *http.Response) {
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
}
