package loanstatus

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	defaultTimeout = 20 * time.Second

	documentLoanStatus = "Loan Status Document"
	documentLicense    = "License Document"
	documentResponse   = "distributor response"

	logMsgRequestSent     = "distributor request sent"
	logMsgRequestFailed   = "distributor request failed"
	logMsgReadBodyFailed  = "failed to read distributor response body"
	logMsgCloseBodyFailed = "failed to close distributor response body"
	logAttrError          = "error"
	logAttrURL            = "url"
	logAttrMethod         = "method"
	logAttrStatusCode     = "status_code"
	logAttrDurationMS     = "duration_ms"

	metricRequestDuration = "distributor_request_duration_seconds"
	metricRequestErrors   = "distributor_request_errors_total"
	spanNameRequest       = "loanstatus.request"
	spanAttrMethod        = "http.method"
	spanAttrURL           = "http.url"
	spanAttrStatusCode    = "http.status_code"
	spanAttrErrorKind     = "error.kind"
	labelDocument         = "document"
	labelMethod           = "method"
	labelStatus           = "status"
	labelErrorKind        = "error_kind"
)

// HTTPDoer sends HTTP requests. *http.Client and distributorauth.Client implement it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a distributor response whose status code the caller allowed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client requests loan status and license documents from a distributor.
type Client struct {
	doer             HTTPDoer
	timeout          time.Duration
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

// NewClient creates a Client sending requests through doer.
func NewClient(doer HTTPDoer, options ...Option) (*Client, error) {
	client := &Client{
		doer:    doer,
		timeout: defaultTimeout,
	}

	for _, option := range options {
		if err := option(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// NewHTTPClient returns an *http.Client with OpenTelemetry instrumentation for distributor traffic.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Status fetches the Loan Status Document at url.
func (c *Client) Status(ctx context.Context, url string) (LoanStatusDocument, error) {
	return c.loanStatus(ctx, http.MethodGet, url)
}

// Checkout POSTs to an expanded checkout URL and returns the new loan's status document.
// A distributor without a copy to lend answers with ProblemTypeCheckoutUnavailable, see IsCheckoutUnavailable.
func (c *Client) Checkout(ctx context.Context, url string) (LoanStatusDocument, error) {
	return c.loanStatus(ctx, http.MethodPost, url)
}

// Return calls a loan's return link and returns the resulting status document.
func (c *Client) Return(ctx context.Context, url string) (LoanStatusDocument, error) {
	return c.loanStatus(ctx, http.MethodPut, url)
}

// Request sends a request without interpreting the body. Status codes outside allowed fail with a
// RequestError the same way the document calls do; an empty allowed means circulation.SuccessOnly.
// Callers pass codes such as "401" they handle themselves.
func (c *Client) Request(ctx context.Context, method, url string, allowed circulation.ResponseCodes) (Response, error) {
	if len(allowed) == 0 {
		allowed = circulation.SuccessOnly
	}

	return c.request(ctx, documentResponse, method, url, allowed)
}

// LicenseDocument fetches the License Document at url.
func (c *Client) LicenseDocument(ctx context.Context, url string) (LicenseDocument, error) {
	response, err := c.request(ctx, documentLicense, http.MethodGet, url, circulation.SuccessOnly)
	if err != nil {
		return LicenseDocument{}, err
	}

	document, parseErr := ParseLicenseDocument(response.Body)
	if parseErr != nil {
		requestErr := newMalformedDocumentError(documentLicense, http.MethodGet, url, response.StatusCode, response.Body, parseErr)
		c.logError(ctx, requestErr)
		c.recordError(ctx, documentLicense, http.MethodGet, requestErr)
		return LicenseDocument{}, requestErr
	}

	return document, nil
}

func (c *Client) loanStatus(ctx context.Context, method, url string) (LoanStatusDocument, error) {
	response, err := c.request(ctx, documentLoanStatus, method, url, circulation.SuccessOnly)
	if err != nil {
		return LoanStatusDocument{}, err
	}

	document, parseErr := ParseLoanStatusDocument(response.Body)
	if parseErr != nil {
		requestErr := newMalformedDocumentError(documentLoanStatus, method, url, response.StatusCode, response.Body, parseErr)
		c.logError(ctx, requestErr)
		c.recordError(ctx, documentLoanStatus, method, requestErr)
		return LoanStatusDocument{}, requestErr
	}

	return document, nil
}

// request sends one request and returns the response when allowed lists its status code.
func (c *Client) request(ctx context.Context, document, method, url string, allowed circulation.ResponseCodes) (Response, error) {
	ctx, span := c.startSpan(ctx, method, url)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		requestErr := newNetworkError(document, method, url, err)
		c.finishSpan(span, requestErr, 0)
		c.logError(ctx, requestErr)
		return Response{}, requestErr
	}
	req.Header.Set("Accept", circulation.MediaTypeLoanStatusDocument+", "+circulation.MediaTypeJSON)

	start := time.Now()
	response, err := c.doer.Do(req)
	duration := time.Since(start)

	if err != nil {
		requestErr := classifyTransportError(document, method, url, err)
		c.finishSpan(span, requestErr, 0)
		c.logError(ctx, requestErr)
		c.recordError(ctx, document, method, requestErr)
		return Response{}, requestErr
	}
	defer c.closeBody(ctx, response.Body)

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		requestErr := classifyTransportError(document, method, url, readErr)
		c.logWarn(ctx, logMsgReadBodyFailed, readErr)
		c.finishSpan(span, requestErr, response.StatusCode)
		c.recordError(ctx, document, method, requestErr)
		return Response{}, requestErr
	}

	c.logRequest(ctx, method, url, response.StatusCode, duration)
	c.recordDuration(ctx, document, method, duration, response.StatusCode)

	result := Response{StatusCode: response.StatusCode, Header: response.Header, Body: body}

	if !allowed.Allows(response.StatusCode) {
		requestErr := newBadStatusError(document, method, url, response, body)
		c.finishSpan(span, requestErr, response.StatusCode)
		c.logError(ctx, requestErr)
		c.recordError(ctx, document, method, requestErr)
		return result, requestErr
	}

	c.finishSpan(span, nil, response.StatusCode)

	return result, nil
}

func classifyTransportError(document, method, url string, err error) *RequestError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newTimeoutError(document, method, url, err)
	}

	return newNetworkError(document, method, url, err)
}

func (c *Client) closeBody(ctx context.Context, body io.Closer) {
	if err := body.Close(); err != nil {
		c.logWarn(ctx, logMsgCloseBodyFailed, err)
	}
}
