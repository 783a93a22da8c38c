package loanstatus

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Transport failure kinds. Every *RequestError matches exactly one of them with errors.Is.
var (
	ErrRequestTimedOut   = errors.New("request to distributor timed out")
	ErrNetworkFailure    = errors.New("network failure talking to distributor")
	ErrBadStatus         = errors.New("distributor returned an unexpected status code")
	ErrMalformedDocument = errors.New("distributor returned a malformed document")
)

// RequestError describes a failed distributor request.
type RequestError struct {
	Kind       error
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       string
	Problem    *ProblemDetail
	Cause      error

	message string
}

func (e *RequestError) Error() string {
	return e.message
}

// Unwrap exposes the failure kind and the underlying cause.
func (e *RequestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// HasProblemType reports whether the response carried a problem detail of the given type.
func (e *RequestError) HasProblemType(problemType string) bool {
	return e.Problem != nil && e.Problem.Type == problemType
}

// IsCheckoutUnavailable reports whether err says the distributor has no copy left to lend.
func IsCheckoutUnavailable(err error) bool {
	var requestErr *RequestError
	if !errors.As(err, &requestErr) {
		return false
	}

	return requestErr.HasProblemType(ProblemTypeCheckoutUnavailable)
}

func newTimeoutError(document, method, url string, cause error) *RequestError {
	return &RequestError{
		Kind:    ErrRequestTimedOut,
		Method:  method,
		URL:     url,
		Cause:   cause,
		message: fmt.Sprintf("Error requesting %s. '%s' timed out.", document, url),
	}
}

func newNetworkError(document, method, url string, cause error) *RequestError {
	return &RequestError{
		Kind:    ErrNetworkFailure,
		Method:  method,
		URL:     url,
		Cause:   cause,
		message: fmt.Sprintf("Error requesting %s. Network error contacting '%s': %s", document, url, cause),
	}
}

func newMalformedDocumentError(document, method, url string, statusCode int, body []byte, cause error) *RequestError {
	return &RequestError{
		Kind:       ErrMalformedDocument,
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
		Body:       string(body),
		Cause:      cause,
		message:    fmt.Sprintf("Error validating %s. '%s' returned and invalid document.", document, url),
	}
}

func newBadStatusError(document, method, url string, response *http.Response, body []byte) *RequestError {
	requestErr := &RequestError{
		Kind:       ErrBadStatus,
		Method:     method,
		URL:        url,
		StatusCode: response.StatusCode,
		Header:     response.Header,
		Body:       string(body),
	}

	if IsProblemDetailContentType(response.Header.Get("Content-Type")) {
		if problem, err := ParseProblemDetail(body); err == nil {
			requestErr.Problem = &problem
			requestErr.message = fmt.Sprintf(
				"Error requesting %s. '%s' returned status code %d. Problem Detail: '%s' - %s - %s",
				document, url, response.StatusCode, problem.Type, problem.Title, problem.Detail,
			)

			return requestErr
		}
	}

	requestErr.message = fmt.Sprintf(
		"Error requesting %s. '%s' returned status code %d. Response headers: %s. Response content: %s.",
		document, url, response.StatusCode, formatHeaders(response.Header), string(body),
	)

	return requestErr
}

func formatHeaders(header http.Header) string {
	keys := make([]string, 0, len(header))
	for key := range header {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(header[key], ", ")))
	}

	return strings.Join(parts, ", ")
}
