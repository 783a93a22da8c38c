package distributorauth

import (
	"errors"
	"fmt"

	"github.com/jonathangreen/circulation/circulation"
)

// Authentication failures. All of them except ErrDisallowedStatus also match
// circulation.ErrIntegrationMisconfigured.
var (
	ErrMissingCredentials      = errors.New("username and password are required")
	ErrAuthDocumentUnavailable = errors.New("unable to fetch OPDS authentication document")
	ErrMalformedAuthDocument   = errors.New("malformed OPDS authentication document")
	ErrTokenGrantFailed        = errors.New("token grant request failed")
	ErrMalformedTokenGrant     = errors.New("malformed token grant")
	ErrNoSessionToken          = errors.New("session tokens are only available with OAuth")
	ErrDisallowedStatus        = errors.New("distributor returned a status code the caller cannot handle")
)

func integrationError(kind error, format string, args ...any) error {
	return errors.Join(circulation.ErrIntegrationMisconfigured, kind, fmt.Errorf(format, args...))
}

// DisallowedStatusError is returned by Client.Request when the final response status is not allowed.
type DisallowedStatusError struct {
	StatusCode int
	Allowed    circulation.ResponseCodes
	Body       string
}

func (e *DisallowedStatusError) Error() string {
	return fmt.Sprintf(
		"Got status code %d from external server, but can only continue on: %s.",
		e.StatusCode, e.Allowed.String(),
	)
}

// Is reports whether target is ErrDisallowedStatus.
func (e *DisallowedStatusError) Is(target error) bool {
	return target == ErrDisallowedStatus
}
