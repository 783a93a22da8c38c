package distributorauth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAuthType is returned for unknown authentication modes.
var ErrInvalidAuthType = errors.New("invalid auth type")

// AuthType selects how requests to the distributor are authenticated.
type AuthType string

const (
	AuthNone  AuthType = "none"
	AuthBasic AuthType = "basic"
	AuthOAuth AuthType = "oauth"
)

// ParseAuthType parses a configured auth type, case-insensitively.
func ParseAuthType(value string) (AuthType, error) {
	authType := AuthType(strings.ToLower(strings.TrimSpace(value)))
	if !authType.IsValid() {
		return "", invalidAuthTypeError(value)
	}

	return authType, nil
}

// IsValid reports whether t is a known auth type.
func (t AuthType) IsValid() bool {
	switch t {
	case AuthNone, AuthBasic, AuthOAuth:
		return true
	default:
		return false
	}
}

func invalidAuthTypeError(value string) error {
	return fmt.Errorf("%w: Invalid auth type: '%s'", ErrInvalidAuthType, value)
}
