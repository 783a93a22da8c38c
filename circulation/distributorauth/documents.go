package distributorauth

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	authTypeClientCredentials = "http://opds-spec.org/auth/oauth/client_credentials"
	relAuthenticate           = "authenticate"
	tokenTypeBearer           = "Bearer"
)

type authLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type authMethod struct {
	Type  string     `json:"type"`
	Links []authLink `json:"links"`
}

type authDocument struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Authentication []authMethod `json:"authentication"`
}

type tokenGrant struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int   `json:"expires_in"`
}

// ParseAuthenticateURL extracts the client credentials authenticate URL from an OPDS authentication
// document. The document must carry exactly one client credentials method with exactly one
// authenticate link. Other methods are ignored.
func ParseAuthenticateURL(body []byte) (string, error) {
	var document authDocument
	if err := json.Unmarshal(body, &document); err != nil {
		return "", integrationError(ErrMalformedAuthDocument, "decoding: %w", err)
	}

	var methods []authMethod
	for _, method := range document.Authentication {
		if method.Type == authTypeClientCredentials {
			methods = append(methods, method)
		}
	}

	if len(methods) != 1 {
		return "", integrationError(
			ErrMalformedAuthDocument, "expected exactly one client credentials method, found %d", len(methods),
		)
	}

	var hrefs []string
	for _, link := range methods[0].Links {
		if link.Rel == relAuthenticate {
			hrefs = append(hrefs, link.Href)
		}
	}

	if len(hrefs) != 1 || hrefs[0] == "" {
		return "", integrationError(
			ErrMalformedAuthDocument, "expected exactly one authenticate link, found %d", len(hrefs),
		)
	}

	return hrefs[0], nil
}

// ParseTokenGrant validates a token grant response and turns it into a Token expiring relative to now.
func ParseTokenGrant(body []byte, now time.Time) (Token, error) {
	var grant tokenGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return Token{}, integrationError(ErrMalformedTokenGrant, "decoding: %w", err)
	}

	switch {
	case grant.AccessToken == "":
		return Token{}, integrationError(ErrMalformedTokenGrant, "access_token is missing")
	case grant.TokenType != tokenTypeBearer:
		return Token{}, integrationError(ErrMalformedTokenGrant, "unsupported token_type '%s'", grant.TokenType)
	case grant.ExpiresIn == nil:
		return Token{}, integrationError(ErrMalformedTokenGrant, "expires_in is missing")
	case *grant.ExpiresIn < 0:
		return Token{}, integrationError(ErrMalformedTokenGrant, "expires_in must not be negative, got %d", *grant.ExpiresIn)
	}

	return Token{
		AccessToken: grant.AccessToken,
		ExpiresAt:   now.Add(time.Duration(*grant.ExpiresIn) * time.Second),
	}, nil
}
