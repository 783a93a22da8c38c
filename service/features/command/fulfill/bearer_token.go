package fulfill

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/distributorauth"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const bearerTokenType = "Bearer"

// bearerTokenDocument lets the patron's app download the resource with the distributor session token.
type bearerTokenDocument struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Location    string `json:"location"`
}

// BearerTokenFulfillment builds a direct fulfillment carrying the session token and the resource location.
func BearerTokenFulfillment(
	token distributorauth.Token,
	mechanism circulation.DeliveryMechanism,
	now time.Time,
) (circulation.Fulfillment, error) {

	if mechanism.ResourceURL == "" {
		return circulation.Fulfillment{}, errors.Join(circulation.ErrCannotFulfill, ErrNoResource)
	}

	content, err := json.Marshal(bearerTokenDocument{
		AccessToken: token.AccessToken,
		ExpiresIn:   int(token.ExpiresAt.Sub(now).Seconds()),
		TokenType:   bearerTokenType,
		Location:    mechanism.ResourceURL,
	})
	if err != nil {
		return circulation.Fulfillment{}, errors.Join(circulation.ErrCannotFulfill, fmt.Errorf("encoding bearer token: %w", err))
	}

	return circulation.Fulfillment{
		Kind:        circulation.DirectFulfillment,
		ContentType: circulation.MediaTypeBearerTokenDocument,
		Content:     content,
	}, nil
}
