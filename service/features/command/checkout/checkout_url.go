package checkout

import (
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/yosida95/uritemplate/v3"

	"github.com/jonathangreen/circulation/circulation"
)

// ErrInvalidCheckoutURL is returned when a license's checkout URL template cannot be expanded.
var ErrInvalidCheckoutURL = errors.New("invalid checkout url template")

// expiresLayout renders UTC instants with an explicit +00:00 offset, which distributors expect.
const expiresLayout = "2006-01-02T15:04:05+00:00"

// checkoutRequest carries the variables of a checkout URL template.
type checkoutRequest struct {
	license    circulation.License
	loanID     uuid.UUID
	expires    time.Time
	passphrase string
}

// expandCheckoutURL fills the license's checkout URL template.
// checkout_id and patron_id are fresh random UUIDs so the distributor never sees a stable patron identity.
func expandCheckoutURL(request checkoutRequest, settings circulation.CollectionSettings) (string, error) {
	template, err := uritemplate.New(request.license.CheckoutURL)
	if err != nil {
		return "", errors.Join(ErrInvalidCheckoutURL, err)
	}

	values := uritemplate.Values{}
	values.Set("id", uritemplate.String(request.license.Identifier))
	values.Set("checkout_id", uritemplate.String(uuid.NewString()))
	values.Set("patron_id", uritemplate.String(uuid.NewString()))
	values.Set("expires", uritemplate.String(request.expires.UTC().Format(expiresLayout)))

	if settings.PassphraseHint != "" {
		values.Set("hint", uritemplate.String(settings.PassphraseHint))
	}

	if settings.PassphraseHintURL != "" {
		values.Set("hint_url", uritemplate.String(settings.PassphraseHintURL))
	}

	if settings.NotificationURL != "" {
		notificationURL, notifyErr := NotificationURL(settings, request.loanID)
		if notifyErr != nil {
			return "", errors.Join(ErrInvalidCheckoutURL, notifyErr)
		}
		values.Set("notification_url", uritemplate.String(notificationURL))
	}

	if request.passphrase != "" {
		values.Set("passphrase", uritemplate.String(request.passphrase))
	}

	expanded, err := template.Expand(values)
	if err != nil {
		return "", errors.Join(ErrInvalidCheckoutURL, err)
	}

	return expanded, nil
}

// NotificationURL returns the callback the distributor calls when the loan changes:
// the configured base with library_short_name and loan_id query parameters.
func NotificationURL(settings circulation.CollectionSettings, loanID uuid.UUID) (string, error) {
	base, err := url.Parse(settings.NotificationURL)
	if err != nil {
		return "", err
	}

	query := base.Query()
	query.Set("library_short_name", settings.LibraryShortName)
	query.Set("loan_id", loanID.String())
	base.RawQuery = query.Encode()

	return base.String(), nil
}
