package fulfill

import (
	"errors"
	"fmt"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/shared/core"
)

var (
	// ErrUnsupportedMechanism is returned for a DRM scheme the pool cannot be fulfilled with.
	ErrUnsupportedMechanism = errors.New("unsupported delivery mechanism")

	// ErrNoContentLink is returned when no link matches the requested delivery mechanism.
	ErrNoContentLink = errors.New("no link matches the delivery mechanism")

	// ErrNoResource is returned when an open-access or unlimited pool has no resource for the mechanism.
	ErrNoResource = errors.New("delivery mechanism has no resource")

	// ErrLoanClosed is returned when the distributor no longer considers the loan open.
	ErrLoanClosed = errors.New("loan closed by the distributor")
)

// Plan is what the handler executes after a positive decision.
type Plan struct {
	// Loan is the patron's loan on the pool.
	Loan circulation.Loan

	// Bypass is set for open-access and unlimited pools, fulfilled from the mechanism's resource.
	Bypass bool
}

// Decide implements the business rules for fulfilling a loan.
//
// Business Rules:
//
//	GIVEN: a patron, a locked license pool and a delivery mechanism
//	WHEN:  Fulfill command is received
//	THEN:  a Plan naming the loan to fulfill
//	THEN:  open-access and unlimited pools are fulfilled without a distributor call
//	ERROR: NotCheckedOut if the patron has no loan on the pool
func Decide(state *circulation.PoolState, command Command) core.DecisionResult[Plan] {
	loan, found := state.LoanFor(command.PatronID)
	if !found {
		return core.ErrorDecision[Plan](circulation.ErrNotCheckedOut)
	}

	return core.SuccessDecision(Plan{
		Loan:   loan,
		Bypass: state.Pool.BypassesLicensing() || loan.LicenseID == nil,
	})
}

// BypassFulfillment redirects to the mechanism's resource. Bearer token deliveries are handled by the
// caller because they need a session token.
func BypassFulfillment(mechanism circulation.DeliveryMechanism) (circulation.Fulfillment, error) {
	if mechanism.ResourceURL == "" {
		return circulation.Fulfillment{}, errors.Join(circulation.ErrCannotFulfill, ErrNoResource)
	}

	if mechanism.DRMScheme != circulation.NoDRM {
		return circulation.Fulfillment{}, errors.Join(
			circulation.ErrCannotFulfill,
			fmt.Errorf("%w: %s", ErrUnsupportedMechanism, mechanism.DRMScheme),
		)
	}

	return circulation.Fulfillment{
		Kind:        circulation.RedirectFulfillment,
		ContentLink: mechanism.ResourceURL,
		ContentType: mechanism.ContentType,
	}, nil
}

// SelectLink picks the link of an open loan's status document matching the delivery mechanism.
//
//	GIVEN: the status document of an open loan
//	WHEN:  the mechanism is Adobe or LCP DRM
//	THEN:  fetch the license link of that DRM's type
//	WHEN:  the mechanism is the Feedbooks audiobook DRM
//	THEN:  fetch the manifest link
//	WHEN:  the mechanism has no DRM
//	THEN:  redirect to the publication link of the requested content type
//	ERROR: CannotFulfill if the scheme is unknown or no link matches
func SelectLink(document loanstatus.LoanStatusDocument, mechanism circulation.DeliveryMechanism) (circulation.Fulfillment, error) {
	var rel, linkType string
	kind := circulation.FetchFulfillment

	switch mechanism.DRMScheme {
	case circulation.AdobeDRM:
		rel, linkType = loanstatus.RelLicense, circulation.MediaTypeAdobeACSM
	case circulation.LCPDRM:
		rel, linkType = loanstatus.RelLicense, circulation.MediaTypeLCPLicense
	case circulation.FeedbooksAudiobookDRM:
		rel, linkType = loanstatus.RelManifest, circulation.MediaTypeFeedbooksAudiobook
	case circulation.NoDRM:
		rel, linkType = loanstatus.RelPublication, mechanism.ContentType
		kind = circulation.RedirectFulfillment
	default:
		return circulation.Fulfillment{}, errors.Join(
			circulation.ErrCannotFulfill,
			fmt.Errorf("%w: %s", ErrUnsupportedMechanism, mechanism.DRMScheme),
		)
	}

	link, found := document.Links.Get(rel, linkType)
	if !found || link.Href == "" {
		return circulation.Fulfillment{}, errors.Join(
			circulation.ErrCannotFulfill,
			fmt.Errorf("%w: rel %s, type %s", ErrNoContentLink, rel, linkType),
		)
	}

	fulfillment := circulation.Fulfillment{
		Kind:        kind,
		ContentLink: link.Href,
		ContentType: linkType,
	}

	if kind == circulation.FetchFulfillment {
		fulfillment.AllowedResponseCodes = circulation.SuccessOnly
	}

	return fulfillment, nil
}
