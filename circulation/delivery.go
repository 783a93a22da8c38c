package circulation

// DRMScheme identifies how a delivery mechanism protects content.
type DRMScheme string

const (
	NoDRM                 DRMScheme = ""
	AdobeDRM              DRMScheme = "application/vnd.adobe.adept+xml"
	LCPDRM                DRMScheme = "application/vnd.readium.lcp.license.v1.0+json"
	FeedbooksAudiobookDRM DRMScheme = "http://www.feedbooks.com/audiobooks/access-restriction"
	BearerTokenDRM        DRMScheme = "application/vnd.librarysimplified.bearer-token+json"
)

// Media types used when selecting fulfillment links.
const (
	MediaTypeEPUB                  = "application/epub+zip"
	MediaTypePDF                   = "application/pdf"
	MediaTypeAudiobookManifest     = "application/audiobook+json"
	MediaTypeFeedbooksAudiobook    = "application/audiobook+json; protection=http://www.feedbooks.com/audiobooks/access-restriction"
	MediaTypeLCPLicense            = "application/vnd.readium.lcp.license.v1.0+json"
	MediaTypeAdobeACSM             = "application/vnd.adobe.adept+xml"
	MediaTypeBearerTokenDocument   = "application/vnd.librarysimplified.bearer-token+json"
	MediaTypeLoanStatusDocument    = "application/vnd.readium.license.status.v1.0+json"
	MediaTypeOPDSAuthDocument      = "application/vnd.opds.authentication.v1.0+json"
	MediaTypeProblemDetail         = "application/problem+json"
	MediaTypeProblemDetailAPI      = "application/api-problem+json"
	MediaTypeFormURLEncoded        = "application/x-www-form-urlencoded"
	MediaTypeJSON                  = "application/json"
	MediaTypeOPDSPublication       = "application/opds-publication+json"
	MediaTypeReadiumWebPublication = "application/webpub+json"
)

// DeliveryMechanism is a content type and DRM scheme combination a patron asks to be fulfilled with.
// ResourceURL locates the content for open-access and unlimited-access titles.
type DeliveryMechanism struct {
	ContentType string
	DRMScheme   DRMScheme
	ResourceURL string
}

// FulfillmentKind tells the caller how to hand the content to the patron.
type FulfillmentKind int

const (
	// FetchFulfillment means the caller downloads ContentLink and passes the response through.
	FetchFulfillment FulfillmentKind = iota
	// RedirectFulfillment means the caller redirects the patron to ContentLink.
	RedirectFulfillment
	// DirectFulfillment means Content is the document to return.
	DirectFulfillment
)

func (k FulfillmentKind) String() string {
	switch k {
	case FetchFulfillment:
		return "fetch"
	case RedirectFulfillment:
		return "redirect"
	case DirectFulfillment:
		return "direct"
	default:
		return "unknown"
	}
}

// Fulfillment is the result of fulfilling a loan.
type Fulfillment struct {
	Kind                 FulfillmentKind
	ContentLink          string
	ContentType          string
	Content              []byte
	AllowedResponseCodes ResponseCodes
}
