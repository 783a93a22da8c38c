package loanstatus

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the lifecycle state of a loan as reported by the distributor.
type Status string

const (
	StatusReady     Status = "ready"
	StatusActive    Status = "active"
	StatusRevoked   Status = "revoked"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Link relations used by loan status and license documents.
const (
	RelSelf        = "self"
	RelLicense     = "license"
	RelReturn      = "return"
	RelStatus      = "status"
	RelPublication = "publication"
	RelManifest    = "manifest"
)

var errUnknownStatus = errors.New("unknown loan status")

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusReady, StatusActive, StatusRevoked, StatusReturned, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the distributor no longer considers the loan open.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRevoked, StatusReturned, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Link is a typed hyperlink in a distributor document.
type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

// Links is a list of links with lookup helpers.
type Links []Link

// Get returns the first link with rel and, when linkType is not empty, that type.
func (l Links) Get(rel, linkType string) (Link, bool) {
	for _, link := range l {
		if link.Rel != rel {
			continue
		}

		if linkType != "" && link.Type != linkType {
			continue
		}

		return link, true
	}

	return Link{}, false
}

// Updated records when the license and the status last changed.
type Updated struct {
	License *time.Time `json:"license,omitempty"`
	Status  *time.Time `json:"status,omitempty"`
}

// PotentialRights carries the latest end the loan can be extended to.
type PotentialRights struct {
	End *time.Time `json:"end,omitempty"`
}

// LoanStatusDocument is the distributor's authoritative record of one loan.
type LoanStatusDocument struct {
	ID              string           `json:"id"`
	Status          Status           `json:"status"`
	Message         string           `json:"message,omitempty"`
	Updated         *Updated         `json:"updated,omitempty"`
	Links           Links            `json:"links"`
	PotentialRights *PotentialRights `json:"potential_rights,omitempty"`
}

// End returns potential_rights.end when the document carries one.
func (d LoanStatusDocument) End() *time.Time {
	if d.PotentialRights == nil {
		return nil
	}

	return d.PotentialRights.End
}

// ParseLoanStatusDocument decodes body and rejects unknown statuses.
func ParseLoanStatusDocument(body []byte) (LoanStatusDocument, error) {
	var document LoanStatusDocument
	if err := json.Unmarshal(body, &document); err != nil {
		return LoanStatusDocument{}, err
	}

	if !document.Status.IsValid() {
		return LoanStatusDocument{}, errUnknownStatus
	}

	return document, nil
}

// LicenseDocument is the distributor's license for a checked-out loan.
type LicenseDocument struct {
	ID     string `json:"id"`
	Issued string `json:"issued,omitempty"`
	Links  Links  `json:"links"`
}

// ParseLicenseDocument decodes body.
func ParseLicenseDocument(body []byte) (LicenseDocument, error) {
	var document LicenseDocument
	if err := json.Unmarshal(body, &document); err != nil {
		return LicenseDocument{}, err
	}

	return document, nil
}
