package loanstatus

import (
	"errors"
	"mime"
	"strings"

	"github.com/jonathangreen/circulation/circulation"
)

// ProblemTypeCheckoutUnavailable is returned by distributors that have no copy left to lend.
const ProblemTypeCheckoutUnavailable = "http://opds-spec.org/odl/error/checkout/unavailable"

var errEmptyProblemType = errors.New("problem detail without type")

// ProblemDetail is an RFC 7807 error document.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// IsProblemDetailContentType reports whether a Content-Type header announces a problem detail document.
func IsProblemDetailContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}

	return mediaType == circulation.MediaTypeProblemDetail || mediaType == circulation.MediaTypeProblemDetailAPI
}

// ParseProblemDetail decodes body and requires a problem type.
func ParseProblemDetail(body []byte) (ProblemDetail, error) {
	var problem ProblemDetail
	if err := json.Unmarshal(body, &problem); err != nil {
		return ProblemDetail{}, err
	}

	if problem.Type == "" {
		return ProblemDetail{}, errEmptyProblemType
	}

	return problem, nil
}
