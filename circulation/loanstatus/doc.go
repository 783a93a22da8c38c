// Package loanstatus talks to a distributor's loan status protocol.
//
// It requests, parses and validates Loan Status Documents and License Documents, and maps every
// failure to one of four transport kinds (ErrRequestTimedOut, ErrNetworkFailure, ErrBadStatus,
// ErrMalformedDocument) carried by a *RequestError. Problem Detail responses are parsed so callers
// can react to specific problem types, for example ProblemTypeCheckoutUnavailable.
//
// Authentication is not handled here. Pass a distributorauth.Client, or any other HTTPDoer, to NewClient.
package loanstatus
