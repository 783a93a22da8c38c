// Package distributorauth authenticates requests to a license distributor.
//
// Three modes are supported: no authentication, HTTP basic authentication and OAuth client
// credentials discovered through an OPDS authentication document. In OAuth mode the Client caches
// one Bearer token, refreshes it when it is missing or expired, and refreshes it exactly once more
// when the distributor still answers 401.
//
// Client implements loanstatus.HTTPDoer and http.RoundTripper:
//
//	auth, err := distributorauth.NewClient(
//		loanstatus.NewHTTPClient(20*time.Second),
//		distributorauth.AuthOAuth,
//		distributorauth.WithCredentials(username, password),
//		distributorauth.WithFeedURL(feedURL),
//	)
//	statusClient, err := loanstatus.NewClient(auth)
package distributorauth
