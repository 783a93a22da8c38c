package patronactivity

import (
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	queryType = "PatronActivity"
)

// Query asks for a patron's current loans and holds.
// Refresh asks the distributor for the status of every license-backed loan first.
type Query struct {
	PatronID uuid.UUID
	Refresh  bool
}

// QueryType returns the type identifier for this query, used for observability and routing.
func (q Query) QueryType() string {
	return queryType
}

// BuildQuery creates a new Query with the provided parameters.
func BuildQuery(patronID uuid.UUID, refresh bool) Query {
	return Query{
		PatronID: patronID,
		Refresh:  refresh,
	}
}

// Result lists the patron's active loans and holds with recomputed positions and end dates.
// RefreshFailures counts loans whose distributor status could not be fetched; they are listed as stored.
type Result struct {
	Loans           []circulation.Loan
	Holds           []circulation.Hold
	RefreshFailures int
}
