package memengine

import (
	"bytes"
	"sort"

	"github.com/jonathangreen/circulation/circulation"
)

func sortLoans(loans []circulation.Loan) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].Start.Equal(loans[j].Start) {
			return loans[i].Start.Before(loans[j].Start)
		}

		return bytes.Compare(loans[i].ID[:], loans[j].ID[:]) < 0
	})
}

func sortHolds(holds []circulation.Hold) {
	sort.Slice(holds, func(i, j int) bool {
		return holds[i].QueuedBefore(holds[j])
	})
}
