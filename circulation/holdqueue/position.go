package holdqueue

import (
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

// CountHoldsBefore counts the holds on the pool queued ahead of hold that have not expired.
func CountHoldsBefore(state *circulation.PoolState, hold circulation.Hold, now time.Time) int {
	before := 0
	for _, other := range state.Holds {
		if other.ID == hold.ID || other.IsExpired(now) {
			continue
		}

		if other.QueuedBefore(hold) {
			before++
		}
	}

	return before
}

// Position computes where hold stands in the queue. It is 0 when the slots not taken by active
// loans outnumber the holds ahead of it, otherwise one past the number of holds ahead.
func Position(state *circulation.PoolState, hold circulation.Hold, now time.Time) int {
	before := CountHoldsBefore(state, hold, now)
	remaining := state.OwnedSlots(now) - len(state.ActiveLoans(now))

	if remaining > before {
		return 0
	}

	return before + 1
}
