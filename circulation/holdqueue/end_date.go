package holdqueue

import (
	"bytes"
	"sort"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

// UpdateHold recomputes the position of hold and estimates when it will be, or stops being, reserved.
//
// A hold that was reserved and stays reserved keeps its End. A newly reserved hold gets
// now + reservationPeriod. A queued hold gets the latest time a slot can reach its rank,
// see EstimateEndDate.
func UpdateHold(
	state *circulation.PoolState,
	hold circulation.Hold,
	now time.Time,
	loanDuration time.Duration,
	reservationPeriod time.Duration,
) circulation.Hold {

	previousPosition := hold.Position
	hold.Position = Position(state, hold, now)

	switch {
	case previousPosition == 0 && hold.Position == 0 && hold.End != nil:
		return hold

	case hold.Position > 0:
		hold.End = EstimateEndDate(state, hold.Position, now, loanDuration, reservationPeriod)

	default:
		end := now.Add(reservationPeriod)
		hold.End = &end
	}

	return hold
}

// EstimateEndDate estimates when a hold at the given queue position gets its reservation.
//
// The first len(reservations) positions belong to reserved holds. The following positions take
// over copies in the order current loans end, then in the order reservations would end if claimed
// at the last moment and borrowed for a full loan period. Every further pass over all owned copies
// adds one loan period and one reservation period. Loans ending at the same instant are ordered by
// start, then id.
//
// Returns nil when the pool owns nothing or the ledger cannot support an estimate.
func EstimateEndDate(
	state *circulation.PoolState,
	position int,
	now time.Time,
	loanDuration time.Duration,
	reservationPeriod time.Duration,
) *time.Time {

	owned := state.OwnedSlots(now)
	if owned <= 0 || position <= 0 {
		return nil
	}

	loans := sortedActiveLoans(state, now)
	holds := state.ActiveHolds(now)

	licensesReserved := max(min(owned-len(loans), len(holds)), 0)
	reservations := holds[:licensesReserved]

	if position <= licensesReserved {
		return reservations[position-1].End
	}

	cycles := (position - licensesReserved - 1) / owned
	copyIndex := (position - licensesReserved - 1) % owned

	var nextCycleStart time.Time

	switch {
	case copyIndex < len(loans):
		if loans[copyIndex].End == nil {
			return nil
		}
		nextCycleStart = *loans[copyIndex].End

	case copyIndex-len(loans) < len(reservations):
		reservation := reservations[copyIndex-len(loans)]
		if reservation.End == nil {
			return nil
		}
		nextCycleStart = reservation.End.Add(loanDuration)

	default:
		return nil
	}

	end := nextCycleStart.Add(time.Duration(cycles) * (loanDuration + reservationPeriod))

	return &end
}

// sortedActiveLoans orders active loans by end ascending with open-ended loans last.
func sortedActiveLoans(state *circulation.PoolState, now time.Time) []circulation.Loan {
	loans := state.ActiveLoans(now)

	sort.SliceStable(loans, func(i, j int) bool {
		a, b := loans[i], loans[j]

		switch {
		case a.End == nil && b.End == nil:
		case a.End == nil:
			return false
		case b.End == nil:
			return true
		case !a.End.Equal(*b.End):
			return a.End.Before(*b.End)
		}

		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}

		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})

	return loans
}
