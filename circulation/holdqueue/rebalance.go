package holdqueue

import (
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

// Summary reports what a rebalance did and the resulting pool counters.
type Summary struct {
	Expired   int
	Promoted  int
	Demoted   int
	Owned     int
	Available int
	Reserved  int
	Queued    int
	Changed   bool
}

// Merge adds the hold changes of a later rebalance to s and takes its counters.
func (s Summary) Merge(later Summary) Summary {
	later.Expired += s.Expired
	later.Promoted += s.Promoted
	later.Demoted += s.Demoted
	later.Changed = later.Changed || s.Changed

	return later
}

// Rebalance brings the pool counters and hold positions in line with the licenses, loans and holds.
//
// Expired reservations are deleted first. Valid reservations keep their slot unless the pool now has
// fewer free slots than reservations; then the most recently queued reservations go back to the queue.
// Remaining free slots are reserved for the next holds in queue order with End = now + reservationPeriod.
// Queued holds get position index+1 in queue order and no End. Slots nobody reserved become available.
//
// Pools that bypass licensing are left untouched.
func Rebalance(state *circulation.PoolState, now time.Time, reservationPeriod time.Duration) Summary {
	if state.Pool.BypassesLicensing() {
		return Summary{
			Owned:     state.Pool.LicensesOwned,
			Available: state.Pool.LicensesAvailable,
			Reserved:  state.Pool.LicensesReserved,
			Queued:    state.Pool.PatronsInHoldQueue,
		}
	}

	summary := Summary{}

	for _, hold := range append([]circulation.Hold(nil), state.Holds...) {
		if hold.IsExpired(now) {
			state.RemoveHold(hold.ID)
			summary.Expired++
		}
	}

	owned := state.OwnedSlots(now)
	capacity := max(owned-len(state.ActiveLoans(now)), 0)
	slots := min(state.FreeSlots(now), capacity)

	holds := state.ActiveHolds(now)

	reservedCount := 0
	for _, hold := range holds {
		if hold.IsReserved() {
			reservedCount++
		}
	}

	surplus := max(reservedCount-slots, 0)
	demote := make(map[int]bool, surplus)
	for i := len(holds) - 1; i >= 0 && surplus > 0; i-- {
		if holds[i].IsReserved() {
			demote[i] = true
			surplus--
		}
	}

	free := slots - (reservedCount - len(demote))
	reserved := 0

	for i, hold := range holds {
		updated := hold

		switch {
		case hold.IsReserved() && !demote[i]:
			if updated.End == nil {
				end := now.Add(reservationPeriod)
				updated.End = &end
			}
			reserved++

		case !demote[i] && free > 0:
			end := now.Add(reservationPeriod)
			updated.Position = 0
			updated.End = &end
			free--
			reserved++
			summary.Promoted++

		default:
			if demote[i] {
				summary.Demoted++
			}
			updated.Position = i + 1
			updated.End = nil
		}

		if holdChanged(hold, updated) {
			state.UpdateHold(updated)
			summary.Changed = true
		}
	}

	available := max(slots-reserved, 0)

	pool := state.Pool
	pool.LicensesOwned = owned
	pool.LicensesAvailable = available
	pool.LicensesReserved = reserved
	pool.PatronsInHoldQueue = len(holds)

	if summary.Expired > 0 || pool != state.Pool {
		summary.Changed = true
	}

	if summary.Changed {
		pool.LastChangedAt = now
	}

	state.Pool = pool

	summary.Owned = owned
	summary.Available = available
	summary.Reserved = reserved
	summary.Queued = len(holds)

	return summary
}

func holdChanged(before, after circulation.Hold) bool {
	if before.Position != after.Position {
		return true
	}

	switch {
	case before.End == nil && after.End == nil:
		return false
	case before.End == nil || after.End == nil:
		return true
	default:
		return !before.End.Equal(*after.End)
	}
}
