package circulation

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// License is a distributor-issued grant backing up to TermsConcurrency simultaneous loans.
// CheckoutsLeft is the remaining lifetime checkout budget, nil means unlimited.
// CheckoutsAvailable is the number of concurrent slots the distributor currently has free.
type License struct {
	ID                 uuid.UUID
	PoolID             uuid.UUID
	Identifier         string
	CheckoutURL        string
	StatusURL          string
	TermsConcurrency   int
	CheckoutsLeft      *int
	CheckoutsAvailable int
	Expires            *time.Time
}

// IsUsable reports whether the license still has checkouts left and has not expired.
func (l License) IsUsable(now time.Time) bool {
	if l.CheckoutsLeft != nil && *l.CheckoutsLeft <= 0 {
		return false
	}

	if l.Expires != nil && !l.Expires.After(now) {
		return false
	}

	return true
}

// FreeSlots returns how many more loans this license can back right now.
func (l License) FreeSlots(now time.Time) int {
	if !l.IsUsable(now) {
		return 0
	}

	slots := min(l.CheckoutsAvailable, l.TermsConcurrency)
	if l.CheckoutsLeft != nil {
		slots = min(slots, *l.CheckoutsLeft)
	}

	return max(slots, 0)
}

// consume records one checkout against the license.
func (l *License) consume() {
	if l.CheckoutsLeft != nil && *l.CheckoutsLeft > 0 {
		left := *l.CheckoutsLeft - 1
		l.CheckoutsLeft = &left
	}

	if l.CheckoutsAvailable > 0 {
		l.CheckoutsAvailable--
	}
}

// release gives one concurrent slot back. The lifetime budget never grows.
func (l *License) release() {
	if l.CheckoutsAvailable < l.TermsConcurrency {
		l.CheckoutsAvailable++
	}
}

// LicensePool is the availability ledger for one title within a collection.
type LicensePool struct {
	ID                 uuid.UUID
	CollectionID       uuid.UUID
	Identifier         string
	OpenAccess         bool
	UnlimitedAccess    bool
	LicensesOwned      int
	LicensesAvailable  int
	LicensesReserved   int
	PatronsInHoldQueue int
	LastChangedAt      time.Time
}

// BypassesLicensing reports whether loans of this pool skip license allocation and the hold queue.
func (p LicensePool) BypassesLicensing() bool {
	return p.OpenAccess || p.UnlimitedAccess
}

// Loan is a patron's checkout. LicenseID is nil for open-access and unlimited loans,
// End is nil when the loan never ends.
type Loan struct {
	ID                 uuid.UUID
	PatronID           uuid.UUID
	PoolID             uuid.UUID
	LicenseID          *uuid.UUID
	Start              time.Time
	End                *time.Time
	ExternalIdentifier string
}

// IsActive reports whether the loan has not ended yet.
func (l Loan) IsActive(now time.Time) bool {
	return l.End == nil || l.End.After(now)
}

// Hold is a patron's place in the waiting queue. Position 0 means a slot is reserved for the patron
// until End; a positive position is the patron's rank in the queue.
type Hold struct {
	ID       uuid.UUID
	PatronID uuid.UUID
	PoolID   uuid.UUID
	Start    time.Time
	End      *time.Time
	Position int
}

// IsReserved reports whether a slot is earmarked for this hold.
func (h Hold) IsReserved() bool {
	return h.Position == 0
}

// IsExpired reports whether the hold was reserved and the patron let the reservation run out.
// Queued holds never expire.
func (h Hold) IsExpired(now time.Time) bool {
	return h.Position == 0 && h.End != nil && !h.End.After(now)
}

// QueuedBefore orders holds by start, ties broken by id.
func (h Hold) QueuedBefore(other Hold) bool {
	if !h.Start.Equal(other.Start) {
		return h.Start.Before(other.Start)
	}

	return bytes.Compare(h.ID[:], other.ID[:]) < 0
}

// PatronStanding is the requesting patron's activity across the pool's collection.
type PatronStanding struct {
	PatronID  uuid.UUID
	LoanCount int
	HoldCount int
}
