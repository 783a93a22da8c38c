// Package fixtures builds ledger rows and collection settings for tests.
package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
)

// Now is the instant fixtures are built around.
var Now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// Day is 24 hours.
const Day = 24 * time.Hour

// LicenseOption customizes a license.
type LicenseOption func(*circulation.License)

// NewLicense returns a license with concurrency free slots and an unlimited checkout budget.
func NewLicense(checkoutURL string, concurrency int, options ...LicenseOption) circulation.License {
	id := uuid.New()

	license := circulation.License{
		ID:                 id,
		Identifier:         "urn:uuid:" + id.String(),
		CheckoutURL:        checkoutURL,
		StatusURL:          checkoutURL + "/status",
		TermsConcurrency:   concurrency,
		CheckoutsAvailable: concurrency,
	}

	for _, option := range options {
		option(&license)
	}

	return license
}

// WithIdentifier sets the license identifier, which decides allocation order.
func WithIdentifier(identifier string) LicenseOption {
	return func(l *circulation.License) {
		l.Identifier = identifier
	}
}

// WithCheckoutsLeft limits the lifetime checkout budget.
func WithCheckoutsLeft(left int) LicenseOption {
	return func(l *circulation.License) {
		l.CheckoutsLeft = &left
	}
}

// WithCheckoutsAvailable overrides the free concurrent slots.
func WithCheckoutsAvailable(available int) LicenseOption {
	return func(l *circulation.License) {
		l.CheckoutsAvailable = available
	}
}

// WithExpires sets the license expiry.
func WithExpires(expires time.Time) LicenseOption {
	return func(l *circulation.License) {
		l.Expires = &expires
	}
}

// PoolOption customizes a pool.
type PoolOption func(*circulation.LicensePool)

// OpenAccess marks the pool as open access.
func OpenAccess() PoolOption {
	return func(p *circulation.LicensePool) {
		p.OpenAccess = true
	}
}

// UnlimitedAccess marks the pool as unlimited access.
func UnlimitedAccess() PoolOption {
	return func(p *circulation.LicensePool) {
		p.UnlimitedAccess = true
	}
}

// NewPool returns a pool whose counters match licenses, all of them free.
func NewPool(collectionID uuid.UUID, licenses []circulation.License, options ...PoolOption) (circulation.LicensePool, []circulation.License) {
	poolID := uuid.New()
	pool := circulation.LicensePool{
		ID:            poolID,
		CollectionID:  collectionID,
		Identifier:    "urn:uuid:" + poolID.String(),
		LastChangedAt: Now.Add(-Day),
	}

	for _, option := range options {
		option(&pool)
	}

	owned := make([]circulation.License, 0, len(licenses))
	for _, license := range licenses {
		license.PoolID = pool.ID
		owned = append(owned, license)

		if license.IsUsable(Now) {
			pool.LicensesOwned += license.TermsConcurrency
			pool.LicensesAvailable += license.FreeSlots(Now)
		}
	}

	return pool, owned
}

// Seed saves the pool and its licenses and fails the test on error.
func Seed(t testing.TB, ledger circulation.Ledger, pool circulation.LicensePool, licenses []circulation.License) {
	t.Helper()

	if err := ledger.SaveLicensePool(context.Background(), pool, licenses); err != nil {
		t.Fatalf("seeding pool %s: %v", pool.ID, err)
	}
}

// Settings returns default collection settings for a library.
func Settings() circulation.CollectionSettings {
	return circulation.DefaultCollectionSettings("library")
}

// Clock returns a fixed clock at Now plus offset.
func Clock(offset time.Duration) circulation.Clock {
	return circulation.NewFixedClock(Now.Add(offset))
}

// Mutate runs fn on the locked state of the pool and persists the result, for seeding loans and holds.
func Mutate(t testing.TB, ledger circulation.Ledger, poolID uuid.UUID, fn func(state *circulation.PoolState)) {
	t.Helper()

	err := ledger.WithPoolLock(context.Background(), poolID, uuid.New(),
		func(_ context.Context, state *circulation.PoolState) (bool, error) {
			fn(state)
			return true, nil
		},
	)
	if err != nil {
		t.Fatalf("mutating pool %s: %v", poolID, err)
	}
}

// Inspect loads the state of the pool as the given patron sees it, without persisting anything.
func Inspect(t testing.TB, ledger circulation.Ledger, poolID, patronID uuid.UUID) *circulation.PoolState {
	t.Helper()

	var snapshot *circulation.PoolState
	err := ledger.WithPoolLock(context.Background(), poolID, patronID,
		func(_ context.Context, state *circulation.PoolState) (bool, error) {
			snapshot = state
			return false, nil
		},
	)
	if err != nil {
		t.Fatalf("inspecting pool %s: %v", poolID, err)
	}

	return snapshot
}

// ActiveLoan returns a license-backed loan of patronID ending at end.
func ActiveLoan(patronID uuid.UUID, license circulation.License, end time.Time, externalIdentifier string) circulation.Loan {
	licenseID := license.ID

	return circulation.Loan{
		ID:                 uuid.New(),
		PatronID:           patronID,
		PoolID:             license.PoolID,
		LicenseID:          &licenseID,
		Start:              Now.Add(-Day),
		End:                &end,
		ExternalIdentifier: externalIdentifier,
	}
}

// QueuedHold returns a hold of patronID that started at start, queued at position.
func QueuedHold(patronID, poolID uuid.UUID, start time.Time, position int) circulation.Hold {
	return circulation.Hold{
		ID:       uuid.New(),
		PatronID: patronID,
		PoolID:   poolID,
		Start:    start,
		Position: position,
	}
}

// ReservedHold returns a hold of patronID holding a reservation until end.
func ReservedHold(patronID, poolID uuid.UUID, start, end time.Time) circulation.Hold {
	return circulation.Hold{
		ID:       uuid.New(),
		PatronID: patronID,
		PoolID:   poolID,
		Start:    start,
		End:      &end,
		Position: 0,
	}
}
