package holdqueue_test

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	day               = 24 * time.Hour
	loanDuration      = 6 * day
	reservationPeriod = 3 * day
)

type poolBuilder struct {
	poolID   uuid.UUID
	pool     circulation.LicensePool
	licenses []circulation.License
	loans    []circulation.Loan
	holds    []circulation.Hold
}

func aPool() *poolBuilder {
	poolID := uuid.New()
	return &poolBuilder{poolID: poolID, pool: circulation.LicensePool{ID: poolID}}
}

func (b *poolBuilder) withLicense(concurrency, available int) *poolBuilder {
	b.licenses = append(b.licenses, circulation.License{
		ID:                 uuid.New(),
		PoolID:             b.poolID,
		Identifier:         uuid.NewString(),
		TermsConcurrency:   concurrency,
		CheckoutsAvailable: available,
	})

	return b
}

func (b *poolBuilder) withLoan(end *time.Time) *poolBuilder {
	var licenseID *uuid.UUID
	if len(b.licenses) > 0 {
		licenseID = &b.licenses[0].ID
	}

	b.loans = append(b.loans, circulation.Loan{
		ID:        uuid.New(),
		PatronID:  uuid.New(),
		PoolID:    b.poolID,
		LicenseID: licenseID,
		Start:     time.Now().Add(-time.Hour),
		End:       end,
	})

	return b
}

func (b *poolBuilder) withHold(start time.Time, end *time.Time, position int) *poolBuilder {
	b.holds = append(b.holds, circulation.Hold{
		ID:       uuid.New(),
		PatronID: uuid.New(),
		PoolID:   b.poolID,
		Start:    start,
		End:      end,
		Position: position,
	})

	return b
}

func (b *poolBuilder) withCounters(owned, available, reserved, queued int) *poolBuilder {
	b.pool.LicensesOwned = owned
	b.pool.LicensesAvailable = available
	b.pool.LicensesReserved = reserved
	b.pool.PatronsInHoldQueue = queued

	return b
}

func (b *poolBuilder) build() *circulation.PoolState {
	return circulation.NewPoolState(b.pool, b.licenses, b.loans, b.holds, circulation.PatronStanding{})
}

func at(t time.Time) *time.Time { return &t }

func holdByID(state *circulation.PoolState, id uuid.UUID) circulation.Hold {
	for _, hold := range state.Holds {
		if hold.ID == id {
			return hold
		}
	}

	panic("hold not found: " + id.String())
}
