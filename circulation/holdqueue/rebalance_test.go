package holdqueue_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
)

func Test_Rebalance_NoHolds_ReleasesReservedSlot(t *testing.T) {
	// arrange
	now := time.Now()
	lastUpdate := now.Add(-5 * time.Minute)
	state := aPool().withLicense(1, 1).withCounters(1, 0, 1, 0).build()
	state.Pool.LastChangedAt = lastUpdate

	// act
	summary := holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 1, state.Pool.LicensesAvailable)
	assert.Equal(t, 0, state.Pool.LicensesReserved)
	assert.Equal(t, 0, state.Pool.PatronsInHoldQueue)
	assert.True(t, summary.Changed)
	assert.True(t, state.Pool.LastChangedAt.After(lastUpdate))
}

func Test_Rebalance_ReservesForNextHoldAndAddedLicenses(t *testing.T) {
	// arrange
	now := time.Now()
	state := aPool().
		withLicense(1, 1).
		withCounters(1, 1, 0, 0).
		withHold(now, nil, 1).
		withHold(now.Add(day), nil, 2).
		build()
	first, later := state.Holds[0].ID, state.Holds[1].ID

	// act
	holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 0, state.Pool.LicensesAvailable)
	assert.Equal(t, 1, state.Pool.LicensesReserved)
	assert.Equal(t, 2, state.Pool.PatronsInHoldQueue)
	assert.Equal(t, 0, holdByID(state, first).Position)
	require.NotNil(t, holdByID(state, first).End)
	assert.True(t, now.Add(reservationPeriod).Equal(*holdByID(state, first).End))
	assert.Equal(t, 2, holdByID(state, later).Position)
	assert.Nil(t, holdByID(state, later).End)

	// arrange: a second license arrives
	state.Licenses = append(state.Licenses, circulation.License{ID: uuid.New(), Identifier: "second", TermsConcurrency: 1, CheckoutsAvailable: 1})

	// act
	holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 0, state.Pool.LicensesAvailable)
	assert.Equal(t, 2, state.Pool.LicensesReserved)
	assert.Equal(t, 0, holdByID(state, later).Position)

	// arrange: a third license arrives
	state.Licenses = append(state.Licenses, circulation.License{ID: uuid.New(), Identifier: "third", TermsConcurrency: 1, CheckoutsAvailable: 1})

	// act
	holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 1, state.Pool.LicensesAvailable)
	assert.Equal(t, 2, state.Pool.LicensesReserved)
	assert.Equal(t, 2, state.Pool.PatronsInHoldQueue)

	// arrange: the holds are released
	state.RemoveHold(first)
	state.RemoveHold(later)

	// act
	holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 3, state.Pool.LicensesAvailable)
	assert.Equal(t, 0, state.Pool.LicensesReserved)
	assert.Equal(t, 0, state.Pool.PatronsInHoldQueue)
}

func Test_Rebalance_ReservesMultipleSlotsAtOnce(t *testing.T) {
	// arrange
	now := time.Now()
	builder := aPool().withLicense(1, 0).withLicense(1, 0).withLicense(1, 0)
	builder.withLoan(nil).withLoan(nil).withLoan(nil)
	builder.withLicense(2, 2)
	for i := 0; i < 3; i++ {
		builder.withHold(now.Add(-time.Duration(3-i)*day), nil, i+1)
	}
	state := builder.build()
	holds := append([]circulation.Hold(nil), state.Holds...)

	// act
	holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 2, state.Pool.LicensesReserved)
	assert.Equal(t, 0, state.Pool.LicensesAvailable)
	assert.Equal(t, 3, state.Pool.PatronsInHoldQueue)
	assert.Equal(t, 0, holdByID(state, holds[0].ID).Position)
	assert.Equal(t, 0, holdByID(state, holds[1].ID).Position)
	assert.Equal(t, 3, holdByID(state, holds[2].ID).Position)
	assert.NoError(t, state.CheckInvariants(now))
}

func Test_Rebalance_CheckinHonorsWaitingHold(t *testing.T) {
	// arrange
	now := time.Now()
	state := aPool().
		withLicense(1, 0).
		withCounters(1, 0, 0, 1).
		withLoan(at(now.Add(day))).
		withHold(now.Add(-day), nil, 1).
		build()
	holdID := state.Holds[0].ID

	// act
	state.RemoveLoan(state.Loans[0].ID)
	holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 0, state.Pool.LicensesAvailable)
	assert.Equal(t, 1, state.Pool.LicensesReserved)
	assert.Equal(t, 1, state.Pool.PatronsInHoldQueue)
	assert.Equal(t, 0, holdByID(state, holdID).Position)
}

func Test_Rebalance_DeletesExpiredReservationAndPromotesNext(t *testing.T) {
	// arrange
	now := time.Now()
	state := aPool().
		withLicense(1, 1).
		withCounters(1, 0, 1, 2).
		withHold(now.Add(-5*day), at(now.Add(-time.Hour)), 0).
		withHold(now.Add(-4*day), nil, 2).
		build()
	expiredID, nextID := state.Holds[0].ID, state.Holds[1].ID

	// act
	summary := holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 1, summary.Promoted)
	assert.Equal(t, []uuid.UUID{expiredID}, state.RemovedHolds())
	assert.Len(t, state.Holds, 1)
	assert.Equal(t, 0, holdByID(state, nextID).Position)
	assert.Equal(t, 1, state.Pool.LicensesReserved)
	assert.Equal(t, 1, state.Pool.PatronsInHoldQueue)
}

func Test_Rebalance_DemotesLatestReservationWhenSlotsShrink(t *testing.T) {
	// arrange
	now := time.Now()
	end := now.Add(2 * day)
	state := aPool().
		withLicense(2, 1).
		withCounters(2, 0, 2, 2).
		withHold(now.Add(-2*day), at(end), 0).
		withHold(now.Add(-day), at(end), 0).
		build()
	earlier, latest := state.Holds[0].ID, state.Holds[1].ID

	// act
	summary := holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.Equal(t, 1, summary.Demoted)
	assert.Equal(t, 0, holdByID(state, earlier).Position)
	assert.Equal(t, 2, holdByID(state, latest).Position)
	assert.Nil(t, holdByID(state, latest).End)
	assert.Equal(t, 1, state.Pool.LicensesReserved)
	assert.Equal(t, 0, state.Pool.LicensesAvailable)
}

func Test_Rebalance_UnchangedPool_ReportsNoChange(t *testing.T) {
	// arrange
	now := time.Now()
	lastUpdate := now.Add(-time.Hour)
	state := aPool().withLicense(2, 2).withCounters(2, 2, 0, 0).build()
	state.Pool.LastChangedAt = lastUpdate

	// act
	summary := holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.False(t, summary.Changed)
	assert.Equal(t, lastUpdate, state.Pool.LastChangedAt)
}

func Test_Rebalance_OpenAccessPool_IsLeftAlone(t *testing.T) {
	// arrange
	now := time.Now()
	state := aPool().withHold(now, nil, 1).build()
	state.Pool.OpenAccess = true

	// act
	summary := holdqueue.Rebalance(state, now, reservationPeriod)

	// assert
	assert.False(t, summary.Changed)
	assert.Equal(t, 1, state.Holds[0].Position)
}

func Test_Summary_Merge_AddsChangesAndKeepsLaterCounters(t *testing.T) {
	// arrange
	earlier := holdqueue.Summary{Expired: 1, Promoted: 1, Available: 1, Changed: true}
	later := holdqueue.Summary{Promoted: 1, Demoted: 1, Owned: 2, Reserved: 2, Queued: 3}

	// act
	merged := earlier.Merge(later)

	// assert
	assert.Equal(t, holdqueue.Summary{
		Expired:  1,
		Promoted: 2,
		Demoted:  1,
		Owned:    2,
		Reserved: 2,
		Queued:   3,
		Changed:  true,
	}, merged)
}
