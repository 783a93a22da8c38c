package circulation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
)

func Test_PoolState_AddLoan_ConsumesLicenseSlot(t *testing.T) {
	// arrange
	now := time.Now()
	license := circulation.License{ID: uuid.New(), Identifier: "a", TermsConcurrency: 6, CheckoutsAvailable: 6, CheckoutsLeft: intPtr(30)}
	state := circulation.NewPoolState(circulation.LicensePool{ID: uuid.New()}, []circulation.License{license}, nil, nil, circulation.PatronStanding{})

	// act
	state.AddLoan(circulation.Loan{ID: uuid.New(), PatronID: uuid.New(), LicenseID: &license.ID, Start: now})

	// assert
	stored, ok := state.LicenseByID(license.ID)
	require.True(t, ok)
	assert.Equal(t, 5, stored.CheckoutsAvailable)
	assert.Equal(t, 29, *stored.CheckoutsLeft)
	assert.Len(t, state.Loans, 1)
}

func Test_PoolState_RemoveLoan_ReleasesSlotButNotCheckoutsLeft(t *testing.T) {
	// arrange
	now := time.Now()
	license := circulation.License{ID: uuid.New(), TermsConcurrency: 7, CheckoutsAvailable: 6, CheckoutsLeft: intPtr(10)}
	loan := circulation.Loan{ID: uuid.New(), PatronID: uuid.New(), LicenseID: &license.ID, Start: now}
	state := circulation.NewPoolState(circulation.LicensePool{}, []circulation.License{license}, []circulation.Loan{loan}, nil, circulation.PatronStanding{})

	// act
	removed, ok := state.RemoveLoan(loan.ID)

	// assert
	require.True(t, ok)
	assert.Equal(t, loan.ID, removed.ID)
	stored, _ := state.LicenseByID(license.ID)
	assert.Equal(t, 7, stored.CheckoutsAvailable)
	assert.Equal(t, 10, *stored.CheckoutsLeft)
	assert.Empty(t, state.Loans)
	assert.Equal(t, []uuid.UUID{loan.ID}, state.RemovedLoans())
}

func Test_PoolState_RemoveLoan_NeverExceedsConcurrency(t *testing.T) {
	// arrange
	license := circulation.License{ID: uuid.New(), TermsConcurrency: 1, CheckoutsAvailable: 1}
	loan := circulation.Loan{ID: uuid.New(), PatronID: uuid.New(), LicenseID: &license.ID}
	state := circulation.NewPoolState(circulation.LicensePool{}, []circulation.License{license}, []circulation.Loan{loan}, nil, circulation.PatronStanding{})

	// act
	state.RemoveLoan(loan.ID)

	// assert
	stored, _ := state.LicenseByID(license.ID)
	assert.Equal(t, 1, stored.CheckoutsAvailable)
}

func Test_PoolState_LicenseForCheckout_PicksLowestIdentifierWithFreeSlot(t *testing.T) {
	// arrange
	now := time.Now()
	full := circulation.License{ID: uuid.New(), Identifier: "a", TermsConcurrency: 1, CheckoutsAvailable: 0}
	expired := circulation.License{ID: uuid.New(), Identifier: "b", TermsConcurrency: 1, CheckoutsAvailable: 1, Expires: timePtr(now.Add(-time.Hour))}
	second := circulation.License{ID: uuid.New(), Identifier: "d", TermsConcurrency: 1, CheckoutsAvailable: 1}
	first := circulation.License{ID: uuid.New(), Identifier: "c", TermsConcurrency: 1, CheckoutsAvailable: 1}
	state := circulation.NewPoolState(circulation.LicensePool{}, []circulation.License{second, full, expired, first}, nil, nil, circulation.PatronStanding{})

	// act
	license, ok := state.LicenseForCheckout(now)

	// assert
	require.True(t, ok)
	assert.Equal(t, first.ID, license.ID)
}

func Test_PoolState_OwnedSlots_CountsLoansOnExhaustedLicenses(t *testing.T) {
	// arrange
	now := time.Now()
	exhausted := circulation.License{ID: uuid.New(), Identifier: "a", TermsConcurrency: 3, CheckoutsLeft: intPtr(0)}
	usable := circulation.License{ID: uuid.New(), Identifier: "b", TermsConcurrency: 2, CheckoutsAvailable: 2}
	loan := circulation.Loan{ID: uuid.New(), PatronID: uuid.New(), LicenseID: &exhausted.ID, End: timePtr(now.Add(time.Hour))}
	ended := circulation.Loan{ID: uuid.New(), PatronID: uuid.New(), LicenseID: &exhausted.ID, End: timePtr(now.Add(-time.Hour))}
	state := circulation.NewPoolState(circulation.LicensePool{}, []circulation.License{exhausted, usable}, []circulation.Loan{loan, ended}, nil, circulation.PatronStanding{})

	// act & assert
	assert.Equal(t, 3, state.OwnedSlots(now))
	assert.Equal(t, 2, state.FreeSlots(now))
}

func Test_PoolState_ActiveHolds_SkipsExpiredReservationsAndSorts(t *testing.T) {
	// arrange
	now := time.Now()
	expired := circulation.Hold{ID: uuid.New(), PatronID: uuid.New(), Start: now.Add(-4 * time.Hour), Position: 0, End: timePtr(now.Add(-time.Minute))}
	late := circulation.Hold{ID: uuid.New(), PatronID: uuid.New(), Start: now.Add(-time.Hour), Position: 2}
	early := circulation.Hold{ID: uuid.New(), PatronID: uuid.New(), Start: now.Add(-3 * time.Hour), Position: 1}
	state := circulation.NewPoolState(circulation.LicensePool{}, nil, nil, []circulation.Hold{late, expired, early}, circulation.PatronStanding{})

	// act
	active := state.ActiveHolds(now)

	// assert
	require.Len(t, active, 2)
	assert.Equal(t, early.ID, active[0].ID)
	assert.Equal(t, late.ID, active[1].ID)
}

func Test_PoolState_CheckInvariants(t *testing.T) {
	now := time.Now()
	patronID := uuid.New()

	testCases := []struct {
		name    string
		state   *circulation.PoolState
		wantErr bool
	}{
		{
			name: "counters within owned",
			state: circulation.NewPoolState(
				circulation.LicensePool{LicensesOwned: 2, LicensesAvailable: 1},
				nil,
				[]circulation.Loan{{ID: uuid.New(), PatronID: patronID}},
				nil,
				circulation.PatronStanding{},
			),
		},
		{
			name: "counters exceed owned",
			state: circulation.NewPoolState(
				circulation.LicensePool{LicensesOwned: 1, LicensesAvailable: 1},
				nil,
				[]circulation.Loan{{ID: uuid.New(), PatronID: patronID}},
				nil,
				circulation.PatronStanding{},
			),
			wantErr: true,
		},
		{
			name: "loan and hold for the same patron",
			state: circulation.NewPoolState(
				circulation.LicensePool{LicensesOwned: 1},
				nil,
				[]circulation.Loan{{ID: uuid.New(), PatronID: patronID}},
				[]circulation.Hold{{ID: uuid.New(), PatronID: patronID, Position: 1}},
				circulation.PatronStanding{},
			),
			wantErr: true,
		},
		{
			name: "negative available",
			state: circulation.NewPoolState(
				circulation.LicensePool{LicensesOwned: 1, LicensesAvailable: -1},
				nil, nil, nil,
				circulation.PatronStanding{},
			),
			wantErr: true,
		},
		{
			name: "open access pools are not counted",
			state: circulation.NewPoolState(
				circulation.LicensePool{OpenAccess: true},
				nil,
				[]circulation.Loan{{ID: uuid.New(), PatronID: patronID}},
				nil,
				circulation.PatronStanding{},
			),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.CheckInvariants(now)

			if tc.wantErr {
				assert.ErrorIs(t, err, circulation.ErrInvariantViolated)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func Test_PatronActivity_PoolIDs(t *testing.T) {
	// arrange
	poolA := uuid.New()
	poolB := uuid.New()
	activity := circulation.PatronActivity{
		Loans: []circulation.Loan{{PoolID: poolA}},
		Holds: []circulation.Hold{{PoolID: poolB}, {PoolID: poolA}},
	}

	// act & assert
	assert.Equal(t, []uuid.UUID{poolA, poolB}, activity.PoolIDs())
}
