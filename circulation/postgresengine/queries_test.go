package postgresengine

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
)

func newTestStore() *LedgerStore {
	return &LedgerStore{tables: newTableNames("lib_")}
}

func Test_BuildSelectPoolQuery_LocksOnlyWhenAsked(t *testing.T) {
	testCases := []struct {
		name      string
		forUpdate bool
	}{
		{name: "for update", forUpdate: true},
		{name: "plain read", forUpdate: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			store := newTestStore()
			poolID := uuid.New()

			// act
			sqlQuery, err := store.buildSelectPoolQuery(poolID, tc.forUpdate)

			// assert
			require.NoError(t, err)
			assert.Contains(t, sqlQuery, `FROM "lib_license_pools"`)
			assert.Contains(t, sqlQuery, `"id" = '`+poolID.String()+`'`)
			assert.Equal(t, tc.forUpdate, strings.Contains(sqlQuery, "FOR UPDATE"))
		})
	}
}

func Test_BuildSelectLoansQuery_OrdersByStartThenID(t *testing.T) {
	// arrange
	store := newTestStore()
	patronID := uuid.New()

	// act
	sqlQuery, err := store.buildSelectLoansQuery(colPatronID, patronID)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "lib_loans" WHERE ("patron_id" = '`+patronID.String()+`')`)
	assert.Contains(t, sqlQuery, `ORDER BY "start_at" ASC, "id" ASC`)
}

func Test_BuildStandingQuery_CountsRunningLoansOutsideOpenAccess(t *testing.T) {
	// arrange
	store := newTestStore()

	// act
	sqlQuery, err := store.buildStandingQuery(uuid.New(), uuid.New(), time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"p"."open_access" IS FALSE`)
	assert.Contains(t, sqlQuery, `"l"."end_at" IS NULL`)
	assert.Contains(t, sqlQuery, `"l"."end_at" > '2026-03-02T12:00:00Z'`)
	assert.Contains(t, sqlQuery, `AS "loan_count"`)
	assert.Contains(t, sqlQuery, `AS "hold_count"`)
	assert.Contains(t, sqlQuery, `"lib_holds" AS "h"`)
}

func Test_BuildPersistStatements_DeletesBeforeUpserting(t *testing.T) {
	// arrange
	store := newTestStore()
	poolID := uuid.New()
	licenseID := uuid.New()
	oldLoan := circulation.Loan{ID: uuid.New(), PatronID: uuid.New(), PoolID: poolID, LicenseID: &licenseID, Start: time.Now()}
	newLoan := circulation.Loan{ID: uuid.New(), PatronID: oldLoan.PatronID, PoolID: poolID, Start: time.Now()}

	state := circulation.NewPoolState(
		circulation.LicensePool{ID: poolID, LastChangedAt: time.Now()},
		[]circulation.License{{ID: licenseID, PoolID: poolID, Identifier: "l-1", TermsConcurrency: 1}},
		[]circulation.Loan{oldLoan},
		nil,
		circulation.PatronStanding{},
	)
	_, removed := state.RemoveLoan(oldLoan.ID)
	require.True(t, removed)
	state.AddLoan(newLoan)

	// act
	statements, err := store.buildPersistStatements(state)

	// assert
	require.NoError(t, err)
	require.Len(t, statements, 4)
	assert.True(t, strings.HasPrefix(statements[0], `DELETE FROM "lib_loans"`))
	assert.Contains(t, statements[0], oldLoan.ID.String())
	assert.True(t, strings.HasPrefix(statements[1], `UPDATE "lib_license_pools"`))
	assert.True(t, strings.HasPrefix(statements[2], `INSERT INTO "lib_licenses"`))
	assert.True(t, strings.HasPrefix(statements[3], `INSERT INTO "lib_loans"`))
	assert.Contains(t, statements[3], newLoan.ID.String())
	assert.Contains(t, statements[3], "NULL")
}

func Test_BuildUpsert_UpdatesEveryColumnButID(t *testing.T) {
	// arrange
	pool := circulation.LicensePool{ID: uuid.New(), CollectionID: uuid.New(), Identifier: "urn:isbn:1", LastChangedAt: time.Now()}

	// act
	sqlQuery, err := buildUpsert("lib_license_pools", poolColumns, []any{poolRecord(pool)})

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `ON CONFLICT (id) DO UPDATE SET`)
	assert.Contains(t, sqlQuery, `"licenses_available"="excluded"."licenses_available"`)
	assert.NotContains(t, sqlQuery, `"id"="excluded"."id"`)
}

func Test_LoadMigrations_SubstitutesPrefix(t *testing.T) {
	// act
	migrations, err := loadMigrations("lib_")

	// assert
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "0001_create_ledger", migrations[0].version)
	assert.Contains(t, migrations[0].statement, "CREATE TABLE IF NOT EXISTS lib_license_pools")
	assert.NotContains(t, migrations[0].statement, prefixPlaceholder)
}
