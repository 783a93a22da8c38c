package postgresengine

import (
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	colID                 = "id"
	colPoolID             = "pool_id"
	colPatronID           = "patron_id"
	colCollectionID       = "collection_id"
	colIdentifier         = "identifier"
	colOpenAccess         = "open_access"
	colUnlimitedAccess    = "unlimited_access"
	colLicensesOwned      = "licenses_owned"
	colLicensesAvailable  = "licenses_available"
	colLicensesReserved   = "licenses_reserved"
	colPatronsInHoldQueue = "patrons_in_hold_queue"
	colLastChangedAt      = "last_changed_at"
	colCheckoutURL        = "checkout_url"
	colStatusURL          = "status_url"
	colTermsConcurrency   = "terms_concurrency"
	colCheckoutsLeft      = "checkouts_left"
	colCheckoutsAvailable = "checkouts_available"
	colExpires            = "expires"
	colLicenseID          = "license_id"
	colStartAt            = "start_at"
	colEndAt              = "end_at"
	colExternalIdentifier = "external_identifier"
	colPosition           = "position"
	colVersion            = "version"
	colAppliedAt          = "applied_at"

	aliasLoans     = "l"
	aliasHolds     = "h"
	aliasPools     = "p"
	aliasLoanCount = "loan_count"
	aliasHoldCount = "hold_count"
	tableExcluded  = "excluded"
)

var (
	poolColumns = []string{
		colID, colCollectionID, colIdentifier, colOpenAccess, colUnlimitedAccess, colLicensesOwned,
		colLicensesAvailable, colLicensesReserved, colPatronsInHoldQueue, colLastChangedAt,
	}

	licenseColumns = []string{
		colID, colPoolID, colIdentifier, colCheckoutURL, colStatusURL, colTermsConcurrency,
		colCheckoutsLeft, colCheckoutsAvailable, colExpires,
	}

	loanColumns = []string{
		colID, colPatronID, colPoolID, colLicenseID, colStartAt, colEndAt, colExternalIdentifier,
	}

	holdColumns = []string{
		colID, colPatronID, colPoolID, colStartAt, colEndAt, colPosition,
	}
)

func (s *LedgerStore) buildSelectPoolQuery(poolID uuid.UUID, forUpdate bool) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tables.pools).
		Select(columns(poolColumns)...).
		Where(goqu.C(colID).Eq(poolID.String()))

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, _, err := selectStmt.ToSQL()

	return sqlQuery, err
}

func (s *LedgerStore) buildSelectLicensesQuery(poolID uuid.UUID) (string, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(s.tables.licenses).
		Select(columns(licenseColumns)...).
		Where(goqu.C(colPoolID).Eq(poolID.String())).
		Order(goqu.C(colIdentifier).Asc(), goqu.C(colID).Asc()).
		ToSQL()

	return sqlQuery, err
}

func (s *LedgerStore) buildSelectLoansQuery(column string, value uuid.UUID) (string, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(s.tables.loans).
		Select(columns(loanColumns)...).
		Where(goqu.C(column).Eq(value.String())).
		Order(goqu.C(colStartAt).Asc(), goqu.C(colID).Asc()).
		ToSQL()

	return sqlQuery, err
}

func (s *LedgerStore) buildSelectHoldsQuery(column string, value uuid.UUID) (string, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(s.tables.holds).
		Select(columns(holdColumns)...).
		Where(goqu.C(column).Eq(value.String())).
		Order(goqu.C(colStartAt).Asc(), goqu.C(colID).Asc()).
		ToSQL()

	return sqlQuery, err
}

// buildStandingQuery counts loans still running at now on pools that are not open access and all holds
// of the patron within the collection, in one row.
func (s *LedgerStore) buildStandingQuery(collectionID, patronID uuid.UUID, now time.Time) (string, error) {
	dialect := goqu.Dialect(dialectPostgres)

	loanCount := dialect.
		From(goqu.T(s.tables.loans).As(aliasLoans)).
		Join(goqu.T(s.tables.pools).As(aliasPools), goqu.On(goqu.T(aliasPools).Col(colID).Eq(goqu.T(aliasLoans).Col(colPoolID)))).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.T(aliasLoans).Col(colPatronID).Eq(patronID.String()),
			goqu.T(aliasPools).Col(colCollectionID).Eq(collectionID.String()),
			goqu.T(aliasPools).Col(colOpenAccess).IsFalse(),
			goqu.Or(
				goqu.T(aliasLoans).Col(colEndAt).IsNull(),
				goqu.T(aliasLoans).Col(colEndAt).Gt(now.UTC()),
			),
		)

	holdCount := dialect.
		From(goqu.T(s.tables.holds).As(aliasHolds)).
		Join(goqu.T(s.tables.pools).As(aliasPools), goqu.On(goqu.T(aliasPools).Col(colID).Eq(goqu.T(aliasHolds).Col(colPoolID)))).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.T(aliasHolds).Col(colPatronID).Eq(patronID.String()),
			goqu.T(aliasPools).Col(colCollectionID).Eq(collectionID.String()),
		)

	sqlQuery, _, err := dialect.
		Select(loanCount.As(aliasLoanCount), holdCount.As(aliasHoldCount)).
		ToSQL()

	return sqlQuery, err
}

// buildPersistStatements deletes removed rows first so a patron's replacement loan or hold
// does not collide with the unique (patron_id, pool_id) constraints, then writes the pool row
// and upserts everything still in the state.
func (s *LedgerStore) buildPersistStatements(state *circulation.PoolState) ([]string, error) {
	dialect := goqu.Dialect(dialectPostgres)
	statements := make([]string, 0, 6)

	deletes := []struct {
		table string
		ids   []uuid.UUID
	}{
		{table: s.tables.loans, ids: state.RemovedLoans()},
		{table: s.tables.holds, ids: state.RemovedHolds()},
	}

	for _, d := range deletes {
		if len(d.ids) == 0 {
			continue
		}

		sqlQuery, _, err := dialect.Delete(d.table).Where(goqu.C(colID).In(idStrings(d.ids)...)).ToSQL()
		if err != nil {
			return nil, err
		}
		statements = append(statements, sqlQuery)
	}

	pool := state.Pool
	updatePool, _, err := dialect.
		Update(s.tables.pools).
		Set(goqu.Record{
			colLicensesOwned:      pool.LicensesOwned,
			colLicensesAvailable:  pool.LicensesAvailable,
			colLicensesReserved:   pool.LicensesReserved,
			colPatronsInHoldQueue: pool.PatronsInHoldQueue,
			colLastChangedAt:      pool.LastChangedAt.UTC(),
		}).
		Where(goqu.C(colID).Eq(pool.ID.String())).
		ToSQL()
	if err != nil {
		return nil, err
	}
	statements = append(statements, updatePool)

	upserts := []struct {
		table   string
		columns []string
		rows    []any
	}{
		{table: s.tables.licenses, columns: licenseColumns, rows: licenseRecords(state.Licenses)},
		{table: s.tables.loans, columns: loanColumns, rows: loanRecords(state.Loans)},
		{table: s.tables.holds, columns: holdColumns, rows: holdRecords(state.Holds)},
	}

	for _, u := range upserts {
		if len(u.rows) == 0 {
			continue
		}

		sqlQuery, err := buildUpsert(u.table, u.columns, u.rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, sqlQuery)
	}

	return statements, nil
}

func (s *LedgerStore) buildSaveLicensePoolStatements(pool circulation.LicensePool, licenses []circulation.License) ([]string, error) {
	statements := make([]string, 0, 2)

	upsertPool, err := buildUpsert(s.tables.pools, poolColumns, []any{poolRecord(pool)})
	if err != nil {
		return nil, err
	}
	statements = append(statements, upsertPool)

	if len(licenses) > 0 {
		upsertLicenses, err := buildUpsert(s.tables.licenses, licenseColumns, licenseRecords(licenses))
		if err != nil {
			return nil, err
		}
		statements = append(statements, upsertLicenses)
	}

	return statements, nil
}

// buildUpsert inserts rows and overwrites every column but id on conflict.
func buildUpsert(table string, cols []string, rows []any) (string, error) {
	update := goqu.Record{}
	for _, col := range cols {
		if col == colID {
			continue
		}
		update[col] = goqu.T(tableExcluded).Col(col)
	}

	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		Insert(table).
		Rows(rows...).
		OnConflict(goqu.DoUpdate(colID, update)).
		ToSQL()

	return sqlQuery, err
}

func poolRecord(pool circulation.LicensePool) goqu.Record {
	return goqu.Record{
		colID:                 pool.ID.String(),
		colCollectionID:       pool.CollectionID.String(),
		colIdentifier:         pool.Identifier,
		colOpenAccess:         pool.OpenAccess,
		colUnlimitedAccess:    pool.UnlimitedAccess,
		colLicensesOwned:      pool.LicensesOwned,
		colLicensesAvailable:  pool.LicensesAvailable,
		colLicensesReserved:   pool.LicensesReserved,
		colPatronsInHoldQueue: pool.PatronsInHoldQueue,
		colLastChangedAt:      pool.LastChangedAt.UTC(),
	}
}

func licenseRecords(licenses []circulation.License) []any {
	records := make([]any, 0, len(licenses))
	for _, license := range licenses {
		records = append(records, goqu.Record{
			colID:                 license.ID.String(),
			colPoolID:             license.PoolID.String(),
			colIdentifier:         license.Identifier,
			colCheckoutURL:        license.CheckoutURL,
			colStatusURL:          license.StatusURL,
			colTermsConcurrency:   license.TermsConcurrency,
			colCheckoutsLeft:      nullableInt(license.CheckoutsLeft),
			colCheckoutsAvailable: license.CheckoutsAvailable,
			colExpires:            nullableTime(license.Expires),
		})
	}

	return records
}

func loanRecords(loans []circulation.Loan) []any {
	records := make([]any, 0, len(loans))
	for _, loan := range loans {
		records = append(records, goqu.Record{
			colID:                 loan.ID.String(),
			colPatronID:           loan.PatronID.String(),
			colPoolID:             loan.PoolID.String(),
			colLicenseID:          nullableUUID(loan.LicenseID),
			colStartAt:            loan.Start.UTC(),
			colEndAt:              nullableTime(loan.End),
			colExternalIdentifier: loan.ExternalIdentifier,
		})
	}

	return records
}

func holdRecords(holds []circulation.Hold) []any {
	records := make([]any, 0, len(holds))
	for _, hold := range holds {
		records = append(records, goqu.Record{
			colID:       hold.ID.String(),
			colPatronID: hold.PatronID.String(),
			colPoolID:   hold.PoolID.String(),
			colStartAt:  hold.Start.UTC(),
			colEndAt:    nullableTime(hold.End),
			colPosition: hold.Position,
		})
	}

	return records
}

func columns(names []string) []any {
	cols := make([]any, 0, len(names))
	for _, name := range names {
		cols = append(cols, goqu.C(name))
	}

	return cols
}

func idStrings(ids []uuid.UUID) []any {
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id.String())
	}

	return values
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}

	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}

	return v.UTC()
}

func nullableUUID(v *uuid.UUID) any {
	if v == nil {
		return nil
	}

	return v.String()
}
