package postgresengine

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jonathangreen/circulation/circulation"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (circulation.LicensePool, error) {
	var pool circulation.LicensePool

	err := row.Scan(
		&pool.ID,
		&pool.CollectionID,
		&pool.Identifier,
		&pool.OpenAccess,
		&pool.UnlimitedAccess,
		&pool.LicensesOwned,
		&pool.LicensesAvailable,
		&pool.LicensesReserved,
		&pool.PatronsInHoldQueue,
		&pool.LastChangedAt,
	)
	if err != nil {
		return circulation.LicensePool{}, err
	}

	pool.LastChangedAt = pool.LastChangedAt.UTC()

	return pool, nil
}

func scanLicense(row rowScanner) (circulation.License, error) {
	var (
		license       circulation.License
		checkoutsLeft sql.NullInt64
		expires       sql.NullTime
	)

	err := row.Scan(
		&license.ID,
		&license.PoolID,
		&license.Identifier,
		&license.CheckoutURL,
		&license.StatusURL,
		&license.TermsConcurrency,
		&checkoutsLeft,
		&license.CheckoutsAvailable,
		&expires,
	)
	if err != nil {
		return circulation.License{}, err
	}

	license.CheckoutsLeft = intPtr(checkoutsLeft)
	license.Expires = timePtr(expires)

	return license, nil
}

func scanLoan(row rowScanner) (circulation.Loan, error) {
	var (
		loan      circulation.Loan
		licenseID uuid.NullUUID
		end       sql.NullTime
	)

	err := row.Scan(
		&loan.ID,
		&loan.PatronID,
		&loan.PoolID,
		&licenseID,
		&loan.Start,
		&end,
		&loan.ExternalIdentifier,
	)
	if err != nil {
		return circulation.Loan{}, err
	}

	if licenseID.Valid {
		id := licenseID.UUID
		loan.LicenseID = &id
	}
	loan.Start = loan.Start.UTC()
	loan.End = timePtr(end)

	return loan, nil
}

func scanHold(row rowScanner) (circulation.Hold, error) {
	var (
		hold circulation.Hold
		end  sql.NullTime
	)

	err := row.Scan(
		&hold.ID,
		&hold.PatronID,
		&hold.PoolID,
		&hold.Start,
		&end,
		&hold.Position,
	)
	if err != nil {
		return circulation.Hold{}, err
	}

	hold.Start = hold.Start.UTC()
	hold.End = timePtr(end)

	return hold, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}

	i := int(v.Int64)

	return &i
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}

	t := v.Time.UTC()

	return &t
}
