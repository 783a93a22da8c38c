package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/postgresengine/internal/adapters"
)

const (
	defaultTablePrefix = "circulation_"
	dialectPostgres    = "postgres"

	actionLoadPool        = "load_pool"
	actionPersistPool     = "persist_pool"
	actionPatronActivity  = "patron_activity"
	actionLoanByID        = "loan_by_id"
	actionPoolByID        = "pool_by_id"
	actionSaveLicensePool = "save_license_pool"
	actionMigrate         = "migrate"
)

type tableNames struct {
	prefix     string
	pools      string
	licenses   string
	loans      string
	holds      string
	migrations string
}

func newTableNames(prefix string) tableNames {
	return tableNames{
		prefix:     prefix,
		pools:      prefix + "license_pools",
		licenses:   prefix + "licenses",
		loans:      prefix + "loans",
		holds:      prefix + "holds",
		migrations: prefix + "schema_migrations",
	}
}

// LedgerStore implements circulation.Ledger on PostgreSQL.
type LedgerStore struct {
	db               adapters.DBAdapter
	tables           tableNames
	clock            circulation.Clock
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

var _ circulation.Ledger = (*LedgerStore)(nil)

// NewLedgerStoreFromPGXPool creates a new LedgerStore using a pgx Pool with optional configuration.
func NewLedgerStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*LedgerStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewPGXAdapter(db), options...)
}

// NewLedgerStoreFromPGXPoolWithReplica creates a new LedgerStore whose read-only queries use replica
// when the context asks for eventual consistency.
func NewLedgerStoreFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*LedgerStore, error) {
	if primary == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewLedgerStoreFromSQLDB creates a new LedgerStore using a sql.DB with optional configuration.
func NewLedgerStoreFromSQLDB(db *sql.DB, options ...Option) (*LedgerStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewSQLAdapter(db), options...)
}

// NewLedgerStoreFromSQLX creates a new LedgerStore using a sqlx.DB with optional configuration.
func NewLedgerStoreFromSQLX(db *sqlx.DB, options ...Option) (*LedgerStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewSQLXAdapter(db), options...)
}

func newLedgerStore(db adapters.DBAdapter, options ...Option) (*LedgerStore, error) {
	store := &LedgerStore{
		db:     db,
		tables: newTableNames(defaultTablePrefix),
		clock:  circulation.NewSystemClock(),
	}

	for _, option := range options {
		if err := option(store); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// WithPoolLock implements circulation.Ledger.
//
// The pool row is locked with SELECT ... FOR UPDATE for the lifetime of a read-committed transaction.
// Everything fn sees is read inside that transaction, so concurrent operations on the same pool
// run one after the other while operations on different pools do not wait for each other.
func (s *LedgerStore) WithPoolLock(ctx context.Context, poolID, patronID uuid.UUID, fn circulation.PoolTxFunc) error {
	ctx, span := s.startSpan(ctx, spanNamePoolLock, map[string]string{spanAttrPoolID: poolID.String()})
	start := time.Now()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		s.logError(ctx, logMsgBeginTxFailed, err)
		s.recordError(ctx, actionLoadPool, errorTypeTransaction)
		s.finishSpan(span, circulation.StatusError, errorTypeTransaction)
		return errors.Join(circulation.ErrBeginTransactionFailed, err)
	}
	defer s.rollback(ctx, tx)

	state, err := s.loadState(ctx, tx, poolID, patronID, s.clock.Now())
	if err != nil {
		s.finishSpan(span, circulation.StatusError, errorType(err))
		return err
	}

	persist, fnErr := fn(ctx, state)
	if !persist {
		s.recordLockDuration(ctx, time.Since(start), false)
		s.finishSpan(span, spanStatus(fnErr), "")
		return fnErr
	}

	if err := s.persistState(ctx, tx, state); err != nil {
		s.finishSpan(span, circulation.StatusError, errorType(err))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, logMsgCommitFailed, err, logAttrPoolID, poolID.String())
		s.recordError(ctx, actionPersistPool, errorTypeTransaction)
		s.finishSpan(span, circulation.StatusError, errorTypeTransaction)
		return errors.Join(circulation.ErrCommitFailed, err)
	}

	s.logOperation(ctx, logMsgStatePersisted,
		logAttrPoolID, poolID.String(),
		logAttrLoans, len(state.Loans),
		logAttrHolds, len(state.Holds),
	)
	s.recordLockDuration(ctx, time.Since(start), true)
	s.finishSpan(span, spanStatus(fnErr), "")

	return fnErr
}

// PatronActivity implements circulation.Ledger.
func (s *LedgerStore) PatronActivity(ctx context.Context, patronID uuid.UUID) (circulation.PatronActivity, error) {
	ctx, span := s.startSpan(ctx, spanNamePatronActivity, map[string]string{spanAttrPatronID: patronID.String()})

	activity := circulation.PatronActivity{PatronID: patronID}

	loans, err := s.loans(ctx, s.db, actionPatronActivity, colPatronID, patronID)
	if err != nil {
		s.finishSpan(span, circulation.StatusError, errorType(err))
		return circulation.PatronActivity{}, err
	}

	holds, err := s.holds(ctx, s.db, actionPatronActivity, colPatronID, patronID)
	if err != nil {
		s.finishSpan(span, circulation.StatusError, errorType(err))
		return circulation.PatronActivity{}, err
	}

	activity.Loans = loans
	activity.Holds = holds
	s.finishSpan(span, circulation.StatusSuccess, "")

	return activity, nil
}

// LoanByID implements circulation.Ledger.
func (s *LedgerStore) LoanByID(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	loans, err := s.loans(ctx, s.db, actionLoanByID, colID, loanID)
	if err != nil {
		return circulation.Loan{}, err
	}

	if len(loans) == 0 {
		return circulation.Loan{}, circulation.ErrLoanNotFound
	}

	return loans[0], nil
}

// PoolByID implements circulation.Ledger.
func (s *LedgerStore) PoolByID(ctx context.Context, poolID uuid.UUID) (circulation.LicensePool, error) {
	return s.pool(ctx, s.db, actionPoolByID, poolID, false)
}

// SaveLicensePool implements circulation.Ledger. Licenses of the pool not in licenses are kept.
func (s *LedgerStore) SaveLicensePool(ctx context.Context, pool circulation.LicensePool, licenses []circulation.License) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		s.logError(ctx, logMsgBeginTxFailed, err)
		s.recordError(ctx, actionSaveLicensePool, errorTypeTransaction)
		return errors.Join(circulation.ErrBeginTransactionFailed, err)
	}
	defer s.rollback(ctx, tx)

	for i := range licenses {
		licenses[i].PoolID = pool.ID
	}

	statements, err := s.buildSaveLicensePoolStatements(pool, licenses)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	for _, statement := range statements {
		if _, err := s.exec(ctx, tx, actionSaveLicensePool, statement); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, logMsgCommitFailed, err, logAttrPoolID, pool.ID.String())
		s.recordError(ctx, actionSaveLicensePool, errorTypeTransaction)
		return errors.Join(circulation.ErrCommitFailed, err)
	}

	s.logOperation(ctx, logMsgPoolSaved, logAttrPoolID, pool.ID.String(), logAttrLicenses, len(licenses))

	return nil
}

func (s *LedgerStore) loadState(
	ctx context.Context,
	tx adapters.DBTx,
	poolID, patronID uuid.UUID,
	now time.Time,
) (*circulation.PoolState, error) {
	pool, err := s.pool(ctx, tx, actionLoadPool, poolID, true)
	if err != nil {
		return nil, err
	}

	licenses, err := s.licenses(ctx, tx, poolID)
	if err != nil {
		return nil, err
	}

	loans, err := s.loans(ctx, tx, actionLoadPool, colPoolID, poolID)
	if err != nil {
		return nil, err
	}

	holds, err := s.holds(ctx, tx, actionLoadPool, colPoolID, poolID)
	if err != nil {
		return nil, err
	}

	standing, err := s.standing(ctx, tx, pool.CollectionID, patronID, now)
	if err != nil {
		return nil, err
	}

	return circulation.NewPoolState(pool, licenses, loans, holds, standing), nil
}

func (s *LedgerStore) persistState(ctx context.Context, tx adapters.DBTx, state *circulation.PoolState) error {
	statements, err := s.buildPersistStatements(state)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err, logAttrPoolID, state.Pool.ID.String())
		return errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	for _, statement := range statements {
		if _, err := s.exec(ctx, tx, actionPersistPool, statement); err != nil {
			return err
		}
	}

	return nil
}

func (s *LedgerStore) pool(
	ctx context.Context,
	querier adapters.Querier,
	action string,
	poolID uuid.UUID,
	forUpdate bool,
) (circulation.LicensePool, error) {
	sqlQuery, err := s.buildSelectPoolQuery(poolID, forUpdate)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return circulation.LicensePool{}, errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	rows, err := s.query(ctx, querier, action, sqlQuery)
	if err != nil {
		return circulation.LicensePool{}, err
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return circulation.LicensePool{}, errors.Join(circulation.ErrQueryingLedgerFailed, err)
		}

		return circulation.LicensePool{}, circulation.ErrPoolNotFound
	}

	pool, err := scanPool(rows)
	if err != nil {
		s.logError(ctx, logMsgScanRowFailed, err)
		return circulation.LicensePool{}, errors.Join(circulation.ErrScanningDBRowFailed, err)
	}

	return pool, nil
}

func (s *LedgerStore) licenses(ctx context.Context, querier adapters.Querier, poolID uuid.UUID) ([]circulation.License, error) {
	sqlQuery, err := s.buildSelectLicensesQuery(poolID)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	rows, err := s.query(ctx, querier, actionLoadPool, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	var licenses []circulation.License
	for rows.Next() {
		license, err := scanLicense(rows)
		if err != nil {
			s.logError(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(circulation.ErrScanningDBRowFailed, err)
		}
		licenses = append(licenses, license)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(circulation.ErrQueryingLedgerFailed, err)
	}

	return licenses, nil
}

func (s *LedgerStore) loans(
	ctx context.Context,
	querier adapters.Querier,
	action string,
	column string,
	value uuid.UUID,
) ([]circulation.Loan, error) {
	sqlQuery, err := s.buildSelectLoansQuery(column, value)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	rows, err := s.query(ctx, querier, action, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	var loans []circulation.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			s.logError(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(circulation.ErrScanningDBRowFailed, err)
		}
		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(circulation.ErrQueryingLedgerFailed, err)
	}

	return loans, nil
}

func (s *LedgerStore) holds(
	ctx context.Context,
	querier adapters.Querier,
	action string,
	column string,
	value uuid.UUID,
) ([]circulation.Hold, error) {
	sqlQuery, err := s.buildSelectHoldsQuery(column, value)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	rows, err := s.query(ctx, querier, action, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	var holds []circulation.Hold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			s.logError(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(circulation.ErrScanningDBRowFailed, err)
		}
		holds = append(holds, hold)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(circulation.ErrQueryingLedgerFailed, err)
	}

	return holds, nil
}

// standing counts the patron's loans on licensed pools and all holds within the collection.
func (s *LedgerStore) standing(
	ctx context.Context,
	querier adapters.Querier,
	collectionID, patronID uuid.UUID,
	now time.Time,
) (circulation.PatronStanding, error) {
	sqlQuery, err := s.buildStandingQuery(collectionID, patronID, now)
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return circulation.PatronStanding{}, errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	rows, err := s.query(ctx, querier, actionLoadPool, sqlQuery)
	if err != nil {
		return circulation.PatronStanding{}, err
	}
	defer s.closeRows(ctx, rows)

	standing := circulation.PatronStanding{PatronID: patronID}
	if rows.Next() {
		if err := rows.Scan(&standing.LoanCount, &standing.HoldCount); err != nil {
			s.logError(ctx, logMsgScanRowFailed, err)
			return circulation.PatronStanding{}, errors.Join(circulation.ErrScanningDBRowFailed, err)
		}
	}

	if err := rows.Err(); err != nil {
		return circulation.PatronStanding{}, errors.Join(circulation.ErrQueryingLedgerFailed, err)
	}

	return standing, nil
}

func (s *LedgerStore) query(ctx context.Context, querier adapters.Querier, action, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := querier.Query(ctx, sqlQuery)
	duration := time.Since(start)

	s.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		s.recordError(ctx, action, errorTypeQuery)
		s.recordQueryDuration(ctx, action, circulation.StatusError, duration)
		return nil, errors.Join(circulation.ErrQueryingLedgerFailed, err)
	}

	s.recordQueryDuration(ctx, action, circulation.StatusSuccess, duration)

	return rows, nil
}

func (s *LedgerStore) exec(ctx context.Context, querier adapters.Querier, action, sqlQuery string) (adapters.DBResult, error) {
	start := time.Now()
	result, err := querier.Exec(ctx, sqlQuery)
	duration := time.Since(start)

	s.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		s.recordError(ctx, action, errorTypeExec)
		s.recordQueryDuration(ctx, action, circulation.StatusError, duration)
		return nil, errors.Join(circulation.ErrPersistingLedgerFailed, err)
	}

	s.recordQueryDuration(ctx, action, circulation.StatusSuccess, duration)

	return result, nil
}

func (s *LedgerStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, err)
	}
}

// rollback is deferred after BeginTx. After a successful commit the drivers report that the
// transaction is already done, which is not worth a warning.
func (s *LedgerStore) rollback(ctx context.Context, tx adapters.DBTx) {
	err := tx.Rollback(context.WithoutCancel(ctx))
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return
	}

	s.logWarn(ctx, logMsgRollbackFailed, err)
}
