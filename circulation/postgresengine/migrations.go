package postgresengine

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/postgresengine/internal/adapters"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockKey identifies the advisory lock held while migrations run.
const migrationLockKey = 7_426_194_311

const prefixPlaceholder = "{prefix}"

type migration struct {
	version   string
	statement string
}

// Migrate applies the embedded schema migrations that have not been applied yet.
// Concurrent callers are serialized by a transaction-scoped advisory lock.
func (s *LedgerStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(s.tables.prefix)
	if err != nil {
		return errors.Join(circulation.ErrMigrationFailed, err)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return errors.Join(circulation.ErrMigrationFailed, circulation.ErrBeginTransactionFailed, err)
	}
	defer s.rollback(ctx, tx)

	statements := []string{
		fmt.Sprintf("SELECT pg_advisory_xact_lock(%d)", migrationLockKey),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (version text PRIMARY KEY, applied_at timestamptz NOT NULL)",
			s.tables.migrations,
		),
	}

	for _, statement := range statements {
		if _, err := s.exec(ctx, tx, actionMigrate, statement); err != nil {
			return errors.Join(circulation.ErrMigrationFailed, err)
		}
	}

	applied, err := s.appliedMigrations(ctx, tx)
	if err != nil {
		return errors.Join(circulation.ErrMigrationFailed, err)
	}

	count := 0
	for _, m := range migrations {
		if _, done := applied[m.version]; done {
			continue
		}

		if _, err := s.exec(ctx, tx, actionMigrate, m.statement); err != nil {
			return errors.Join(circulation.ErrMigrationFailed, fmt.Errorf("migration %s: %w", m.version, err))
		}

		record, _, err := goqu.Dialect(dialectPostgres).
			Insert(s.tables.migrations).
			Rows(goqu.Record{colVersion: m.version, colAppliedAt: time.Now().UTC()}).
			ToSQL()
		if err != nil {
			return errors.Join(circulation.ErrMigrationFailed, circulation.ErrBuildingQueryFailed, err)
		}

		if _, err := s.exec(ctx, tx, actionMigrate, record); err != nil {
			return errors.Join(circulation.ErrMigrationFailed, err)
		}

		count++
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(circulation.ErrMigrationFailed, circulation.ErrCommitFailed, err)
	}

	s.logOperation(ctx, logMsgMigrated, logAttrMigrations, count)

	return nil
}

func (s *LedgerStore) appliedMigrations(ctx context.Context, tx adapters.DBTx) (map[string]struct{}, error) {
	query, _, err := goqu.Dialect(dialectPostgres).From(s.tables.migrations).Select(colVersion).ToSQL()
	if err != nil {
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	rows, err := s.query(ctx, tx, actionMigrate, query)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Join(circulation.ErrScanningDBRowFailed, err)
		}
		applied[version] = struct{}{}
	}

	return applied, rows.Err()
}

// loadMigrations reads the embedded files in name order with the table prefix substituted.
func loadMigrations(prefix string) ([]migration, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}

		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		migrations = append(migrations, migration{
			version:   version,
			statement: strings.ReplaceAll(string(content), prefixPlaceholder, prefix),
		})
	}

	return migrations, nil
}
