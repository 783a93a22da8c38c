package postgreswrapper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation/postgresengine"
	"github.com/jonathangreen/circulation/service/shared/shell/config"
	"github.com/jonathangreen/circulation/testutil/fixtures"
	testconfig "github.com/jonathangreen/circulation/testutil/postgresengine/config"
)

// Adapter type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

var tables = []string{"holds", "loans", "licenses", "license_pools", "schema_migrations"}

// Wrapper holds a migrated ledger store and the connection behind it.
type Wrapper struct {
	Store  *postgresengine.LedgerStore
	Prefix string

	exec  func(ctx context.Context, sql string) error
	close func()
}

// Exec runs sql directly on the test database.
func (w *Wrapper) Exec(t testing.TB, sql string) {
	t.Helper()
	require.NoError(t, w.exec(context.Background(), sql))
}

// CreateWrapperWithTestConfig connects with the adapter selected by ADAPTER_TYPE, creates a store
// with a unique table prefix and migrates it. The store's clock is fixed at fixtures.Now.
// The test is skipped without a test DSN.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) *Wrapper {
	t.Helper()

	dsn := testconfig.PostgresTestDSN(t)
	prefix := "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "_"
	options = append([]postgresengine.Option{postgresengine.WithTablePrefix(prefix), postgresengine.WithClock(fixtures.Clock(0))}, options...)

	wrapper, err := createWrapper(context.Background(), dsn, options...)
	require.NoError(t, err, "error creating ledger store in test setup")
	wrapper.Prefix = prefix

	t.Cleanup(func() {
		for _, table := range tables {
			_ = wrapper.exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s%s CASCADE", prefix, table))
		}
		wrapper.close()
	})

	require.NoError(t, wrapper.Store.Migrate(context.Background()), "error migrating ledger store in test setup")

	return wrapper
}

func createWrapper(ctx context.Context, dsn string, options ...postgresengine.Option) (*Wrapper, error) {
	settings := config.DefaultPoolSettings()
	adapterType := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch adapterType {
	case typePGXPool, "":
		pool, err := config.PostgresPGXPool(ctx, dsn, settings)
		if err != nil {
			return nil, err
		}

		store, err := postgresengine.NewLedgerStoreFromPGXPool(pool, options...)
		if err != nil {
			pool.Close()
			return nil, err
		}

		return &Wrapper{Store: store, exec: pgxExec(pool), close: pool.Close}, nil

	case typeSQLDB:
		db, err := config.PostgresSQLDB(ctx, dsn, settings)
		if err != nil {
			return nil, err
		}

		store, err := postgresengine.NewLedgerStoreFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, err
		}

		exec := func(ctx context.Context, sql string) error {
			_, err := db.ExecContext(ctx, sql)
			return err
		}

		return &Wrapper{Store: store, exec: exec, close: func() { _ = db.Close() }}, nil

	case typeSQLXDB:
		db, err := config.PostgresSQLX(ctx, dsn, settings)
		if err != nil {
			return nil, err
		}

		store, err := postgresengine.NewLedgerStoreFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, err
		}

		exec := func(ctx context.Context, sql string) error {
			_, err := db.ExecContext(ctx, sql)
			return err
		}

		return &Wrapper{Store: store, exec: exec, close: func() { _ = db.Close() }}, nil

	default:
		return nil, fmt.Errorf("unsupported adapter type from env: %s", adapterType)
	}
}

func pgxExec(pool *pgxpool.Pool) func(ctx context.Context, sql string) error {
	return func(ctx context.Context, sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	}
}
