package config

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const driverPostgres = "postgres"

// PoolSettings are the connection pool limits applied to every driver.
type PoolSettings struct {
	MaxConns        int           `mapstructure:"max_conns" validate:"gte=1"`
	MinConns        int           `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DefaultPoolSettings returns the limits used when nothing is configured.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxConns:        50,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// PostgresPGXPoolConfig creates a pgxpool.Config for dsn.
func PostgresPGXPoolConfig(dsn string, settings PoolSettings) (*pgxpool.Config, error) {
	dbConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	dbConfig.MaxConns = int32(settings.MaxConns)
	dbConfig.MinConns = int32(settings.MinConns)
	dbConfig.MaxConnLifetime = settings.MaxConnLifetime
	dbConfig.MaxConnIdleTime = settings.MaxConnIdleTime
	dbConfig.HealthCheckPeriod = time.Minute
	if settings.ConnectTimeout > 0 {
		dbConfig.ConnConfig.ConnectTimeout = settings.ConnectTimeout
	}

	return dbConfig, nil
}

// PostgresPGXPool opens a pgxpool.Pool for dsn.
func PostgresPGXPool(ctx context.Context, dsn string, settings PoolSettings) (*pgxpool.Pool, error) {
	dbConfig, err := PostgresPGXPoolConfig(dsn, settings)
	if err != nil {
		return nil, err
	}

	return pgxpool.NewWithConfig(ctx, dbConfig)
}

// PostgresSQLDB opens and pings a *sql.DB for dsn.
func PostgresSQLDB(ctx context.Context, dsn string, settings PoolSettings) (*sql.DB, error) {
	db, err := sql.Open(driverPostgres, dsn)
	if err != nil {
		return nil, err
	}

	applyPoolSettings(db, settings)

	if err := ping(ctx, db, settings); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// PostgresSQLX opens and pings a *sqlx.DB for dsn.
func PostgresSQLX(ctx context.Context, dsn string, settings PoolSettings) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverPostgres, dsn)
	if err != nil {
		return nil, err
	}

	applyPoolSettings(db.DB, settings)

	if err := ping(ctx, db.DB, settings); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func applyPoolSettings(db *sql.DB, settings PoolSettings) {
	db.SetMaxOpenConns(settings.MaxConns)
	db.SetMaxIdleConns(max(settings.MinConns, 1))
	db.SetConnMaxLifetime(settings.MaxConnLifetime)
	db.SetConnMaxIdleTime(settings.MaxConnIdleTime)
}

func ping(ctx context.Context, db *sql.DB, settings PoolSettings) error {
	if settings.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.ConnectTimeout)
		defer cancel()
	}

	return db.PingContext(ctx)
}
