package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/postgresengine"
	"github.com/jonathangreen/circulation/service/shared/shell"
	"github.com/jonathangreen/circulation/service/shared/shell/config"
)

const retryOperationConnect = "connect_database"

type observers struct {
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

func (o observers) ledgerOptions(prefix string) []postgresengine.Option {
	options := []postgresengine.Option{postgresengine.WithTablePrefix(prefix)}

	if o.logger != nil {
		options = append(options, postgresengine.WithLogger(o.logger))
	}

	if o.contextualLogger != nil {
		options = append(options, postgresengine.WithContextualLogger(o.contextualLogger))
	}

	if o.metricsCollector != nil {
		options = append(options, postgresengine.WithMetrics(o.metricsCollector))
	}

	if o.tracingCollector != nil {
		options = append(options, postgresengine.WithTracing(o.tracingCollector))
	}

	return options
}

func (o observers) retryOptions(cfg DatabaseConfig, operation string) []shell.RetryOption {
	options := []shell.RetryOption{shell.WithMaxAttempts(cfg.StartupAttempts)}

	if o.logger != nil {
		options = append(options, shell.WithRetryLogger(o.logger, operation))
	}

	if o.metricsCollector != nil {
		options = append(options, shell.WithRetryMetrics(o.metricsCollector, operation))
	}

	return options
}

// openLedger connects with the configured driver, waiting for the database while it starts.
// The returned close function releases every connection.
func openLedger(ctx context.Context, cfg DatabaseConfig, obs observers) (*postgresengine.LedgerStore, func(), error) {
	var ledger *postgresengine.LedgerStore
	closeLedger := func() {}

	connect := func(ctx context.Context) error {
		var err error

		ledger, closeLedger, err = connectLedger(ctx, cfg, obs)
		if err != nil {
			return errors.Join(shell.ErrDatabaseUnavailable, err)
		}

		return nil
	}

	if _, err := shell.RetryWithExponentialBackoff(ctx, connect, obs.retryOptions(cfg, retryOperationConnect)...); err != nil {
		return nil, nil, err
	}

	return ledger, closeLedger, nil
}

func connectLedger(ctx context.Context, cfg DatabaseConfig, obs observers) (*postgresengine.LedgerStore, func(), error) {
	options := obs.ledgerOptions(cfg.TablePrefix)

	switch cfg.Driver {
	case driverSQL:
		db, err := config.PostgresSQLDB(ctx, cfg.URL, cfg.Pool)
		if err != nil {
			return nil, nil, err
		}

		ledger, err := postgresengine.NewLedgerStoreFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return ledger, func() { _ = db.Close() }, nil

	case driverSQLX:
		db, err := config.PostgresSQLX(ctx, cfg.URL, cfg.Pool)
		if err != nil {
			return nil, nil, err
		}

		ledger, err := postgresengine.NewLedgerStoreFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return ledger, func() { _ = db.Close() }, nil

	default:
		return connectPGX(ctx, cfg, options)
	}
}

func connectPGX(ctx context.Context, cfg DatabaseConfig, options []postgresengine.Option) (*postgresengine.LedgerStore, func(), error) {
	primary, err := openPGXPool(ctx, cfg.URL, cfg.Pool)
	if err != nil {
		return nil, nil, err
	}

	if cfg.ReplicaURL == "" {
		ledger, err := postgresengine.NewLedgerStoreFromPGXPool(primary, options...)
		if err != nil {
			primary.Close()
			return nil, nil, err
		}

		return ledger, primary.Close, nil
	}

	replica, err := openPGXPool(ctx, cfg.ReplicaURL, cfg.Pool)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	closePools := func() {
		replica.Close()
		primary.Close()
	}

	ledger, err := postgresengine.NewLedgerStoreFromPGXPoolWithReplica(primary, replica, options...)
	if err != nil {
		closePools()
		return nil, nil, err
	}

	return ledger, closePools, nil
}

func openPGXPool(ctx context.Context, dsn string, settings config.PoolSettings) (*pgxpool.Pool, error) {
	pool, err := config.PostgresPGXPool(ctx, dsn, settings)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if settings.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, settings.ConnectTimeout)
		defer cancel()
	}

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
