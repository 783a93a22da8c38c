package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/distributorauth"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/circulation/oteladapters"
	"github.com/jonathangreen/circulation/circulation/promadapters"
	"github.com/jonathangreen/circulation/service/coordinator"
)

const (
	instrumentationName = "github.com/jonathangreen/circulation"
	shutdownTimeout     = 10 * time.Second
	readHeaderTimeout   = 10 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the loan notification callback and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			return serve(cmd.Context(), cmd, cfg)
		},
	}
}

func serve(ctx context.Context, cmd *cobra.Command, cfg Config) error {
	handler := newLogHandler(cmd.ErrOrStderr(), cfg.LogLevel)
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel).With("command", "serve")

	metrics, err := promadapters.NewMetricsCollector(promadapters.WithRuntimeCollectors())
	if err != nil {
		return err
	}

	obs := observers{
		logger:           logger,
		contextualLogger: oteladapters.NewSlogBridgeLoggerWithHandler(handler),
		metricsCollector: metrics,
	}

	if cfg.Tracing {
		obs.tracingCollector = oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))
		obs.contextualLogger = oteladapters.NewSlogBridgeLogger(instrumentationName)
	}

	ledger, closeLedger, err := openLedger(ctx, cfg.Database, obs)
	if err != nil {
		return err
	}
	defer closeLedger()

	if cfg.Migrate {
		if err := ledger.Migrate(ctx); err != nil {
			return err
		}
	}

	auth, err := newDistributorAuth(cfg.Distributor, obs)
	if err != nil {
		return err
	}

	client, err := newLoanStatusClient(auth, cfg.Distributor, obs)
	if err != nil {
		return err
	}

	circulationCoordinator, err := newCoordinator(ledger, client, auth, cfg, obs)
	if err != nil {
		return err
	}

	e := newEcho(&NotificationController{
		Loans:   circulationCoordinator,
		Library: cfg.LibraryShortName,
		Log:     logger,
	}, metrics.Handler(), logger)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           otelhttp.NewHandler(e, "circulationd"),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serving", "listen", cfg.Listen, "library_short_name", cfg.LibraryShortName)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down")

		return server.Shutdown(shutdownCtx)
	}
}

func newDistributorAuth(cfg DistributorConfig, obs observers) (*distributorauth.Client, error) {
	authType, err := distributorauth.ParseAuthType(cfg.Auth)
	if err != nil {
		return nil, err
	}

	options := []distributorauth.Option{
		distributorauth.WithLogger(obs.logger),
		distributorauth.WithMetrics(obs.metricsCollector),
	}

	if obs.contextualLogger != nil {
		options = append(options, distributorauth.WithContextualLogger(obs.contextualLogger))
	}

	if authType != distributorauth.AuthNone {
		options = append(options, distributorauth.WithCredentials(cfg.Username, cfg.Password))
	}

	if cfg.FeedURL != "" {
		options = append(options, distributorauth.WithFeedURL(cfg.FeedURL))
	}

	return distributorauth.NewClient(loanstatus.NewHTTPClient(cfg.Timeout), authType, options...)
}

func newLoanStatusClient(auth *distributorauth.Client, cfg DistributorConfig, obs observers) (*loanstatus.Client, error) {
	options := []loanstatus.Option{
		loanstatus.WithTimeout(cfg.Timeout),
		loanstatus.WithLogger(obs.logger),
		loanstatus.WithMetrics(obs.metricsCollector),
	}

	if obs.contextualLogger != nil {
		options = append(options, loanstatus.WithContextualLogger(obs.contextualLogger))
	}

	if obs.tracingCollector != nil {
		options = append(options, loanstatus.WithTracing(obs.tracingCollector))
	}

	return loanstatus.NewClient(auth, options...)
}

func newCoordinator(
	ledger circulation.Ledger,
	client coordinator.LoanStatusClient,
	auth *distributorauth.Client,
	cfg Config,
	obs observers,
) (*coordinator.Coordinator, error) {

	options := []coordinator.Option{
		coordinator.WithSessionTokens(auth),
		coordinator.WithLogger(obs.logger),
		coordinator.WithMetrics(obs.metricsCollector),
	}

	if obs.contextualLogger != nil {
		options = append(options, coordinator.WithContextualLogger(obs.contextualLogger))
	}

	if obs.tracingCollector != nil {
		options = append(options, coordinator.WithTracing(obs.tracingCollector))
	}

	return coordinator.NewCoordinator(ledger, client, cfg.CollectionSettings(), options...)
}
