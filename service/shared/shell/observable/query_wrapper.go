package observable

import (
	"context"
	"time"

	"github.com/jonathangreen/circulation/service/shared/shell"
)

// QueryWrapper provides observability instrumentation for any query handler.
type QueryWrapper[Q shell.Query, R any] struct {
	coreHandler      shell.QueryHandler[Q, R]
	queryType        string
	metricsCollector shell.MetricsCollector
	tracingCollector shell.TracingCollector
	contextualLogger shell.ContextualLogger
	logger           shell.Logger
}

// NewQueryWrapper creates a new observable wrapper around the core query handler.
func NewQueryWrapper[Q shell.Query, R any](
	coreHandler shell.QueryHandler[Q, R],
	opts ...QueryOption[Q, R],
) (*QueryWrapper[Q, R], error) {

	var zeroQuery Q

	wrapper := &QueryWrapper[Q, R]{
		coreHandler: coreHandler,
		queryType:   zeroQuery.QueryType(),
	}

	for _, opt := range opts {
		if err := opt(wrapper); err != nil {
			return nil, err
		}
	}

	return wrapper, nil
}

// Handle delegates to the wrapped handler and records metrics, a span and log records.
func (w *QueryWrapper[Q, R]) Handle(ctx context.Context, query Q) (R, error) {
	queryStart := time.Now()
	ctx, span := shell.StartQuerySpan(ctx, w.tracingCollector, w.queryType)
	shell.LogQueryStart(ctx, w.logger, w.contextualLogger, w.queryType)

	result, err := w.coreHandler.Handle(ctx, query)

	duration := time.Since(queryStart)
	if err != nil {
		status := shell.ClassifyError(err)
		shell.RecordQueryMetrics(ctx, w.metricsCollector, w.queryType, status, duration)
		shell.FinishSpan(w.tracingCollector, span, status, duration, err)
		shell.LogQueryError(ctx, w.logger, w.contextualLogger, w.queryType, err)

		return result, err
	}

	shell.RecordQueryMetrics(ctx, w.metricsCollector, w.queryType, shell.StatusSuccess, duration)
	shell.FinishSpan(w.tracingCollector, span, shell.StatusSuccess, duration, nil)
	shell.LogQuerySuccess(ctx, w.logger, w.contextualLogger, w.queryType, duration)

	return result, nil
}

// QueryOption defines a functional option for configuring QueryWrapper.
type QueryOption[Q shell.Query, R any] func(*QueryWrapper[Q, R]) error

// WithQueryMetrics sets the metrics collector for the QueryWrapper.
func WithQueryMetrics[Q shell.Query, R any](collector shell.MetricsCollector) QueryOption[Q, R] {
	return func(w *QueryWrapper[Q, R]) error {
		w.metricsCollector = collector
		return nil
	}
}

// WithQueryTracing sets the tracing collector for the QueryWrapper.
func WithQueryTracing[Q shell.Query, R any](collector shell.TracingCollector) QueryOption[Q, R] {
	return func(w *QueryWrapper[Q, R]) error {
		w.tracingCollector = collector
		return nil
	}
}

// WithQueryContextualLogging sets the contextual logger for the QueryWrapper.
func WithQueryContextualLogging[Q shell.Query, R any](logger shell.ContextualLogger) QueryOption[Q, R] {
	return func(w *QueryWrapper[Q, R]) error {
		w.contextualLogger = logger
		return nil
	}
}

// WithQueryLogging sets the basic logger for the QueryWrapper.
func WithQueryLogging[Q shell.Query, R any](logger shell.Logger) QueryOption[Q, R] {
	return func(w *QueryWrapper[Q, R]) error {
		w.logger = logger
		return nil
	}
}
