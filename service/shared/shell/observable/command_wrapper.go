package observable

import (
	"context"
	"time"

	"github.com/jonathangreen/circulation/service/shared/shell"
)

// CommandWrapper provides observability instrumentation for any command handler.
// It wraps a core command handler and adds metrics, tracing and logging.
type CommandWrapper[C shell.Command, R shell.Result] struct {
	coreHandler      shell.CommandHandler[C, R]
	commandType      string
	metricsCollector shell.MetricsCollector
	tracingCollector shell.TracingCollector
	contextualLogger shell.ContextualLogger
	logger           shell.Logger
}

// NewCommandWrapper creates a new observable wrapper around the core command handler.
func NewCommandWrapper[C shell.Command, R shell.Result](
	coreHandler shell.CommandHandler[C, R],
	opts ...CommandOption[C, R],
) (*CommandWrapper[C, R], error) {

	// Extract command type from a zero-value instance
	var zeroCommand C

	wrapper := &CommandWrapper[C, R]{
		coreHandler: coreHandler,
		commandType: zeroCommand.CommandType(),
	}

	for _, opt := range opts {
		if err := opt(wrapper); err != nil {
			return nil, err
		}
	}

	return wrapper, nil
}

// Handle delegates to the wrapped handler and translates its result and error into metrics,
// a finished span and log records.
func (w *CommandWrapper[C, R]) Handle(ctx context.Context, command C) (R, error) {
	commandStart := time.Now()
	ctx, span := shell.StartCommandSpan(ctx, w.tracingCollector, w.commandType)
	shell.LogCommandStart(ctx, w.logger, w.contextualLogger, w.commandType)

	result, err := w.coreHandler.Handle(ctx, command)
	duration := time.Since(commandStart)

	outcome := result.Outcome()
	shell.RecordHandlerResult(ctx, w.metricsCollector, w.commandType, outcome)
	shell.LogRebalance(ctx, w.logger, w.contextualLogger, w.commandType, outcome.Rebalance)

	if err != nil {
		w.recordCommandError(ctx, err, duration, span)
		return result, err
	}

	status := shell.StatusSuccess
	if outcome.Idempotent {
		status = shell.StatusIdempotent
	}

	shell.RecordCommandMetrics(ctx, w.metricsCollector, w.commandType, status, duration, nil)
	shell.FinishSpan(w.tracingCollector, span, status, duration, nil)
	shell.LogCommandSuccess(ctx, w.logger, w.contextualLogger, w.commandType, status, duration)

	return result, nil
}

// CommandOption defines a functional option for configuring CommandWrapper.
type CommandOption[C shell.Command, R shell.Result] func(*CommandWrapper[C, R]) error

// WithCommandMetrics sets the metrics collector for the CommandWrapper.
func WithCommandMetrics[C shell.Command, R shell.Result](collector shell.MetricsCollector) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.metricsCollector = collector
		return nil
	}
}

// WithCommandTracing sets the tracing collector for the CommandWrapper.
func WithCommandTracing[C shell.Command, R shell.Result](collector shell.TracingCollector) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.tracingCollector = collector
		return nil
	}
}

// WithCommandContextualLogging sets the contextual logger for the CommandWrapper.
func WithCommandContextualLogging[C shell.Command, R shell.Result](logger shell.ContextualLogger) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.contextualLogger = logger
		return nil
	}
}

// WithCommandLogging sets the basic logger for the CommandWrapper.
func WithCommandLogging[C shell.Command, R shell.Result](logger shell.Logger) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.logger = logger
		return nil
	}
}

func (w *CommandWrapper[C, R]) recordCommandError(ctx context.Context, err error, duration time.Duration, span shell.SpanContext) {
	status := shell.ClassifyError(err)

	shell.RecordCommandMetrics(ctx, w.metricsCollector, w.commandType, status, duration, err)
	shell.FinishSpan(w.tracingCollector, span, status, duration, err)

	if status == shell.StatusRejected {
		shell.LogCommandRejected(ctx, w.logger, w.contextualLogger, w.commandType, err)
		return
	}

	shell.LogCommandError(ctx, w.logger, w.contextualLogger, w.commandType, status, err)
}
