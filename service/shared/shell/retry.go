package shell

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 250 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrNilMetricsCollector is returned when a nil metrics collector is provided to WithRetryMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrEmptyOperation is returned when an empty operation name is provided to WithRetryMetrics.
	ErrEmptyOperation = errors.New("operation must not be empty")

	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")

	// ErrDatabaseUnavailable marks a failed attempt to reach the database. It is retryable.
	ErrDatabaseUnavailable = errors.New("database unavailable")
)

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// RetryMetrics describes how a retried call went.
type RetryMetrics struct {
	Attempts         int
	TotalDelay       time.Duration
	LastErrorType    string
	RetriesExhausted bool
}

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector MetricsCollector
	logger           Logger
	operation        string
}

// RetryWithExponentialBackoff runs fn until it succeeds, fails with an error that is not retryable,
// or maxAttempts are used up.
//
// Retry Schedule (default): 0, 250 ms, 500 ms, 1 s, 2 s, 4 s (with 30% jitter)
// Use Case: waiting for the database while the daemon starts
//
// Only ErrDatabaseUnavailable, ErrBeginTransactionFailed and ErrMigrationFailed are retried.
// Circulation commands never go through here: they reach the distributor and are not safe to repeat.
func RetryWithExponentialBackoff(
	ctx context.Context,
	fn RetryableFunc,
	options ...RetryOption,
) (RetryMetrics, error) {

	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return RetryMetrics{}, err
		}
	}

	metrics := RetryMetrics{LastErrorType: "none"}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: baseDelay * 2^(attempt-1)
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec //math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			recordRetryDelay(ctx, config, attempt, backoffDelay)

			select {
			case <-time.After(backoffDelay):
				metrics.TotalDelay += backoffDelay
			case <-ctx.Done():
				metrics.LastErrorType = errorType(ctx.Err())
				return metrics, ctx.Err()
			}
		}

		metrics.Attempts++

		lastErr = fn(ctx)
		if lastErr == nil {
			metrics.LastErrorType = "none"
			return metrics, nil
		}

		metrics.LastErrorType = errorType(lastErr)

		if !isRetryableError(lastErr) {
			return metrics, lastErr
		}

		if attempt < config.maxAttempts-1 {
			recordRetryAttempt(ctx, config, attempt+1, lastErr)
		}
	}

	metrics.RetriesExhausted = true
	recordRetriesExhausted(ctx, config, lastErr)

	return metrics, lastErr
}

// isRetryableError determines if an error should be retried.
// Timeouts and cancellations are not: the caller gave up.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return errors.Is(err, ErrDatabaseUnavailable) ||
		errors.Is(err, circulation.ErrBeginTransactionFailed) ||
		errors.Is(err, circulation.ErrMigrationFailed)
}

func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context_deadline_exceeded"
	case errors.Is(err, ErrDatabaseUnavailable):
		return "database_unavailable"
	case errors.Is(err, circulation.ErrBeginTransactionFailed):
		return "begin_transaction_failed"
	case errors.Is(err, circulation.ErrMigrationFailed):
		return "migration_failed"
	default:
		return "other"
	}
}

func recordRetryDelay(ctx context.Context, config *retryConfig, attempt int, delay time.Duration) {
	if config.metricsCollector == nil {
		return
	}

	recordDuration(ctx, config.metricsCollector, RetryDelayMetric, delay, map[string]string{
		"operation":      config.operation,
		"attempt_number": formatAttempt(attempt),
	})
}

func recordRetryAttempt(ctx context.Context, config *retryConfig, attempt int, err error) {
	if config.logger != nil {
		config.logger.Warn(LogMsgRetrying, "operation", config.operation, LogAttrAttempt, attempt, LogAttrError, err.Error())
	}

	if config.metricsCollector == nil {
		return
	}

	incrementCounter(ctx, config.metricsCollector, RetryAttemptsMetric, map[string]string{
		"operation":      config.operation,
		"attempt_number": formatAttempt(attempt),
		"error_type":     errorType(err),
	})
}

func recordRetriesExhausted(ctx context.Context, config *retryConfig, err error) {
	if config.metricsCollector == nil {
		return
	}

	incrementCounter(ctx, config.metricsCollector, RetryExhaustedMetric, map[string]string{
		"operation":        config.operation,
		"final_error_type": errorType(err),
	})
}

// RetryOption configures retry behavior using the functional options pattern.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, baseDelay*8, etc.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter factor to prevent thundering herd problems.
// Valid range: 0.0 (no jitter) to 1.0 (100% jitter).
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryMetrics sets the metrics collector for retry instrumentation.
func WithRetryMetrics(collector MetricsCollector, operation string) RetryOption {
	return func(config *retryConfig) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		if operation == "" {
			return ErrEmptyOperation
		}

		config.metricsCollector = collector
		config.operation = operation

		return nil
	}
}

// WithRetryLogger logs every retried attempt at warn level.
func WithRetryLogger(logger Logger, operation string) RetryOption {
	return func(config *retryConfig) error {
		if operation == "" {
			return ErrEmptyOperation
		}

		config.logger = logger
		config.operation = operation

		return nil
	}
}
