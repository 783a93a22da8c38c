package postgresengine

import (
	"fmt"
	"regexp"

	"github.com/jonathangreen/circulation/circulation"
)

var validTablePrefix = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Option defines a functional option for configuring LedgerStore.
type Option func(*LedgerStore) error

// WithTablePrefix sets the prefix of all table names. The default is "circulation_".
func WithTablePrefix(prefix string) Option {
	return func(s *LedgerStore) error {
		if prefix == "" {
			return circulation.ErrEmptyTablePrefix
		}

		if !validTablePrefix.MatchString(prefix) {
			return fmt.Errorf("invalid table prefix %q: only lower case letters, digits and underscores", prefix)
		}

		s.tables = newTableNames(prefix)

		return nil
	}
}

// WithClock sets the clock that decides which loans still count against the patron's loan limit.
func WithClock(clock circulation.Clock) Option {
	return func(s *LedgerStore) error {
		s.clock = clock
		return nil
	}
}

// WithLogger sets the logger for the LedgerStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: persisted pool states, applied migrations (production-safe)
// Warn level: Non-critical issues like rows close or rollback failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger circulation.Logger) Option {
	return func(s *LedgerStore) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger when both are set.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(s *LedgerStore) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the LedgerStore.
// It receives statement durations, pool lock durations and database errors.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(s *LedgerStore) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the LedgerStore.
// Every pool lock and patron activity query runs in a span.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(s *LedgerStore) error {
		s.tracingCollector = collector
		return nil
	}
}
