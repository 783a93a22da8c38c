package memengine

import (
	"github.com/jonathangreen/circulation/circulation"
)

// Option defines a functional option for configuring LedgerStore.
type Option func(*LedgerStore) error

// WithLogger logs persisted pool states at debug level.
func WithLogger(logger circulation.Logger) Option {
	return func(s *LedgerStore) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics records how long the pool lock was held.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(s *LedgerStore) error {
		s.metricsCollector = collector
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
