package coordinator

import (
	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/features/command/fulfill"
)

// Option defines a functional option for configuring the Coordinator.
type Option func(*Coordinator) error

// WithClock sets the clock every handler uses.
func WithClock(clock circulation.Clock) Option {
	return func(c *Coordinator) error {
		c.clock = clock
		return nil
	}
}

// WithSessionTokens enables bearer token fulfillment for open-access and unlimited titles.
func WithSessionTokens(tokens fulfill.SessionTokenSource) Option {
	return func(c *Coordinator) error {
		c.tokens = tokens
		return nil
	}
}

// WithLogger sets the logger for handler outcomes.
func WithLogger(logger circulation.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger when both are set.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(c *Coordinator) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics records durations and outcomes of every operation.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(c *Coordinator) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing opens a span per operation.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(c *Coordinator) error {
		c.tracingCollector = collector
		return nil
	}
}
