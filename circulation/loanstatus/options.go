package loanstatus

import (
	"errors"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

// ErrInvalidTimeout is returned by WithTimeout for non-positive durations.
var ErrInvalidTimeout = errors.New("timeout must be positive")

// Option defines a functional option for configuring Client.
type Option func(*Client) error

// WithTimeout bounds every distributor request. The default is 20 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return ErrInvalidTimeout
		}

		c.timeout = timeout

		return nil
	}
}

// WithLogger sets the logger. Requests are logged at debug level, failures at error level.
func WithLogger(logger circulation.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger when both are set.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(c *Client) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics records request durations and failures.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(c *Client) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing wraps every request in a span.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(c *Client) error {
		c.tracingCollector = collector
		return nil
	}
}
