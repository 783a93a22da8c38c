package distributorauth

import (
	"github.com/jonathangreen/circulation/circulation"
)

// Option defines a functional option for configuring Client.
type Option func(*Client) error

// WithCredentials sets the username and password used for basic auth and for OAuth token grants.
func WithCredentials(username, password string) Option {
	return func(c *Client) error {
		c.username = username
		c.password = password

		return nil
	}
}

// WithFeedURL sets the URL fetched unauthenticated to discover the authenticate URL.
// Without it, discovery uses the URL of the request being authenticated.
func WithFeedURL(feedURL string) Option {
	return func(c *Client) error {
		c.feedURL = feedURL
		return nil
	}
}

// WithTokenCache injects the token cache, for example to share it between clients of one collection.
func WithTokenCache(cache *TokenCache) Option {
	return func(c *Client) error {
		c.cache = cache
		return nil
	}
}

// WithClock sets the clock used to compute and check token expiry.
func WithClock(clock circulation.Clock) Option {
	return func(c *Client) error {
		c.clock = clock
		return nil
	}
}

// WithLogger sets the logger.
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

// WithMetrics counts token refreshes and their failures.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(c *Client) error {
		c.metricsCollector = collector
		return nil
	}
}
