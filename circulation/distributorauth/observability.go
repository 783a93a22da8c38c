package distributorauth

import (
	"context"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	logMsgTokenRefreshed  = "distributor token refreshed"
	logMsgDiscovery       = "distributor authenticate url discovered"
	logMsgDiscoveryFailed = "distributor authenticate url discovery failed"
	logMsgGrantFailed     = "distributor token grant failed"
	logAttrReason         = "reason"
	logAttrExpiresAt      = "expires_at"
	logAttrURL            = "url"
	logAttrError          = "error"

	metricTokenRefreshes = "distributor_token_refreshes_total"
	labelReason          = "reason"
	labelStatus          = "status"
)

func (c *Client) logRefresh(ctx context.Context, reason string, token Token) {
	args := []any{logAttrReason, reason, logAttrExpiresAt, token.ExpiresAt.Format(time.RFC3339)}

	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, logMsgTokenRefreshed, args...)
		return
	}

	if c.logger != nil {
		c.logger.Info(logMsgTokenRefreshed, args...)
	}
}

func (c *Client) logDiscovery(ctx context.Context, url string) {
	if c.contextualLogger != nil {
		c.contextualLogger.DebugContext(ctx, logMsgDiscovery, logAttrURL, url)
		return
	}

	if c.logger != nil {
		c.logger.Debug(logMsgDiscovery, logAttrURL, url)
	}
}

func (c *Client) logError(ctx context.Context, msg string, err error) {
	if c.contextualLogger != nil {
		c.contextualLogger.ErrorContext(ctx, msg, logAttrError, err.Error())
		return
	}

	if c.logger != nil {
		c.logger.Error(msg, logAttrError, err.Error())
	}
}

func (c *Client) recordRefresh(ctx context.Context, reason, status string) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelReason: reason, labelStatus: status}

	if contextual, ok := c.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricTokenRefreshes, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metricTokenRefreshes, labels)
}
