package loanstatus

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

func (c *Client) logRequest(ctx context.Context, method, url string, statusCode int, duration time.Duration) {
	args := []any{
		logAttrMethod, method,
		logAttrURL, url,
		logAttrStatusCode, statusCode,
		logAttrDurationMS, toMilliseconds(duration),
	}

	if c.contextualLogger != nil {
		c.contextualLogger.DebugContext(ctx, logMsgRequestSent, args...)
		return
	}

	if c.logger != nil {
		c.logger.Debug(logMsgRequestSent, args...)
	}
}

func (c *Client) logError(ctx context.Context, requestErr *RequestError) {
	args := []any{
		logAttrError, requestErr.Error(),
		logAttrMethod, requestErr.Method,
		logAttrURL, requestErr.URL,
	}

	if requestErr.StatusCode != 0 {
		args = append(args, logAttrStatusCode, requestErr.StatusCode)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.ErrorContext(ctx, logMsgRequestFailed, args...)
		return
	}

	if c.logger != nil {
		c.logger.Error(logMsgRequestFailed, args...)
	}
}

func (c *Client) logWarn(ctx context.Context, msg string, err error) {
	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, msg, logAttrError, err.Error())
		return
	}

	if c.logger != nil {
		c.logger.Warn(msg, logAttrError, err.Error())
	}
}

func (c *Client) recordDuration(ctx context.Context, document, method string, duration time.Duration, statusCode int) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelDocument: document,
		labelMethod:   method,
		labelStatus:   strconv.Itoa(statusCode),
	}

	if contextual, ok := c.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricRequestDuration, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metricRequestDuration, duration, labels)
}

func (c *Client) recordError(ctx context.Context, document, method string, requestErr *RequestError) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelDocument:  document,
		labelMethod:    method,
		labelErrorKind: errorKind(requestErr),
	}

	if contextual, ok := c.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricRequestErrors, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metricRequestErrors, labels)
}

func (c *Client) startSpan(ctx context.Context, method, url string) (context.Context, circulation.SpanContext) {
	if c.tracingCollector == nil {
		return ctx, nil
	}

	return c.tracingCollector.StartSpan(ctx, spanNameRequest, map[string]string{
		spanAttrMethod: method,
		spanAttrURL:    url,
	})
}

func (c *Client) finishSpan(span circulation.SpanContext, requestErr *RequestError, statusCode int) {
	if c.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{}
	if statusCode != 0 {
		attrs[spanAttrStatusCode] = strconv.Itoa(statusCode)
	}

	if requestErr != nil {
		attrs[spanAttrErrorKind] = errorKind(requestErr)
		c.tracingCollector.FinishSpan(span, circulation.StatusError, attrs)
		return
	}

	c.tracingCollector.FinishSpan(span, circulation.StatusSuccess, attrs)
}

func errorKind(requestErr *RequestError) string {
	switch {
	case errors.Is(requestErr, ErrRequestTimedOut):
		return "timeout"
	case errors.Is(requestErr, ErrNetworkFailure):
		return "network"
	case errors.Is(requestErr, ErrBadStatus):
		return "bad_status"
	case errors.Is(requestErr, ErrMalformedDocument):
		return "malformed_document"
	default:
		return "unknown"
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
