package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/holdqueue"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
)

const (
	// CommandHandlerDurationMetric tracks command handler execution duration.
	CommandHandlerDurationMetric = "commandhandler_handle_duration_seconds"

	// CommandHandlerCallsMetric tracks total command handler calls.
	CommandHandlerCallsMetric = "commandhandler_handle_calls_total"

	// CommandHandlerIdempotentMetric tracks idempotent operations.
	CommandHandlerIdempotentMetric = "commandhandler_idempotent_operations_total"

	// CommandHandlerRejectedMetric tracks business rule violations by error code.
	CommandHandlerRejectedMetric = "commandhandler_business_rule_violations_total"

	// CommandHandlerRemoteFailureMetric tracks failed distributor interactions by kind.
	CommandHandlerRemoteFailureMetric = "commandhandler_remote_failures_total"

	// CommandHandlerRepairMetric tracks ledger repairs made while an operation failed.
	CommandHandlerRepairMetric = "commandhandler_ledger_repairs_total"

	// HoldQueueChangesMetric reports how many holds a rebalance promoted, demoted or expired.
	HoldQueueChangesMetric = "holdqueue_rebalance_holds"

	// QueryHandlerDurationMetric tracks query handler execution duration.
	QueryHandlerDurationMetric = "queryhandler_handle_duration_seconds"

	// QueryHandlerCallsMetric tracks total query handler calls.
	QueryHandlerCallsMetric = "queryhandler_handle_calls_total"

	// RetryAttemptsMetric tracks retried attempts of startup operations.
	RetryAttemptsMetric = "retry_attempts_total"

	// RetryDelayMetric tracks backoff delays of startup operations.
	RetryDelayMetric = "retry_delay_seconds"

	// RetryExhaustedMetric tracks startup operations that gave up.
	RetryExhaustedMetric = "retry_max_attempts_reached_total"

	// StatusSuccess indicates successful completion.
	StatusSuccess = circulation.StatusSuccess

	// StatusError indicates an infrastructure failure.
	StatusError = circulation.StatusError

	// StatusRejected indicates a business rule violation.
	StatusRejected = circulation.StatusRejected

	// StatusIdempotent indicates no state change was needed.
	StatusIdempotent = "idempotent"

	// StatusRemoteFailure indicates the distributor could not be reached or answered badly.
	StatusRemoteFailure = "remote_failure"

	// StatusCanceled indicates the operation was canceled due to context cancellation.
	StatusCanceled = "canceled"

	// StatusTimeout indicates the operation or a distributor request timed out.
	StatusTimeout = "timeout"

	// LogMsgCommandStarted is logged when command processing begins.
	LogMsgCommandStarted = "command handler started"

	// LogMsgCommandCompleted is logged when command processing succeeds.
	LogMsgCommandCompleted = "command handler completed"

	// LogMsgCommandRejected is logged when a business rule rejects the command.
	LogMsgCommandRejected = "command handler rejected"

	// LogMsgCommandFailed is logged when command processing fails.
	LogMsgCommandFailed = "command handler failed"

	// LogMsgQueryStarted is logged when query processing begins.
	LogMsgQueryStarted = "query handler started"

	// LogMsgQueryCompleted is logged when query processing succeeds.
	LogMsgQueryCompleted = "query handler completed"

	// LogMsgQueryFailed is logged when query processing fails.
	LogMsgQueryFailed = "query handler failed"

	// LogMsgHoldQueueRebalanced is logged when a rebalance changed the pool.
	LogMsgHoldQueueRebalanced = "hold queue rebalanced"

	// LogMsgRetrying is logged before a retried attempt.
	LogMsgRetrying = "retrying after transient failure"

	// LogAttrCommandType identifies the command type in logs.
	LogAttrCommandType = "command_type"

	// LogAttrQueryType identifies the query type in logs.
	LogAttrQueryType = "query_type"

	// LogAttrStatus indicates the processing status.
	LogAttrStatus = "status"

	// LogAttrDurationMS indicates the processing duration in milliseconds.
	LogAttrDurationMS = "duration_ms"

	// LogAttrBusinessOutcome classifies the business result.
	LogAttrBusinessOutcome = "business_outcome"

	// LogAttrErrorCode is the stable code of a business rule violation.
	LogAttrErrorCode = "error_code"

	// LogAttrErrorKind classifies remote failures.
	LogAttrErrorKind = "error_kind"

	// LogAttrError contains error details.
	LogAttrError = "error"

	// LogAttrPromoted, LogAttrDemoted and LogAttrExpired count hold changes of a rebalance.
	LogAttrPromoted = "promoted"
	LogAttrDemoted  = "demoted"
	LogAttrExpired  = "expired"

	// LogAttrAvailable and LogAttrReserved are the pool counters after a rebalance.
	LogAttrAvailable = "available"
	LogAttrReserved  = "reserved"

	// LogAttrAttempt is the number of the attempt that failed.
	LogAttrAttempt = "attempt"

	// LabelChange is the metric label for the kind of hold change.
	LabelChange = "change"

	// SpanNameCommandHandle is the tracing span name for command handling.
	SpanNameCommandHandle = "commandhandler.handle"

	// SpanNameQueryHandle is the tracing span name for query handling.
	SpanNameQueryHandle = "queryhandler.handle"
)

// BuildCommandLabels creates standard metric labels for command handler operations.
func BuildCommandLabels(commandType, status string) map[string]string {
	return map[string]string{
		LogAttrCommandType: commandType,
		LogAttrStatus:      status,
	}
}

// BuildQueryLabels creates standard metric labels for query handler operations.
func BuildQueryLabels(queryType, status string) map[string]string {
	return map[string]string{
		LogAttrQueryType: queryType,
		LogAttrStatus:    status,
	}
}

// ToMilliseconds converts a time.Duration to float64 milliseconds with precision.
func ToMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// IsCancellationError checks if the error is due to context cancellation.
func IsCancellationError(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeoutError checks if the error is due to a deadline or a timed-out distributor request.
func IsTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, loanstatus.ErrRequestTimedOut)
}

// IsRemoteFailure checks if the error comes from talking to the distributor.
func IsRemoteFailure(err error) bool {
	return RemoteFailureKind(err) != ""
}

// RemoteFailureKind returns a label for distributor failures, empty for any other error.
func RemoteFailureKind(err error) string {
	switch {
	case errors.Is(err, loanstatus.ErrRequestTimedOut):
		return "timeout"
	case errors.Is(err, loanstatus.ErrNetworkFailure):
		return "network"
	case errors.Is(err, loanstatus.ErrBadStatus):
		return "bad_status"
	case errors.Is(err, loanstatus.ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, circulation.ErrIntegrationMisconfigured):
		return "integration_misconfigured"
	default:
		return ""
	}
}

// ClassifyError maps an error to a handler status.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case circulation.IsBusinessRuleViolation(err):
		return StatusRejected
	case IsCancellationError(err):
		return StatusCanceled
	case IsTimeoutError(err):
		return StatusTimeout
	case IsRemoteFailure(err):
		return StatusRemoteFailure
	default:
		return StatusError
	}
}

// RecordCommandMetrics is a helper function to record all relevant metrics for a command operation.
// It handles both context-aware and basic metrics collectors automatically.
func RecordCommandMetrics(
	ctx context.Context,
	collector MetricsCollector,
	commandType string,
	status string,
	duration time.Duration,
	err error,
) {
	if collector == nil {
		return
	}

	labels := BuildCommandLabels(commandType, status)
	recordDuration(ctx, collector, CommandHandlerDurationMetric, duration, labels)
	incrementCounter(ctx, collector, CommandHandlerCallsMetric, labels)

	switch status {
	case StatusIdempotent:
		incrementCounter(ctx, collector, CommandHandlerIdempotentMetric, BuildCommandLabels(commandType, status))

	case StatusRejected:
		incrementCounter(ctx, collector, CommandHandlerRejectedMetric, map[string]string{
			LogAttrCommandType: commandType,
			LogAttrErrorCode:   circulation.BusinessErrorCode(err),
		})

	case StatusTimeout, StatusRemoteFailure:
		if kind := RemoteFailureKind(err); kind != "" {
			incrementCounter(ctx, collector, CommandHandlerRemoteFailureMetric, map[string]string{
				LogAttrCommandType: commandType,
				LogAttrErrorKind:   kind,
			})
		}
	}
}

// RecordHandlerResult records what the handler result says about repairs and the hold queue.
func RecordHandlerResult(
	ctx context.Context,
	collector MetricsCollector,
	commandType string,
	result HandlerResult,
) {
	if collector == nil {
		return
	}

	if result.Repaired {
		incrementCounter(ctx, collector, CommandHandlerRepairMetric, map[string]string{LogAttrCommandType: commandType})
	}

	if result.Rebalance == nil {
		return
	}

	changes := map[string]int{
		LogAttrPromoted: result.Rebalance.Promoted,
		LogAttrDemoted:  result.Rebalance.Demoted,
		LogAttrExpired:  result.Rebalance.Expired,
	}

	for change, count := range changes {
		if count == 0 {
			continue
		}

		labels := map[string]string{LogAttrCommandType: commandType, LabelChange: change}
		if contextual, ok := collector.(ContextualMetricsCollector); ok {
			contextual.RecordValueContext(ctx, HoldQueueChangesMetric, float64(count), labels)
			continue
		}

		collector.RecordValue(HoldQueueChangesMetric, float64(count), labels)
	}
}

// RecordQueryMetrics is a helper function to record all relevant metrics for a query operation.
func RecordQueryMetrics(
	ctx context.Context,
	collector MetricsCollector,
	queryType string,
	status string,
	duration time.Duration,
) {
	if collector == nil {
		return
	}

	labels := BuildQueryLabels(queryType, status)
	recordDuration(ctx, collector, QueryHandlerDurationMetric, duration, labels)
	incrementCounter(ctx, collector, QueryHandlerCallsMetric, labels)
}

// StartCommandSpan starts a distributed tracing span for command operations.
// Returns the updated context and span context, or original context and nil if tracing is disabled.
func StartCommandSpan(ctx context.Context, tracingCollector TracingCollector, commandType string) (context.Context, SpanContext) {
	if tracingCollector == nil {
		return ctx, nil
	}

	return tracingCollector.StartSpan(ctx, SpanNameCommandHandle, map[string]string{LogAttrCommandType: commandType})
}

// StartQuerySpan starts a distributed tracing span for query operations.
func StartQuerySpan(ctx context.Context, tracingCollector TracingCollector, queryType string) (context.Context, SpanContext) {
	if tracingCollector == nil {
		return ctx, nil
	}

	return tracingCollector.StartSpan(ctx, SpanNameQueryHandle, map[string]string{LogAttrQueryType: queryType})
}

// FinishSpan completes a distributed tracing span with the operation outcome.
func FinishSpan(
	tracingCollector TracingCollector,
	span SpanContext,
	status string,
	duration time.Duration,
	err error,
) {
	if tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		LogAttrStatus:     status,
		LogAttrDurationMS: formatDurationMS(duration),
	}

	if err != nil {
		attrs[LogAttrError] = err.Error()
	}

	if status == StatusRejected {
		attrs[LogAttrErrorCode] = circulation.BusinessErrorCode(err)
	}

	tracingCollector.FinishSpan(span, status, attrs)
}

// LogCommandStart logs the beginning of command processing.
func LogCommandStart(ctx context.Context, logger Logger, contextualLogger ContextualLogger, commandType string) {
	if contextualLogger != nil {
		contextualLogger.DebugContext(ctx, LogMsgCommandStarted, LogAttrCommandType, commandType)
	} else if logger != nil {
		logger.Debug(LogMsgCommandStarted, LogAttrCommandType, commandType)
	}
}

// LogCommandSuccess logs successful command completion.
func LogCommandSuccess(
	ctx context.Context,
	logger Logger,
	contextualLogger ContextualLogger,
	commandType string,
	businessOutcome string,
	duration time.Duration,
) {
	args := []any{
		LogAttrCommandType, commandType,
		LogAttrBusinessOutcome, businessOutcome,
		LogAttrDurationMS, ToMilliseconds(duration),
	}

	if contextualLogger != nil {
		contextualLogger.InfoContext(ctx, LogMsgCommandCompleted, args...)
	} else if logger != nil {
		logger.Info(LogMsgCommandCompleted, args...)
	}
}

// LogCommandRejected logs a business rule violation. These are expected outcomes, not failures.
func LogCommandRejected(
	ctx context.Context,
	logger Logger,
	contextualLogger ContextualLogger,
	commandType string,
	err error,
) {
	args := []any{
		LogAttrCommandType, commandType,
		LogAttrErrorCode, circulation.BusinessErrorCode(err),
		LogAttrError, err.Error(),
	}

	if contextualLogger != nil {
		contextualLogger.InfoContext(ctx, LogMsgCommandRejected, args...)
	} else if logger != nil {
		logger.Info(LogMsgCommandRejected, args...)
	}
}

// LogCommandError logs command processing errors with full detail.
func LogCommandError(
	ctx context.Context,
	logger Logger,
	contextualLogger ContextualLogger,
	commandType string,
	status string,
	err error,
) {
	args := []any{
		LogAttrCommandType, commandType,
		LogAttrStatus, status,
		LogAttrError, err.Error(),
	}

	if kind := RemoteFailureKind(err); kind != "" {
		args = append(args, LogAttrErrorKind, kind)
	}

	if contextualLogger != nil {
		contextualLogger.ErrorContext(ctx, LogMsgCommandFailed, args...)
	} else if logger != nil {
		logger.Error(LogMsgCommandFailed, args...)
	}
}

// LogRebalance logs the summary of a rebalance that changed the pool.
func LogRebalance(
	ctx context.Context,
	logger Logger,
	contextualLogger ContextualLogger,
	commandType string,
	summary *holdqueue.Summary,
) {
	if summary == nil || !summary.Changed {
		return
	}

	args := []any{
		LogAttrCommandType, commandType,
		LogAttrPromoted, summary.Promoted,
		LogAttrDemoted, summary.Demoted,
		LogAttrExpired, summary.Expired,
		LogAttrAvailable, summary.Available,
		LogAttrReserved, summary.Reserved,
	}

	if contextualLogger != nil {
		contextualLogger.InfoContext(ctx, LogMsgHoldQueueRebalanced, args...)
	} else if logger != nil {
		logger.Info(LogMsgHoldQueueRebalanced, args...)
	}
}

// LogQueryStart logs the beginning of query processing.
func LogQueryStart(ctx context.Context, logger Logger, contextualLogger ContextualLogger, queryType string) {
	if contextualLogger != nil {
		contextualLogger.DebugContext(ctx, LogMsgQueryStarted, LogAttrQueryType, queryType)
	} else if logger != nil {
		logger.Debug(LogMsgQueryStarted, LogAttrQueryType, queryType)
	}
}

// LogQuerySuccess logs successful query completion.
func LogQuerySuccess(ctx context.Context, logger Logger, contextualLogger ContextualLogger, queryType string, duration time.Duration) {
	args := []any{
		LogAttrQueryType, queryType,
		LogAttrDurationMS, ToMilliseconds(duration),
	}

	if contextualLogger != nil {
		contextualLogger.InfoContext(ctx, LogMsgQueryCompleted, args...)
	} else if logger != nil {
		logger.Info(LogMsgQueryCompleted, args...)
	}
}

// LogQueryError logs query processing errors.
func LogQueryError(ctx context.Context, logger Logger, contextualLogger ContextualLogger, queryType string, err error) {
	args := []any{
		LogAttrQueryType, queryType,
		LogAttrError, err.Error(),
	}

	if contextualLogger != nil {
		contextualLogger.ErrorContext(ctx, LogMsgQueryFailed, args...)
	} else if logger != nil {
		logger.Error(LogMsgQueryFailed, args...)
	}
}

func recordDuration(ctx context.Context, collector MetricsCollector, metric string, duration time.Duration, labels map[string]string) {
	if contextual, ok := collector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	collector.RecordDuration(metric, duration, labels)
}

func incrementCounter(ctx context.Context, collector MetricsCollector, metric string, labels map[string]string) {
	if contextual, ok := collector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	collector.IncrementCounter(metric, labels)
}

// formatDurationMS formats duration in milliseconds for span attributes.
func formatDurationMS(duration time.Duration) string {
	return fmt.Sprintf("%.2f", ToMilliseconds(duration))
}

func formatAttempt(attempt int) string {
	return strconv.Itoa(attempt)
}
