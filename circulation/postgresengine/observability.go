package postgresengine

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

const (
	logMsgBuildQueryFailed = "failed to build query"
	logMsgDBQueryFailed    = "database query execution failed"
	logMsgDBExecFailed     = "database execution failed"
	logMsgScanRowFailed    = "failed to scan database row"
	logMsgCloseRowsFailed  = "failed to close database rows"
	logMsgBeginTxFailed    = "failed to begin transaction"
	logMsgCommitFailed     = "failed to commit transaction"
	logMsgRollbackFailed   = "failed to roll back transaction"
	logMsgSQLExecuted      = "executed sql for: "
	logMsgOperation        = "ledger operation: "
	logMsgStatePersisted   = "pool state persisted"
	logMsgPoolSaved        = "license pool saved"
	logMsgMigrated         = "migrations applied"
	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrDurationMS      = "duration_ms"
	logAttrPoolID          = "pool_id"
	logAttrLoans           = "loans"
	logAttrHolds           = "holds"
	logAttrLicenses        = "licenses"
	logAttrMigrations      = "migrations"

	metricQueryDuration    = "ledger_query_duration_seconds"
	metricDatabaseErrors   = "ledger_database_errors_total"
	metricPoolLockDuration = "ledger_pool_lock_duration_seconds"
	labelOperation         = "operation"
	labelStatus            = "status"
	labelErrorType         = "error_type"
	labelPersisted         = "persisted"

	spanNamePoolLock       = "ledger.pool_lock"
	spanNamePatronActivity = "ledger.patron_activity"
	spanAttrPoolID         = "pool_id"
	spanAttrPatronID       = "patron_id"
	spanAttrErrorType      = "error_type"

	errorTypeQuery       = "query_error"
	errorTypeExec        = "exec_error"
	errorTypeScan        = "scan_error"
	errorTypeBuildQuery  = "build_query_error"
	errorTypeTransaction = "transaction_error"
	errorTypeNotFound    = "not_found"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if a logger is configured.
func (s *LedgerStore) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (s *LedgerStore) logOperation(ctx context.Context, action string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

func (s *LedgerStore) logWarn(ctx context.Context, message string, err error) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error())
		return
	}

	if s.logger != nil {
		s.logger.Warn(message, logAttrError, err.Error())
	}
}

// logError logs error information at the error level if a logger is configured.
func (s *LedgerStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}
}

func (s *LedgerStore) recordQueryDuration(ctx context.Context, action, status string, duration time.Duration) {
	s.recordDuration(ctx, metricQueryDuration, duration, map[string]string{
		labelOperation: action,
		labelStatus:    status,
	})
}

func (s *LedgerStore) recordLockDuration(ctx context.Context, duration time.Duration, persisted bool) {
	s.recordDuration(ctx, metricPoolLockDuration, duration, map[string]string{
		labelPersisted: strconv.FormatBool(persisted),
	})
}

func (s *LedgerStore) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

// recordError counts database errors if a metrics collector is configured.
func (s *LedgerStore) recordError(ctx context.Context, action, errType string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelOperation: action,
		labelStatus:    circulation.StatusError,
		labelErrorType: errType,
	}

	if contextual, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
}

func (s *LedgerStore) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, name, attrs)
}

func (s *LedgerStore) finishSpan(span circulation.SpanContext, status, errType string) {
	if s.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{}
	if errType != "" {
		attrs[spanAttrErrorType] = errType
	}

	s.tracingCollector.FinishSpan(span, status, attrs)
}

// spanStatus maps the result of a pool operation: business rule violations are rejections, not errors.
func spanStatus(err error) string {
	switch {
	case err == nil:
		return circulation.StatusSuccess
	case circulation.IsBusinessRuleViolation(err):
		return circulation.StatusRejected
	default:
		return circulation.StatusError
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, circulation.ErrPoolNotFound):
		return errorTypeNotFound
	case errors.Is(err, circulation.ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, circulation.ErrScanningDBRowFailed):
		return errorTypeScan
	case errors.Is(err, circulation.ErrPersistingLedgerFailed):
		return errorTypeExec
	case errors.Is(err, circulation.ErrBeginTransactionFailed), errors.Is(err, circulation.ErrCommitFailed):
		return errorTypeTransaction
	default:
		return errorTypeQuery
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
