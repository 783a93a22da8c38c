package oteladapters

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/jonathangreen/circulation/circulation"
)

// SlogBridgeLogger implements circulation.ContextualLogger on log/slog.
// Created with NewSlogBridgeLogger it writes through the OpenTelemetry slog bridge,
// which correlates every record with the span in its context.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

// NewSlogBridgeLogger creates a logger on the global OpenTelemetry LoggerProvider.
func NewSlogBridgeLogger(name string) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name)}
}

// NewSlogBridgeLoggerWithHandler creates a logger writing to handler, without trace correlation.
func NewSlogBridgeLoggerWithHandler(handler slog.Handler) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: slog.New(handler)}
}

// DebugContext logs a debug message with context.
func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context.
func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

var _ circulation.ContextualLogger = (*SlogBridgeLogger)(nil)

// OTelLogger implements circulation.ContextualLogger by emitting records through the
// OpenTelemetry logs API directly.
type OTelLogger struct {
	logger log.Logger
}

// NewOTelLogger wraps logger.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

// DebugContext emits a debug record.
func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityDebug, msg, args...)
}

// InfoContext emits an info record.
func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityInfo, msg, args...)
}

// WarnContext emits a warning record.
func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityWarn, msg, args...)
}

// ErrorContext emits an error record.
func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityError, msg, args...)
}

func (l *OTelLogger) emit(ctx context.Context, severity log.Severity, msg string, args ...any) {
	if !l.logger.Enabled(ctx, log.EnabledParameters{Severity: severity}) {
		return
	}

	record := log.Record{}
	record.SetSeverity(severity)
	record.SetSeverityText(severityText(severity))
	record.SetBody(log.StringValue(msg))
	record.AddAttributes(logAttributes(args)...)

	l.logger.Emit(ctx, record)
}

// logAttributes converts slog-style key/value pairs. A trailing key without value is dropped.
func logAttributes(args []any) []log.KeyValue {
	attrs := make([]log.KeyValue, 0, len(args)/2)

	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		switch value := args[i+1].(type) {
		case string:
			attrs = append(attrs, log.String(key, value))
		case int:
			attrs = append(attrs, log.Int(key, value))
		case int64:
			attrs = append(attrs, log.Int64(key, value))
		case float64:
			attrs = append(attrs, log.Float64(key, value))
		case bool:
			attrs = append(attrs, log.Bool(key, value))
		case error:
			attrs = append(attrs, log.String(key, value.Error()))
		default:
			attrs = append(attrs, log.String(key, slog.AnyValue(value).String()))
		}
	}

	return attrs
}

func severityText(severity log.Severity) string {
	switch severity {
	case log.SeverityDebug:
		return "DEBUG"
	case log.SeverityWarn:
		return "WARN"
	case log.SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

var _ circulation.ContextualLogger = (*OTelLogger)(nil)
