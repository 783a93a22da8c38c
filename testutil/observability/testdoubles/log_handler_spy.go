package testdoubles

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogHandlerSpy is a slog.Handler that captures log records for assertions.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a LogHandlerSpy.
// Switch logToStdout on to see the records while debugging a test.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{logToStdout: logToStdout}
}

// Handle implements slog.Handler.
func (h *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)

	if h.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler.
func (h *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler.
func (h *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

// WithGroup implements slog.Handler.
func (h *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return h
}

// RecordCount returns the number of captured records.
func (h *LogHandlerSpy) RecordCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.records)
}

// Reset drops all captured records.
func (h *LogHandlerSpy) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.records[:0]
}

// HasLog starts a fluent chain matching the first record with level and message.
func (h *LogHandlerSpy) HasLog(level slog.Level, message string) *LogRecordMatcher {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, record := range h.records {
		if record.Level == level && record.Message == message {
			return &LogRecordMatcher{record: record, found: true}
		}
	}

	return &LogRecordMatcher{}
}

// HasDebugLog starts a fluent chain for a debug record.
func (h *LogHandlerSpy) HasDebugLog(message string) *LogRecordMatcher {
	return h.HasLog(slog.LevelDebug, message)
}

// HasInfoLog starts a fluent chain for an info record.
func (h *LogHandlerSpy) HasInfoLog(message string) *LogRecordMatcher {
	return h.HasLog(slog.LevelInfo, message)
}

// HasErrorLog starts a fluent chain for an error record.
func (h *LogHandlerSpy) HasErrorLog(message string) *LogRecordMatcher {
	return h.HasLog(slog.LevelError, message)
}

// LogRecordMatcher checks attributes of a matched record.
type LogRecordMatcher struct {
	record slog.Record
	found  bool
}

// WithDurationMS requires a non-negative duration_ms attribute.
func (m *LogRecordMatcher) WithDurationMS() *LogRecordMatcher {
	return m.withAttr("duration_ms", func(value slog.Value) bool {
		switch value.Kind() {
		case slog.KindFloat64:
			return value.Float64() >= 0
		case slog.KindInt64:
			return value.Int64() >= 0
		default:
			return false
		}
	})
}

// WithAttr requires an attribute whose string form equals expected.
func (m *LogRecordMatcher) WithAttr(key, expected string) *LogRecordMatcher {
	return m.withAttr(key, func(value slog.Value) bool {
		return value.String() == expected
	})
}

// WithAttrContaining requires an attribute whose string form contains part.
func (m *LogRecordMatcher) WithAttrContaining(key, part string) *LogRecordMatcher {
	return m.withAttr(key, func(value slog.Value) bool {
		return strings.Contains(value.String(), part)
	})
}

// Assert returns true if every condition in the chain held.
func (m *LogRecordMatcher) Assert() bool {
	return m.found
}

func (m *LogRecordMatcher) withAttr(key string, match func(slog.Value) bool) *LogRecordMatcher {
	if !m.found {
		return m
	}

	matched := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key && match(attr.Value) {
			matched = true
			return false
		}

		return true
	})

	m.found = matched

	return m
}
