package testdoubles

import (
	"context"
	"sync"
)

// ContextualLoggerSpy captures calls to circulation.ContextualLogger.
type ContextualLoggerSpy struct {
	records []ContextualLogRecord
	mu      sync.Mutex
}

// ContextualLogRecord is one captured call.
type ContextualLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// NewContextualLoggerSpy creates a ContextualLoggerSpy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

// DebugContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

// InfoContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

// WarnContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

// ErrorContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

// Records returns a copy of the captured calls.
func (s *ContextualLoggerSpy) Records() []ContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]ContextualLogRecord, len(s.records))
	copy(records, s.records)

	return records
}

// HasRecord reports whether a call with level and message was captured.
func (s *ContextualLoggerSpy) HasRecord(level, message string) bool {
	for _, record := range s.Records() {
		if record.Level == level && record.Message == message {
			return true
		}
	}

	return false
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, ContextualLogRecord{
		Level:   level,
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}
