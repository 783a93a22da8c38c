// Package testdoubles provides spies for the observability interfaces of the circulation engine.
//
//   - LogHandlerSpy: a slog.Handler that captures records
//   - ContextualLoggerSpy: captures context-aware logging calls
//   - MetricsCollectorSpy: captures durations, counters and values
//   - TracingCollectorSpy: captures started and finished spans
package testdoubles
