package testdoubles

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MetricsCollectorSpy captures calls to circulation.MetricsCollector.
type MetricsCollectorSpy struct {
	durations []DurationRecord
	counters  []CounterRecord
	values    []ValueRecord
	mu        sync.Mutex
}

// DurationRecord is a captured RecordDuration call.
type DurationRecord struct {
	Metric   string
	Duration time.Duration
	Labels   map[string]string
}

// CounterRecord is a captured IncrementCounter call.
type CounterRecord struct {
	Metric string
	Labels map[string]string
}

// ValueRecord is a captured RecordValue call.
type ValueRecord struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// NewMetricsCollectorSpy creates a MetricsCollectorSpy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

// RecordDuration implements circulation.MetricsCollector.
func (c *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations = append(c.durations, DurationRecord{Metric: metric, Duration: duration, Labels: maps.Clone(labels)})
}

// IncrementCounter implements circulation.MetricsCollector.
func (c *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = append(c.counters, CounterRecord{Metric: metric, Labels: maps.Clone(labels)})
}

// RecordValue implements circulation.MetricsCollector.
func (c *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, ValueRecord{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// Durations returns a copy of the captured duration records.
func (c *MetricsCollectorSpy) Durations() []DurationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]DurationRecord(nil), c.durations...)
}

// Counters returns a copy of the captured counter records.
func (c *MetricsCollectorSpy) Counters() []CounterRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]CounterRecord(nil), c.counters...)
}

// Values returns a copy of the captured value records.
func (c *MetricsCollectorSpy) Values() []ValueRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ValueRecord(nil), c.values...)
}

// HasDuration reports whether a duration with metric and all given labels was recorded.
func (c *MetricsCollectorSpy) HasDuration(metric string, labels map[string]string) bool {
	for _, record := range c.Durations() {
		if record.Metric == metric && containsLabels(record.Labels, labels) {
			return true
		}
	}

	return false
}

// HasCounter reports whether a counter with metric and all given labels was incremented.
func (c *MetricsCollectorSpy) HasCounter(metric string, labels map[string]string) bool {
	for _, record := range c.Counters() {
		if record.Metric == metric && containsLabels(record.Labels, labels) {
			return true
		}
	}

	return false
}

// HasValue reports whether a value with metric and all given labels was recorded.
func (c *MetricsCollectorSpy) HasValue(metric string, labels map[string]string) bool {
	for _, record := range c.Values() {
		if record.Metric == metric && containsLabels(record.Labels, labels) {
			return true
		}
	}

	return false
}

// Reset drops all captured records.
func (c *MetricsCollectorSpy) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations, c.counters, c.values = nil, nil, nil
}

// ContextualMetricsCollectorSpy is a MetricsCollectorSpy that also implements the context-aware methods.
type ContextualMetricsCollectorSpy struct {
	*MetricsCollectorSpy

	contextCalls int
	mu           sync.Mutex
}

// NewContextualMetricsCollectorSpy creates a ContextualMetricsCollectorSpy.
func NewContextualMetricsCollectorSpy() *ContextualMetricsCollectorSpy {
	return &ContextualMetricsCollectorSpy{MetricsCollectorSpy: NewMetricsCollectorSpy()}
}

// RecordDurationContext implements circulation.ContextualMetricsCollector.
func (c *ContextualMetricsCollectorSpy) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	c.countContextCall()
	c.RecordDuration(metric, duration, labels)
}

// IncrementCounterContext implements circulation.ContextualMetricsCollector.
func (c *ContextualMetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	c.countContextCall()
	c.IncrementCounter(metric, labels)
}

// RecordValueContext implements circulation.ContextualMetricsCollector.
func (c *ContextualMetricsCollectorSpy) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	c.countContextCall()
	c.RecordValue(metric, value, labels)
}

// ContextCalls returns how many context-aware methods were called.
func (c *ContextualMetricsCollectorSpy) ContextCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.contextCalls
}

func (c *ContextualMetricsCollectorSpy) countContextCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextCalls++
}

func containsLabels(actual, expected map[string]string) bool {
	for key, value := range expected {
		if actual[key] != value {
			return false
		}
	}

	return true
}
