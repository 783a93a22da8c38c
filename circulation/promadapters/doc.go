// Package promadapters implements circulation.MetricsCollector on Prometheus.
//
// Vectors are registered lazily on a collector-owned registry the first time a metric name is seen.
// The label names of that first observation are fixed for the metric: later observations missing a
// label record it as empty, extra labels are dropped.
package promadapters
