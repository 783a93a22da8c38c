// Package oteladapters implements the circulation observability interfaces on OpenTelemetry.
//
//   - SlogBridgeLogger and OTelLogger implement circulation.ContextualLogger
//   - MetricsCollector implements circulation.ContextualMetricsCollector
//   - TracingCollector implements circulation.TracingCollector
//
// All of them use whatever providers the caller configured, so they are no-ops until an SDK is installed.
package oteladapters
