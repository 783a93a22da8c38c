package promadapters

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathangreen/circulation/circulation"
)

// DefaultDurationBuckets cover fast ledger statements up to the 20 second distributor timeout.
var DefaultDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20}

type vec[T any] struct {
	labelNames []string
	vec        T
}

// MetricsCollector implements circulation.MetricsCollector with Prometheus vectors.
type MetricsCollector struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	buckets  []float64

	mu         sync.Mutex
	histograms map[string]vec[*prometheus.HistogramVec]
	counters   map[string]vec[*prometheus.CounterVec]
	gauges     map[string]vec[*prometheus.GaugeVec]
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector) error

// WithBuckets overrides DefaultDurationBuckets.
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) error {
		m.buckets = buckets
		return nil
	}
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *MetricsCollector) error {
		if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
			return err
		}

		return m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
}

// NewMetricsCollector creates a collector with its own registry.
func NewMetricsCollector(options ...Option) (*MetricsCollector, error) {
	registry := prometheus.NewRegistry()

	m := &MetricsCollector{
		registry:   registry,
		factory:    promauto.With(registry),
		buckets:    DefaultDurationBuckets,
		histograms: make(map[string]vec[*prometheus.HistogramVec]),
		counters:   make(map[string]vec[*prometheus.CounterVec]),
		gauges:     make(map[string]vec[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the registry the vectors are registered on.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDuration observes duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	h, found := m.histograms[metric]
	if !found {
		h = vec[*prometheus.HistogramVec]{labelNames: labelNames(labels)}
		h.vec = m.factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metric,
			Help:    "Circulation operation duration in seconds.",
			Buckets: m.buckets,
		}, h.labelNames)
		m.histograms[metric] = h
	}
	m.mu.Unlock()

	h.vec.WithLabelValues(labelValues(h.labelNames, labels)...).Observe(duration.Seconds())
}

// IncrementCounter adds one to the counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	m.mu.Lock()
	c, found := m.counters[metric]
	if !found {
		c = vec[*prometheus.CounterVec]{labelNames: labelNames(labels)}
		c.vec = m.factory.NewCounterVec(prometheus.CounterOpts{
			Name: metric,
			Help: "Circulation event counter.",
		}, c.labelNames)
		m.counters[metric] = c
	}
	m.mu.Unlock()

	c.vec.WithLabelValues(labelValues(c.labelNames, labels)...).Inc()
}

// RecordValue sets the gauge.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	g, found := m.gauges[metric]
	if !found {
		g = vec[*prometheus.GaugeVec]{labelNames: labelNames(labels)}
		g.vec = m.factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: metric,
			Help: "Circulation current value.",
		}, g.labelNames)
		m.gauges[metric] = g
	}
	m.mu.Unlock()

	g.vec.WithLabelValues(labelValues(g.labelNames, labels)...).Set(value)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}

var _ circulation.MetricsCollector = (*MetricsCollector)(nil)
