package testdoubles

import (
	"context"
	"maps"
	"sync"

	"github.com/jonathangreen/circulation/circulation"
)

// SpanContextSpy is a span captured by TracingCollectorSpy.
type SpanContextSpy struct {
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// SetStatus implements circulation.SpanContext.
func (s *SpanContextSpy) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// AddAttribute implements circulation.SpanContext.
func (s *SpanContextSpy) AddAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[key] = value
}

// Status returns the last status set on the span.
func (s *SpanContextSpy) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Attributes returns a copy of the span's attributes.
func (s *SpanContextSpy) Attributes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.attributes)
}

// SpanRecord is a captured span.
type SpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
	Span            *SpanContextSpy
}

// TracingCollectorSpy captures calls to circulation.TracingCollector.
type TracingCollectorSpy struct {
	spans []SpanRecord
	mu    sync.Mutex
}

// NewTracingCollectorSpy creates a TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan implements circulation.TracingCollector.
func (c *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	span := &SpanContextSpy{attributes: make(map[string]string)}
	c.spans = append(c.spans, SpanRecord{
		Name:            name,
		StartAttributes: maps.Clone(attrs),
		Span:            span,
	})

	return ctx, span
}

// FinishSpan implements circulation.TracingCollector.
func (c *TracingCollectorSpy) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpanContextSpy)
	if !ok {
		return
	}

	span.SetStatus(status)

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.spans {
		if c.spans[i].Span == span {
			c.spans[i].Status = status
			c.spans[i].EndAttributes = maps.Clone(attrs)
			c.spans[i].Finished = true
			return
		}
	}
}

// Spans returns a copy of the captured spans.
func (c *TracingCollectorSpy) Spans() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]SpanRecord(nil), c.spans...)
}

// FinishedSpan returns the first finished span with name.
func (c *TracingCollectorSpy) FinishedSpan(name string) (SpanRecord, bool) {
	for _, span := range c.Spans() {
		if span.Name == name && span.Finished {
			return span, true
		}
	}

	return SpanRecord{}, false
}
