package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonathangreen/circulation/circulation"
)

const attrStatus = "circulation.status"

// TracingCollector implements circulation.TracingCollector with an OpenTelemetry tracer.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on tracer.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span with attrs and returns the context carrying it.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attributes(attrs)...))

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan adds attrs, sets the status and ends the span.
// Span contexts not created by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(attributes(attrs)...)
	otelSpanCtx.SetStatus(status)
	otelSpanCtx.span.End()
}

var _ circulation.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext implements circulation.SpanContext on an OpenTelemetry span.
type OTelSpanContext struct {
	span trace.Span
}

// SetStatus maps circulation statuses to span status codes.
// Rejections are business outcomes, so they end Ok and keep the status as an attribute.
func (s *OTelSpanContext) SetStatus(status string) {
	s.span.SetAttributes(attribute.String(attrStatus, status))

	switch status {
	case circulation.StatusSuccess, circulation.StatusRejected, circulation.StatusNoop:
		s.span.SetStatus(codes.Ok, "")
	case circulation.StatusError:
		s.span.SetStatus(codes.Error, "operation failed")
	case "timeout":
		s.span.SetStatus(codes.Error, "operation timed out")
	case "canceled", "cancelled":
		s.span.SetStatus(codes.Error, "operation canceled")
	}
}

// AddAttribute sets a string attribute on the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

var _ circulation.SpanContext = (*OTelSpanContext)(nil)
