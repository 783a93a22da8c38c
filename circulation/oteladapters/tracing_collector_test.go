package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/oteladapters"
)

func newTracing() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("circulation")), exporter
}

func hasAttribute(span tracetest.SpanStub, key, value string) bool {
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) && attr.Value.AsString() == value {
			return true
		}
	}

	return false
}

func Test_TracingCollector_RecordsSpan(t *testing.T) {
	// arrange
	collector, exporter := newTracing()

	// act
	ctx, span := collector.StartSpan(context.Background(), "checkout", map[string]string{"pool_id": "p-1"})
	span.AddAttribute("license_id", "l-1")
	collector.FinishSpan(span, circulation.StatusSuccess, map[string]string{"loan_id": "loan-1"})

	// assert
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "checkout", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.True(t, hasAttribute(spans[0], "pool_id", "p-1"))
	assert.True(t, hasAttribute(spans[0], "license_id", "l-1"))
	assert.True(t, hasAttribute(spans[0], "loan_id", "loan-1"))
}

func Test_TracingCollector_MapsStatuses(t *testing.T) {
	testCases := []struct {
		status       string
		expectedCode codes.Code
	}{
		{status: circulation.StatusSuccess, expectedCode: codes.Ok},
		{status: circulation.StatusRejected, expectedCode: codes.Ok},
		{status: circulation.StatusNoop, expectedCode: codes.Ok},
		{status: circulation.StatusError, expectedCode: codes.Error},
		{status: "timeout", expectedCode: codes.Error},
		{status: "something else", expectedCode: codes.Unset},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			collector, exporter := newTracing()

			// act
			_, span := collector.StartSpan(context.Background(), "op", nil)
			collector.FinishSpan(span, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
			assert.True(t, hasAttribute(spans[0], "circulation.status", tc.status))
		})
	}
}

func Test_TracingCollector_NestsSpans(t *testing.T) {
	// arrange
	collector, exporter := newTracing()

	// act
	ctx, parent := collector.StartSpan(context.Background(), "checkout", nil)
	_, child := collector.StartSpan(ctx, "ledger.pool_lock", nil)
	collector.FinishSpan(child, circulation.StatusSuccess, nil)
	collector.FinishSpan(parent, circulation.StatusSuccess, nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}
