package shell

import (
	"context"

	"github.com/jonathangreen/circulation/circulation"
)

// Command represents the contract for all circulation commands.
// The CommandType method enables polymorphic handling and observability instrumentation.
type Command interface {
	CommandType() string
}

// Query represents the contract for all circulation queries.
type Query interface {
	QueryType() string
}

// Result is implemented by every command result. Results embed HandlerResult to satisfy it.
type Result interface {
	Outcome() HandlerResult
}

// CommandHandler defines the contract for components that process one command type.
// Implementations contain only business logic; observability is added by observable.CommandWrapper.
type CommandHandler[C Command, R Result] interface {
	Handle(ctx context.Context, command C) (R, error)
}

// QueryHandler defines the contract for components that answer one query type.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

// Interface aliases for convenience when using handler observability.
// They are the observability interfaces of the circulation package.

// MetricsCollector interface for collecting handler performance metrics.
type MetricsCollector = circulation.MetricsCollector

// ContextualMetricsCollector extends MetricsCollector with context-aware methods.
type ContextualMetricsCollector = circulation.ContextualMetricsCollector

// TracingCollector interface for distributed tracing in handlers.
type TracingCollector = circulation.TracingCollector

// SpanContext represents an active tracing span.
type SpanContext = circulation.SpanContext

// ContextualLogger interface for context-aware logging in handlers.
type ContextualLogger = circulation.ContextualLogger

// Logger interface for basic logging in handlers.
type Logger = circulation.Logger
