// Package observable provides wrapper components for instrumenting command and query handlers
// with metrics, tracing and logging while keeping business logic pure.
//
// # Core Principle: External Wrapping
//
// The observable wrappers are applied externally at wiring time, not hidden
// inside factory functions:
//
//	// 1. Create the business logic handler
//	coreHandler, err := checkout.NewCommandHandler(ledger, statusClient, settings)
//
//	// 2. Wrap with observability
//	handler, err := observable.NewCommandWrapper[checkout.Command, checkout.Result](
//		coreHandler,
//		observable.WithCommandMetrics[checkout.Command, checkout.Result](metricsCollector),
//		observable.WithCommandTracing[checkout.Command, checkout.Result](tracingCollector),
//	)
//
//	// 3. Use the wrapped handler
//	result, err := handler.Handle(ctx, command)
//
// Business rule violations are logged at info level and counted by error code.
// Distributor failures, ledger failures, timeouts and cancellations are logged at error level.
package observable
