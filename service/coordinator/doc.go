// Package coordinator wires the circulation feature handlers for one collection behind a single facade.
//
// Each operation is a feature slice under service/features. The Coordinator builds the core handlers,
// wraps them with the observable wrappers and exposes one method per operation.
package coordinator
