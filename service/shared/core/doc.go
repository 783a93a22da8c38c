// Package core holds the pure decision types shared by the circulation feature slices.
//
// Every command slice splits its work into a pure Decide function that inspects the locked
// circulation.PoolState and returns a DecisionResult, and a command handler that performs the
// side effects the decision asks for (distributor calls, ledger mutations, hold queue rebalancing).
//
// ApplyLoanStatus is the shared rule for reconciling a local loan with a fresh Loan Status Document.
// It is used by the loan notification command and by the patron activity sync.
//
// In Domain-Driven Design or Hexagonal Architecture terminology, this would be
// called the 'domain' layer.
package core
