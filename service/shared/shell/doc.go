// Package shell holds the infrastructure shared by the circulation feature slices:
// the command and query contracts, HandlerResult, handler observability helpers and
// the exponential backoff retry used while waiting for the database at startup.
//
// Command handlers never retry on their own. A checkout or a return reaches the distributor,
// and repeating it after a local failure would lend or return a copy twice.
//
// In Domain-Driven Design or Hexagonal Architecture terminology, this would be
// called the 'infrastructure' layer.
package shell
