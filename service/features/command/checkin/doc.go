// Package checkin implements returning a borrowed title.
//
// The distributor is asked for the loan's current status first. A loan it already closed is removed
// locally without a return call. An open loan is returned through its return link. Either way the
// loan's slot goes back to its license and the hold queue is rebalanced in the same transaction.
package checkin
