// Package patronactivity lists a patron's loans and holds across pools.
//
// Every pool the patron touches is locked in turn: expired reservations are removed and their slots
// passed on, the patron's hold position and end date are recomputed, and on request each license-backed
// loan is reconciled with the distributor. Loans that already ended are left out.
package patronactivity
