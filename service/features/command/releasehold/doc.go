// Package releasehold implements a patron leaving a hold queue.
// Releasing a reservation hands the slot to the next hold in line, or back to availability.
package releasehold
