// Package placehold implements joining the hold queue of a title that has no copy to lend.
package placehold
