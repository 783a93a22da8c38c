// Package fulfill hands the patron the content of a loan.
//
// Open-access and unlimited titles redirect to the delivery mechanism's resource, or return a bearer
// token document built from the distributor session token. License-backed loans ask the distributor
// for the loan status first and pick the link matching the requested DRM scheme.
package fulfill
