// Package updateloan reconciles a loan with its Loan Status Document.
//
// A closed loan is removed and its slot goes back through the hold queue. An open loan follows the
// document's potential_rights end. The document is either pushed by the distributor's notification
// callback or fetched from the loan's status URL.
package updateloan
