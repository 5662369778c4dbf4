// Package dispatch maps parsed commands onto a fixed handler table.
//
// Ownership boundary:
// - command name -> handler resolution
// - getdata row-limit and downsampling policy
// - conversion of every handler failure into an error reply
package dispatch
