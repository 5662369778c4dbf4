// Package protocol owns the VDX text wire contract.
//
// Ownership boundary:
// - command line parsing (name:key=value&key=value)
// - result header rendering (ok:/error:)
// - parameter percent-escaping
//
// Binary matrix bodies live in protocol/matrix.
package protocol
