// Package server runs the VDX TCP listener and its per-connection sessions.
//
// Ownership boundary:
// - accept loop and session lifecycle
// - read/write deadlines at the connection boundary
// - admin HTTP surface (health, readiness, metrics, source listing)
package server
