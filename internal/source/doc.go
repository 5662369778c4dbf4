// Package source owns the data-source capability and its registry.
//
// Ownership boundary:
// - Source capability interface and fetch payload shapes
// - kind -> constructor factories, validated at registration time
// - descriptor registry with lazy, once-only backend construction
package source
