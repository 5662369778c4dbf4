// Package matrix owns the binary body layout for row-oriented numeric data.
//
// Layout (all big-endian):
//
//	int32   row count
//	float64 rows*columns values, row-major
//
// Column count is not on the wire; both ends agree on it per dataset kind.
// Bodies are zlib-compressed before transmission (see Compress).
package matrix
