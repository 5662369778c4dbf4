package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Name of the daemon binary.
const Name = "vdxd"

// defaultVersion is reported when no version was linked in.
const defaultVersion = "2.0.0"

var (
	version   = "" // Version number, set with -ldflags "-X github.com/usgs/vdx/internal.version=..."
	gitCommit = "" // Git commit hash
)

// Returns the protocol-facing version string, without a "v" prefix.
func Version() string {
	v := strings.TrimSpace(version)
	if v == "" {
		return defaultVersion
	}
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

// Returns a human readable build description.
func VersionString() string {
	commit := strings.TrimSpace(gitCommit)
	if commit == "" {
		commit = "(local)"
	}
	return fmt.Sprintf("%s %s (%s, %s/%s)", Name, Version(), commit, runtime.GOOS, runtime.GOARCH)
}
