// Package version carries build metadata injected via ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String formats the build metadata for CLI output.
func String() string {
	return fmt.Sprintf("nfscan %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
