// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for the version subcommand and the
// run ledger.
func String() string {
	return fmt.Sprintf("annotation-catalog %s (%s, built %s)", Version, GitSHA, BuildTime)
}
