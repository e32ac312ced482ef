// ABOUTME: Build and product identification for the feedback engine
// ABOUTME: Version and Commit are overridden at link time via -ldflags
package version

import "fmt"

const (
	Product      = "Resonate Feedback Engine"
	Manufacturer = "Resonate"
)

// Set with -ldflags "-X .../internal/version.Version=v0.2.0"
var (
	Version = "0.1.0"
	Commit  = "unknown"
)

// String formats the version line shown by the CLI and the bridge hello
func String() string {
	return fmt.Sprintf("%s %s (%s)", Product, Version, Commit)
}
