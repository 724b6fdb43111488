// Package version holds the build metadata stamped in via -ldflags, reported
// by the health endpoints and the binary's --version flag.
package version

var (
	// Version is the semantic version of the build.
	Version = "v0.0.0-dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info renders the three fields as one human-readable line.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
