// Package version carries build metadata stamped via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// BuildTime is when the binary was produced.
	BuildTime = "unknown"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// Info returns the build metadata for the version endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}
}
