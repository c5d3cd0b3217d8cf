package version

import (
	"fmt"
	"runtime"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains all build-related information.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the current version.
func GetVersion() string {
	if Version == "dev" && len(GitCommit) >= 8 {
		return fmt.Sprintf("dev-%s", GitCommit[:8])
	}
	return Version
}

// GetFullVersion returns a detailed version string.
func GetFullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)",
		GetVersion(), GitCommit, BuildDate, GoVersion)
}

// GetBuildInfo returns all build information.
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}
