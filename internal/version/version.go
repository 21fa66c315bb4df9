// Package version carries build provenance stamped at link time.
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

// Generator is the provenance value written to the generator tag of map
// objects and to run records.
func Generator() string {
	if GitSHA == "unknown" || GitSHA == "" {
		return "lidar2map/" + Version
	}
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("lidar2map/%s+%s", Version, sha)
}

// String is the long form printed by the version command.
func String() string {
	return fmt.Sprintf("lidar2map %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
