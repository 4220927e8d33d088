// Package version holds the build identity stamped into release
// binaries via ldflags.
package version

import (
	"fmt"
	"strings"
)

var (
	// GitCommit is the commit the binary was built from, set by the
	// build.
	GitCommit string

	// GitDescribe is the git describe output at build time; when set it
	// takes precedence over Version.
	GitDescribe string

	// Version is the base semantic version.
	Version = "0.1.0"

	// VersionPrerelease marks non-final builds, e.g. "dev" or "rc1". An
	// empty value means a final release.
	VersionPrerelease = "dev"

	// VersionMetadata further qualifies the build type.
	VersionMetadata = ""
)

// GetHumanVersion composes the version parts into the string shown to
// operators, e.g. "v0.1.0-dev (440bca3)".
func GetHumanVersion() string {
	version := Version
	if GitDescribe != "" {
		version = GitDescribe
	}
	if VersionMetadata != "" {
		version += "+" + VersionMetadata
	}

	release := VersionPrerelease
	if GitDescribe == "" && release == "" {
		release = "dev"
	}

	if release != "" {
		// A tagged prerelease already carries the release suffix.
		if !strings.HasSuffix(version, "-"+release) {
			version += "-" + release
		}
		if GitCommit != "" {
			version += fmt.Sprintf(" (%s)", GitCommit)
		}
	}

	// Git information may arrive single-quoted from the build script.
	version = strings.ReplaceAll(version, "'", "")

	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}
