package versioning

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
)

// Version represents a semantic version
type Version struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
}

// String returns the version as a string (e.g., "1.2.3" or "1.2.3-beta")
func (v Version) String() string {
	version := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		version += "-" + v.Prerelease
	}
	return version
}

// Compare compares this version with another version
// Returns: -1 if this < other, 0 if equal, 1 if this > other
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}

	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}

	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}

	if v.Prerelease == "" && other.Prerelease == "" {
		return 0
	}
	if v.Prerelease == "" {
		return 1 // Release version is greater than prerelease
	}
	if other.Prerelease == "" {
		return -1
	}

	if v.Prerelease < other.Prerelease {
		return -1
	}
	if v.Prerelease > other.Prerelease {
		return 1
	}
	return 0
}

// Current application version
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Build metadata, injected at build time via -ldflags
var (
	GitCommit = ""
	BuildTime = ""
)

// ParseVersion parses a version string into a Version
func ParseVersion(versionStr string) (Version, error) {
	re := regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9\-\.]+))?$`)
	matches := re.FindStringSubmatch(versionStr)

	if len(matches) < 4 {
		return Version{}, fmt.Errorf("invalid version format: %s", versionStr)
	}

	major, err := strconv.Atoi(matches[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid major version: %s", matches[1])
	}

	minor, err := strconv.Atoi(matches[2])
	if err != nil {
		return Version{}, fmt.Errorf("invalid minor version: %s", matches[2])
	}

	patch, err := strconv.Atoi(matches[3])
	if err != nil {
		return Version{}, fmt.Errorf("invalid patch version: %s", matches[3])
	}

	var prerelease string
	if len(matches) > 4 && matches[4] != "" {
		prerelease = matches[4]
	}

	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: prerelease,
	}, nil
}

// VersionInfo contains comprehensive version information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// Info returns the running build's version information
func Info() VersionInfo {
	return VersionInfo{
		Version:   CurrentVersion.String(),
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
