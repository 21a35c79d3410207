// Package version provides firmware version parsing and comparison.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the firmware version of this build. Overridden at build time:
//
//	go build -ldflags "-X .../pkg/version.Current=1.4.2"
var Current = "0.0.0"

// Version represents a parsed "major.minor.patch" firmware version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor.patch" version string. A leading "v" is
// accepted, since release manifests in the wild carry one.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimPrefix(s, "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	components := [3]uint16{}
	for i, part := range parts {
		value, err := strconv.ParseUint(part, 10, 16)
		if err != nil || part == "" {
			return Version{}, fmt.Errorf("invalid version %q: bad component %q", s, part)
		}
		components[i] = uint16(value)
	}

	return Version{Major: components[0], Minor: components[1], Patch: components[2]}, nil
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is older than, equal to, or newer than
// other.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return compareComponent(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return compareComponent(v.Minor, other.Minor)
	}
	return compareComponent(v.Patch, other.Patch)
}

// NewerThan returns true if v is strictly newer than other.
func (v Version) NewerThan(other Version) bool {
	return v.Compare(other) > 0
}

func compareComponent(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
