// Package migration implements the schema-version tracking and
// backup-then-migrate-then-record state machine that every on-disk store
// (trust, history, resume, config) shares (spec §4.11).
package migration

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic major.minor.patch schema version.
type Version struct {
	Major, Minor, Patch uint32
}

func NewVersion(major, minor, patch uint32) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// ParseVersion parses "major.minor.patch", with an optional leading "v".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version format: %q", s)
	}
	nums := make([]uint32, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version component %q: %w", p, err)
		}
		nums[i] = uint32(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 per v relative to other.
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, other.Patch)
}

func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }
func (v Version) Less(other Version) bool  { return v.Compare(other) < 0 }
