// Package version models semantic versions and the bump levels that advance
// them. Apply is the only arithmetic the release engine needs: it maps a
// current version and a bump level to the next version.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is returned when a string is not a full MAJOR.MINOR.PATCH
// semantic version.
var ErrInvalidVersion = errors.New("invalid semantic version")

// Version is a semantic version. Pre and Build hold the pre-release and build
// metadata without their leading '-' and '+'.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	Pre   string
	Build string
}

// Parse parses MAJOR.MINOR.PATCH with optional pre-release and build
// metadata. Shorthand forms such as "1.2" are rejected.
func Parse(s string) (Version, error) {
	if !semver.IsValid("v" + s) {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	var v Version
	rest := s
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		v.Build = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		v.Pre = rest[i+1:]
		rest = rest[:i]
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q needs major, minor and patch", ErrInvalidVersion, s)
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String formats the version without a leading "v".
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		b.WriteByte('-')
		b.WriteString(v.Pre)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// IsPreStable reports whether the version has a zero major component. Such
// versions have no stable API boundary at the major level.
func (v Version) IsPreStable() bool {
	return v.Major == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
