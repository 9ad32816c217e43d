package version

import (
	"errors"
	"fmt"
)

// ErrBumpOutOfRange is returned when a raw bump value is outside [0, 3].
var ErrBumpOutOfRange = errors.New("bump value out of range")

// Bump is the magnitude of a version increment. Values are totally ordered:
// None < Patch < Minor < Major.
type Bump int8

// Bump levels, in increasing order.
const (
	None Bump = iota
	Patch
	Minor
	Major
)

// BumpFromRaw converts the wire form used by classifiers (0=None, 1=Patch,
// 2=Minor, 3=Major) into a Bump.
func BumpFromRaw(raw int) (Bump, error) {
	if raw < int(None) || raw > int(Major) {
		return None, fmt.Errorf("%w: %d (want 0..3)", ErrBumpOutOfRange, raw)
	}
	return Bump(raw), nil
}

// MaxBump returns the larger of a and b.
func MaxBump(a, b Bump) Bump {
	if a > b {
		return a
	}
	return b
}

// String returns the bump level name.
func (b Bump) String() string {
	switch b {
	case None:
		return "None"
	case Patch:
		return "Patch"
	case Minor:
		return "Minor"
	case Major:
		return "Major"
	default:
		return fmt.Sprintf("Bump(%d)", int8(b))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b Bump) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Apply returns v advanced by b. See Apply.
func (b Bump) Apply(v Version) Version {
	return Apply(b, v)
}

// Apply returns the version that follows v under bump b. None returns v
// unchanged. Any other bump clears pre-release and build metadata.
//
// For pre-stable versions (major 0) the intent is downgraded one level: Major
// increments minor, Minor and Patch increment patch.
func Apply(b Bump, v Version) Version {
	if b == None {
		return v
	}
	next := Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
	if v.IsPreStable() {
		switch b {
		case Major:
			next.Minor++
			next.Patch = 0
		default:
			next.Patch++
		}
		return next
	}
	switch b {
	case Major:
		next.Major++
		next.Minor = 0
		next.Patch = 0
	case Minor:
		next.Minor++
		next.Patch = 0
	default:
		next.Patch++
	}
	return next
}
