// Package release decides the next version of every workspace package. It
// classifies the commits attributed to each top-level package, reconciles the
// verdicts across nesting and dependency edges to a fixed point, and hands
// the result to changelog and manifest writers.
package release

import (
	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// Status is the per-run record for one package. Bump only ever increases
// over a run, and every increase appends one reason.
type Status struct {
	Index     int
	Package   workspace.Package
	Changelog string
	Bump      version.Bump
	Reasons   []string
}

// NewStatuses returns one neutral status per package, index-aligned with g.
func NewStatuses(g *workspace.Graph) []Status {
	statuses := make([]Status, g.Len())
	for i := range statuses {
		statuses[i] = Status{Index: i, Package: g.Package(i)}
	}
	return statuses
}

// raise lifts the bump to at least to, recording reason. It reports whether
// the bump changed.
func (s *Status) raise(to version.Bump, reason string) bool {
	if to <= s.Bump {
		return false
	}
	s.Bump = to
	s.Reasons = append(s.Reasons, reason)
	return true
}

// FinalVersion is the package version after applying the bump.
func (s Status) FinalVersion() version.Version {
	return version.Apply(s.Bump, s.Package.Version)
}
