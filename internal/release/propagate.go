package release

import (
	"fmt"

	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// bumpLevels is the height of the bump lattice, None through Major.
const bumpLevels = int(version.Major) + 1

// Reason texts recorded by propagation.
const (
	reasonNesting = "nested packages should have equal bump"
)

func dependencyReason(dep workspace.Package, b version.Bump) string {
	return fmt.Sprintf("dependency %s had a %s bump", dep.Name, b)
}

// raiseHook observes every raise made during propagation.
type raiseHook func(i int, from, to version.Bump, reason string)

// Propagate applies nesting equalization and dependency propagation to
// statuses until a full pass changes nothing, and returns the number of
// passes run including that final one.
//
// Nesting pairs end with equal bumps, raising whichever side is lower. Every
// direct dependent of a package with a bump above None ends with at least
// Patch; larger bumps are never carried along dependency edges.
//
// Each raise moves one status up a finite lattice, so at most Len*3 passes
// change anything and the loop ends within Len*4+1 passes. Running past that
// means the invariant is broken, and Propagate panics.
func Propagate(g *workspace.Graph, statuses []Status) int {
	return propagate(g, statuses, nil)
}

func propagate(g *workspace.Graph, statuses []Status, hook raiseHook) int {
	if len(statuses) != g.Len() {
		panic(fmt.Sprintf("release: %d statuses for %d packages", len(statuses), g.Len()))
	}
	raise := func(i int, to version.Bump, reason string) bool {
		from := statuses[i].Bump
		if !statuses[i].raise(to, reason) {
			return false
		}
		if hook != nil {
			hook(i, from, to, reason)
		}
		return true
	}

	limit := g.Len()*bumpLevels + 1
	for pass := 1; ; pass++ {
		if pass > limit {
			panic(fmt.Sprintf("release: propagation did not converge within %d passes", limit))
		}
		changed := false

		for _, p := range g.Nesting() {
			outer, inner := statuses[p.Outer].Bump, statuses[p.Inner].Bump
			switch {
			case outer > inner:
				changed = raise(p.Inner, outer, reasonNesting) || changed
			case inner > outer:
				changed = raise(p.Outer, inner, reasonNesting) || changed
			}
		}

		for i := range statuses {
			b := statuses[i].Bump
			if b == version.None {
				continue
			}
			for _, d := range g.Dependents(i) {
				changed = raise(d, version.Patch, dependencyReason(statuses[i].Package, b)) || changed
			}
		}

		if !changed {
			return pass
		}
	}
}
