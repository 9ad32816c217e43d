// Package workspace models the packages of a multi-package repository, their
// direct dependency edges, and the directory nesting between them. A Graph is
// immutable once built; packages are addressed by a stable index so callers
// can keep per-package state in plain slices.
package workspace

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/papapumpkin/pulsar/internal/version"
)

// ErrDuplicatePackage is returned when two packages share an ID.
var ErrDuplicatePackage = errors.New("duplicate package")

// ErrUnknownDependency is returned when a package depends on an ID that is not
// part of the workspace.
var ErrUnknownDependency = errors.New("unknown dependency")

// ErrSelfDependency is returned when a package lists itself as a dependency.
var ErrSelfDependency = errors.New("package depends on itself")

// Package is one workspace member as loaded from metadata.
type Package struct {
	ID      string
	Name    string
	Version version.Version

	// Dir is the package directory relative to the repository root, slash
	// separated and cleaned. The empty string is the repository root.
	Dir string
	// ExtraDirs are additional repository-relative directories whose changes
	// also belong to this package.
	ExtraDirs []string
	// Dependencies lists the IDs of workspace packages this one directly
	// depends on.
	Dependencies []string

	ManifestPath string
}

// Pair is a nesting relation: Inner's directory lies strictly inside Outer's.
type Pair struct {
	Outer int
	Inner int
}

// Graph is the immutable workspace model.
type Graph struct {
	packages []Package
	index    map[string]int

	// deps[i] holds the indices package i directly depends on; dependents is
	// the reverse relation. Both are sorted ascending.
	deps       [][]int
	dependents [][]int

	nesting []Pair
	nested  []bool
}

// New builds a Graph from packages. Packages are ordered by ID so indices are
// stable across runs for the same metadata.
func New(pkgs []Package) (*Graph, error) {
	sorted := make([]Package, len(pkgs))
	copy(sorted, pkgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	g := &Graph{
		packages:   sorted,
		index:      make(map[string]int, len(sorted)),
		deps:       make([][]int, len(sorted)),
		dependents: make([][]int, len(sorted)),
		nested:     make([]bool, len(sorted)),
	}
	for i := range g.packages {
		p := &g.packages[i]
		if _, exists := g.index[p.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePackage, p.ID)
		}
		g.index[p.ID] = i
		p.Dir = cleanDir(p.Dir)
		extra := make([]string, len(p.ExtraDirs))
		for k, d := range p.ExtraDirs {
			extra[k] = cleanDir(d)
		}
		p.ExtraDirs = extra
	}

	for i, p := range g.packages {
		seen := make(map[int]bool, len(p.Dependencies))
		for _, depID := range p.Dependencies {
			j, ok := g.index[depID]
			if !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, p.ID, depID)
			}
			if j == i {
				return nil, fmt.Errorf("%w: %s", ErrSelfDependency, p.ID)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
		sort.Ints(g.deps[i])
	}
	for j := range g.dependents {
		sort.Ints(g.dependents[j])
	}

	for outer, po := range g.packages {
		for inner, pi := range g.packages {
			if inner == outer || !isStrictDescendant(pi.Dir, po.Dir) {
				continue
			}
			g.nesting = append(g.nesting, Pair{Outer: outer, Inner: inner})
			g.nested[inner] = true
		}
	}
	return g, nil
}

// Len returns the number of packages.
func (g *Graph) Len() int {
	return len(g.packages)
}

// Package returns the package at index i.
func (g *Graph) Package(i int) Package {
	return g.packages[i]
}

// Index returns the index of the package with the given ID.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Dependencies returns the indices package i directly depends on.
func (g *Graph) Dependencies(i int) []int {
	return g.deps[i]
}

// Dependents returns the indices of packages that directly depend on i.
func (g *Graph) Dependents(i int) []int {
	return g.dependents[i]
}

// DirectlyDependsOn reports whether dependent has a direct edge to dependency.
func (g *Graph) DirectlyDependsOn(dependent, dependency int) bool {
	deps := g.deps[dependent]
	k := sort.SearchInts(deps, dependency)
	return k < len(deps) && deps[k] == dependency
}

// Nesting returns every nesting pair, ordered by outer then inner index.
func (g *Graph) Nesting() []Pair {
	return g.nesting
}

// IsNested reports whether package i lies inside another package's directory.
func (g *Graph) IsNested(i int) bool {
	return g.nested[i]
}

// TopLevel returns the indices of packages not nested in any other package.
// Only these are classified.
func (g *Graph) TopLevel() []int {
	var out []int
	for i := range g.packages {
		if !g.nested[i] {
			out = append(out, i)
		}
	}
	return out
}

// Dirs returns the package's own directory followed by its extra directories.
func (g *Graph) Dirs(i int) []string {
	p := g.packages[i]
	dirs := make([]string, 0, 1+len(p.ExtraDirs))
	dirs = append(dirs, p.Dir)
	return append(dirs, p.ExtraDirs...)
}

// Within reports whether the slash-separated path p lies under dir. The test
// is component-wise: "crates/ab" is not within "crates/a". The empty dir is
// the repository root and contains every path.
func Within(p, dir string) bool {
	dir = cleanDir(dir)
	if dir == "" {
		return true
	}
	p = path.Clean(p)
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// isStrictDescendant reports whether dir lies strictly below ancestor.
func isStrictDescendant(dir, ancestor string) bool {
	return dir != ancestor && Within(dir, ancestor)
}

func cleanDir(dir string) string {
	dir = path.Clean(strings.ReplaceAll(dir, "\\", "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.TrimPrefix(dir, "./")
}
