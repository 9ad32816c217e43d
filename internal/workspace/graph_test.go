package workspace

import (
	"errors"
	"reflect"
	"testing"

	"github.com/papapumpkin/pulsar/internal/version"
)

func pkg(id, dir string, deps ...string) Package {
	return Package{
		ID:           id,
		Name:         id,
		Version:      version.MustParse("0.1.0"),
		Dir:          dir,
		Dependencies: deps,
	}
}

func buildGraph(t *testing.T, pkgs ...Package) *Graph {
	t.Helper()
	g, err := New(pkgs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func mustIndex(t *testing.T, g *Graph, id string) int {
	t.Helper()
	i, ok := g.Index(id)
	if !ok {
		t.Fatalf("Index(%q) not found", id)
	}
	return i
}

func TestNewOrdersByID(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, pkg("c", "crates/c"), pkg("a", "crates/a"), pkg("b", "crates/b"))
	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := g.Package(i).ID; got != want {
			t.Errorf("Package(%d).ID = %q, want %q", i, got, want)
		}
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pkgs []Package
		want error
	}{
		{"duplicate", []Package{pkg("a", "x"), pkg("a", "y")}, ErrDuplicatePackage},
		{"unknown dependency", []Package{pkg("a", "x", "ghost")}, ErrUnknownDependency},
		{"self dependency", []Package{pkg("a", "x", "a")}, ErrSelfDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.pkgs); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDependencyEdges(t *testing.T) {
	t.Parallel()

	g := buildGraph(t,
		pkg("app", "app", "core", "util", "core"),
		pkg("core", "core", "util"),
		pkg("util", "util"),
	)
	app, core, util := mustIndex(t, g, "app"), mustIndex(t, g, "core"), mustIndex(t, g, "util")

	if got, want := g.Dependencies(app), []int{core, util}; !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies(app) = %v, want %v", got, want)
	}
	if got, want := g.Dependents(util), []int{app, core}; !reflect.DeepEqual(got, want) {
		t.Errorf("Dependents(util) = %v, want %v", got, want)
	}
	if !g.DirectlyDependsOn(app, core) {
		t.Error("app should directly depend on core")
	}
	if g.DirectlyDependsOn(util, app) {
		t.Error("util should not depend on app")
	}
}

func TestDependencyCyclesAreAllowed(t *testing.T) {
	t.Parallel()

	// dev-dependency cycles between workspace members are legal in Cargo.
	g := buildGraph(t, pkg("a", "a", "b"), pkg("b", "b", "a"))
	if !g.DirectlyDependsOn(0, 1) || !g.DirectlyDependsOn(1, 0) {
		t.Error("expected edges in both directions")
	}
}

func TestNesting(t *testing.T) {
	t.Parallel()

	g := buildGraph(t,
		pkg("outer", "crates/outer"),
		pkg("inner", "crates/outer/inner"),
		pkg("deep", "crates/outer/inner/deep"),
		pkg("sibling", "crates/outer-sibling"),
	)
	outer, inner, deep := mustIndex(t, g, "outer"), mustIndex(t, g, "inner"), mustIndex(t, g, "deep")
	sibling := mustIndex(t, g, "sibling")

	want := map[Pair]bool{
		{Outer: outer, Inner: inner}: true,
		{Outer: outer, Inner: deep}:  true,
		{Outer: inner, Inner: deep}:  true,
	}
	got := g.Nesting()
	if len(got) != len(want) {
		t.Fatalf("Nesting() = %v, want %d pairs", got, len(want))
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected pair %+v", p)
		}
	}

	if g.IsNested(outer) || g.IsNested(sibling) {
		t.Error("outer and sibling must be top-level")
	}
	if !g.IsNested(inner) || !g.IsNested(deep) {
		t.Error("inner and deep must be nested")
	}
	if got, want := g.TopLevel(), []int{outer, sibling}; !reflect.DeepEqual(got, want) {
		t.Errorf("TopLevel() = %v, want %v", got, want)
	}
}

func TestRootPackageNestsEverything(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, pkg("root", ""), pkg("member", "crates/member"))
	root := mustIndex(t, g, "root")
	if got := g.TopLevel(); len(got) != 1 || got[0] != root {
		t.Errorf("TopLevel() = %v, want only root", got)
	}
}

func TestDirs(t *testing.T) {
	t.Parallel()

	p := pkg("a", "./crates/a/")
	p.ExtraDirs = []string{"shared/proto", "crates/a/../../docs"}
	g := buildGraph(t, p)

	want := []string{"crates/a", "shared/proto", "docs"}
	if got := g.Dirs(0); !reflect.DeepEqual(got, want) {
		t.Errorf("Dirs() = %v, want %v", got, want)
	}
	if p.ExtraDirs[1] != "crates/a/../../docs" {
		t.Error("New must not modify the caller's packages")
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path, dir string
		want      bool
	}{
		{"crates/a/src/lib.rs", "crates/a", true},
		{"crates/a", "crates/a", true},
		{"crates/ab/src/lib.rs", "crates/a", false},
		{"crates/lib.rs", "crates/a", false},
		{"README.md", "", true},
		{"crates/a/x.rs", "crates/a/", true},
	}
	for _, tt := range tests {
		if got := Within(tt.path, tt.dir); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
		}
	}
}
