package ui

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/pulsar/internal/changelog"
	"github.com/papapumpkin/pulsar/internal/release"
	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// RenderReport writes the dry-run report as markdown, suitable for a pull
// request comment. Packages appear in name order.
func RenderReport(w io.Writer, plan *release.Plan) error {
	var b strings.Builder
	changed := plan.Changed()
	if len(changed) == 0 {
		b.WriteString("No package needs a release.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("# Changes\n\n")
	entries := 0
	for _, st := range changed {
		body := changelog.DemoteHeadings(st.Changelog)
		if body == "" {
			continue
		}
		entries++
		fmt.Fprintf(&b, "## %s v%s (%s bump)\n\n", st.Package.Name, st.FinalVersion(), st.Bump)
		b.WriteString(body)
		b.WriteByte('\n')
	}
	if entries == 0 {
		b.WriteString("No changelog entries.\n\n")
	}

	b.WriteString("# Bumps\n\n")
	bumps := 0
	for _, st := range changed {
		if st.Bump == version.None {
			continue
		}
		bumps++
		fmt.Fprintf(&b, "%s `%s` -> `%s`\n\n", st.Package.Name, st.Package.Version, st.FinalVersion())
		for _, r := range st.Reasons {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		if len(st.Reasons) > 0 {
			b.WriteByte('\n')
		}
	}
	if bumps == 0 {
		b.WriteString("No version bumps.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type planDoc struct {
	Passes   int          `yaml:"passes"`
	Packages []packageDoc `yaml:"packages"`
}

type packageDoc struct {
	Name      string   `yaml:"name"`
	ID        string   `yaml:"id"`
	Dir       string   `yaml:"dir"`
	Version   string   `yaml:"version"`
	Next      string   `yaml:"next"`
	Bump      string   `yaml:"bump"`
	Nested    bool     `yaml:"nested,omitempty"`
	Changelog string   `yaml:"changelog,omitempty"`
	Reasons   []string `yaml:"reasons,omitempty"`
}

// RenderYAML writes every package status as YAML for machine consumers.
func RenderYAML(w io.Writer, plan *release.Plan) error {
	doc := planDoc{Passes: plan.Passes}
	for _, st := range plan.Sorted() {
		doc.Packages = append(doc.Packages, packageDoc{
			Name:      st.Package.Name,
			ID:        st.Package.ID,
			Dir:       st.Package.Dir,
			Version:   st.Package.Version.String(),
			Next:      st.FinalVersion().String(),
			Bump:      st.Bump.String(),
			Nested:    plan.Graph.IsNested(st.Index),
			Changelog: strings.TrimSpace(st.Changelog),
			Reasons:   st.Reasons,
		})
	}
	return encodeYAML(w, doc)
}

type graphDoc struct {
	Packages []graphPackageDoc `yaml:"packages"`
	Nesting  []nestingDoc      `yaml:"nesting,omitempty"`
}

type graphPackageDoc struct {
	Name         string   `yaml:"name"`
	ID           string   `yaml:"id"`
	Dir          string   `yaml:"dir"`
	Version      string   `yaml:"version"`
	TopLevel     bool     `yaml:"top_level"`
	ExtraDirs    []string `yaml:"extra_dirs,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

type nestingDoc struct {
	Outer string `yaml:"outer"`
	Inner string `yaml:"inner"`
}

// RenderGraphYAML writes the workspace graph as YAML. Dependencies are listed
// by package name.
func RenderGraphYAML(w io.Writer, g *workspace.Graph) error {
	var doc graphDoc
	for i := 0; i < g.Len(); i++ {
		p := g.Package(i)
		doc.Packages = append(doc.Packages, graphPackageDoc{
			Name:         p.Name,
			ID:           p.ID,
			Dir:          p.Dir,
			Version:      p.Version.String(),
			TopLevel:     !g.IsNested(i),
			ExtraDirs:    p.ExtraDirs,
			Dependencies: dependencyNames(g, i),
		})
	}
	for _, pair := range g.Nesting() {
		doc.Nesting = append(doc.Nesting, nestingDoc{
			Outer: g.Package(pair.Outer).Name,
			Inner: g.Package(pair.Inner).Name,
		})
	}
	return encodeYAML(w, doc)
}

func dependencyNames(g *workspace.Graph, i int) []string {
	var names []string
	for _, d := range g.Dependencies(i) {
		names = append(names, g.Package(d).Name)
	}
	return names
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}
