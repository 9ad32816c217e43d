// Package ui renders pulsar's human-facing output: the markdown and YAML
// reports written to stdout, and the styled status lines and summary tables
// the Printer writes to stderr.
package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/papapumpkin/pulsar/internal/release"
	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// Printer writes status output. Diagnostics go through logrus; the Printer
// is for what a person running the command is meant to read.
type Printer struct {
	out io.Writer
}

// New returns a Printer writing to stderr.
func New() *Printer {
	return &Printer{out: os.Stderr}
}

// NewTo returns a Printer writing to w.
func NewTo(w io.Writer) *Printer {
	return &Printer{out: w}
}

// Error prints a failure line.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.out, styleError.Render("error: ")+msg)
}

// Info prints a de-emphasized line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.out, styleMuted.Render(msg))
}

// Warn prints a warning line.
func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.out, styleWarn.Render(iconWarn+" "+msg))
}

// Success prints a success line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, styleSuccess.Render(iconDone+" "+msg))
}

// Check prints the outcome of one validation step and reports whether it
// passed.
func (p *Printer) Check(name string, err error) bool {
	if err != nil {
		fmt.Fprintf(p.out, "%s %s: %v\n", styleError.Render(iconFailed), name, err)
		return false
	}
	fmt.Fprintf(p.out, "%s %s\n", styleSuccess.Render(iconDone), name)
	return true
}

// Summary prints a table of every package that changes, or a note that
// nothing does.
func (p *Printer) Summary(plan *release.Plan) {
	changed := plan.Changed()
	if len(changed) == 0 {
		p.Info("no package needs a release")
		return
	}

	rows := make([][]string, 0, len(changed))
	for _, st := range changed {
		reason := ""
		if len(st.Reasons) > 0 {
			reason = st.Reasons[len(st.Reasons)-1]
		}
		rows = append(rows, []string{
			st.Package.Name,
			st.Package.Version.String(),
			st.FinalVersion().String(),
			st.Bump.String(),
			reason,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleTable).
		Headers("PACKAGE", "CURRENT", "NEXT", "BUMP", "REASON").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case col == 3 && row >= 0 && row < len(rows):
				return bumpStyle(rows[row][3])
			default:
				return styleCell
			}
		})
	fmt.Fprintln(p.out, styleTitle.Render("release plan"))
	fmt.Fprintln(p.out, t.Render())
	p.Info(fmt.Sprintf("%d package(s) change, propagation settled after %d pass(es)", len(changed), plan.Passes))
}

// Applied reports what an executed run wrote.
func (p *Printer) Applied(plan *release.Plan) {
	var changelogs, manifests int
	for _, st := range plan.Changed() {
		if strings.TrimSpace(st.Changelog) != "" {
			changelogs++
		}
		if st.Bump > version.None {
			manifests++
		}
	}
	p.Success(fmt.Sprintf("updated %d changelog(s) and %d manifest(s)", changelogs, manifests))
}

// Watching announces the files watch mode reacts to.
func (p *Printer) Watching(files []string) {
	fmt.Fprintln(p.out, styleTitle.Render(iconWatch+" watching for changes"))
	for _, f := range files {
		fmt.Fprintf(p.out, "  %s %s\n", styleMuted.Render(iconPending), f)
	}
}

// Replanning announces a re-run triggered by a file change.
func (p *Printer) Replanning(file, kind string) {
	fmt.Fprintf(p.out, "\n%s %s %s\n", styleTitle.Render(iconWatch), file, styleMuted.Render(kind+", planning again"))
}

// RenderGraphText writes the workspace graph as a table followed by the
// nesting pairs.
func RenderGraphText(w io.Writer, g *workspace.Graph) error {
	rows := make([][]string, 0, g.Len())
	for i := 0; i < g.Len(); i++ {
		pkg := g.Package(i)
		dir := pkg.Dir
		if dir == "" {
			dir = "."
		}
		rows = append(rows, []string{
			pkg.Name,
			pkg.Version.String(),
			dir,
			strconv.FormatBool(!g.IsNested(i)),
			strings.Join(dependencyNames(g, i), ", "),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleTable).
		Headers("PACKAGE", "VERSION", "DIR", "TOP-LEVEL", "DEPENDS ON").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteByte('\n')
	for _, pair := range g.Nesting() {
		fmt.Fprintf(&b, "%s is nested in %s\n", g.Package(pair.Inner).Name, g.Package(pair.Outer).Name)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
