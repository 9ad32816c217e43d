package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/pulsar/internal/classify"
	"github.com/papapumpkin/pulsar/internal/release"
	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

type staticHistory map[string][]classify.Commit

func (h staticHistory) Attribute(_ context.Context, dirs []string) ([]classify.Commit, error) {
	return h[dirs[0]], nil
}

// testGraph has app depending on core, and core/macros nested in core.
func testGraph(t *testing.T) *workspace.Graph {
	t.Helper()
	g, err := workspace.New([]workspace.Package{
		{ID: "app", Name: "app", Version: version.MustParse("1.4.0"), Dir: "crates/app", Dependencies: []string{"core"}},
		{ID: "core", Name: "core", Version: version.MustParse("0.3.2"), Dir: "crates/core", ExtraDirs: []string{"proto"}},
		{ID: "macros", Name: "macros", Version: version.MustParse("0.3.2"), Dir: "crates/core/macros"},
		{ID: "tools", Name: "tools", Version: version.MustParse("2.0.0"), Dir: "tools"},
	})
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return g
}

func testPlan(t *testing.T, verdicts map[string]classify.Verdict) *release.Plan {
	t.Helper()
	g := testGraph(t)
	hist := staticHistory{}
	for dir := range verdicts {
		hist[dir] = []classify.Commit{{ID: dir}}
	}
	cls := classify.Func(func(_ context.Context, commits []classify.Commit) (classify.Verdict, error) {
		if len(commits) == 0 {
			return classify.Verdict{}, nil
		}
		return verdicts[commits[0].ID], nil
	})
	plan, err := (&release.Planner{Graph: g, History: hist, Classifier: cls}).Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return plan
}

func TestRenderReport(t *testing.T) {
	t.Parallel()

	plan := testPlan(t, map[string]classify.Verdict{
		"crates/core": {Bump: version.Major, Changelog: "# Breaking\n- removed Foo\n"},
	})
	var buf bytes.Buffer
	if err := RenderReport(&buf, plan); err != nil {
		t.Fatalf("RenderReport: %v", err)
	}

	want := "# Changes\n\n" +
		"## core v0.4.0 (Major bump)\n\n" +
		"## Breaking\n- removed Foo\n\n" +
		"# Bumps\n\n" +
		"app `1.4.0` -> `1.4.1`\n\n" +
		"- dependency core had a Major bump\n\n" +
		"core `0.3.2` -> `0.4.0`\n\n" +
		"- classifier decided on a Major bump\n\n" +
		"macros `0.3.2` -> `0.4.0`\n\n" +
		"- nested packages should have equal bump\n\n"
	if got := buf.String(); got != want {
		t.Errorf("RenderReport() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderReportNothingToRelease(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := RenderReport(&buf, testPlan(t, nil)); err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	if got := buf.String(); got != "No package needs a release.\n" {
		t.Errorf("RenderReport() = %q", got)
	}
}

func TestRenderReportChangelogOnly(t *testing.T) {
	t.Parallel()

	plan := testPlan(t, map[string]classify.Verdict{"tools": {Changelog: "- docs"}})
	var buf bytes.Buffer
	if err := RenderReport(&buf, plan); err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "## tools v2.0.0 (None bump)") {
		t.Errorf("missing changelog entry:\n%s", out)
	}
	if !strings.Contains(out, "No version bumps.") {
		t.Errorf("missing empty bumps note:\n%s", out)
	}
}

func TestRenderYAML(t *testing.T) {
	t.Parallel()

	plan := testPlan(t, map[string]classify.Verdict{"tools": {Bump: version.Minor, Changelog: "- added"}})
	var buf bytes.Buffer
	if err := RenderYAML(&buf, plan); err != nil {
		t.Fatalf("RenderYAML: %v", err)
	}

	var doc planDoc
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if len(doc.Packages) != 4 || doc.Passes != plan.Passes {
		t.Fatalf("doc = %+v", doc)
	}
	tools := doc.Packages[3]
	if tools.Name != "tools" || tools.Next != "2.1.0" || tools.Bump != "Minor" || tools.Changelog != "- added" {
		t.Errorf("tools = %+v", tools)
	}
	if !doc.Packages[2].Nested || doc.Packages[2].Name != "macros" {
		t.Errorf("macros = %+v, want nested", doc.Packages[2])
	}
}

func TestRenderGraphYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := RenderGraphYAML(&buf, testGraph(t)); err != nil {
		t.Fatalf("RenderGraphYAML: %v", err)
	}
	var doc graphDoc
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if len(doc.Packages) != 4 {
		t.Fatalf("packages = %d, want 4", len(doc.Packages))
	}
	app := doc.Packages[0]
	if app.Name != "app" || len(app.Dependencies) != 1 || app.Dependencies[0] != "core" || !app.TopLevel {
		t.Errorf("app = %+v", app)
	}
	if len(doc.Nesting) != 1 || doc.Nesting[0] != (nestingDoc{Outer: "core", Inner: "macros"}) {
		t.Errorf("nesting = %+v", doc.Nesting)
	}
}

func TestRenderGraphText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := RenderGraphText(&buf, testGraph(t)); err != nil {
		t.Fatalf("RenderGraphText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PACKAGE", "app", "crates/core/macros", "macros is nested in core"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinterSummary(t *testing.T) {
	t.Parallel()

	plan := testPlan(t, map[string]classify.Verdict{"crates/core": {Bump: version.Patch}})
	var buf bytes.Buffer
	NewTo(&buf).Summary(plan)
	out := buf.String()

	checks := []struct {
		name   string
		substr string
	}{
		{"header", "PACKAGE"},
		{"bumped package", "core"},
		{"next version", "0.3.3"},
		{"dependent", "app"},
		{"reason", "dependency core had a Patch bump"},
		{"footer", "3 package(s) change"},
	}
	for _, c := range checks {
		if !strings.Contains(out, c.substr) {
			t.Errorf("expected output to contain %s (%q), got:\n%s", c.name, c.substr, out)
		}
	}
	if strings.Contains(out, "tools") {
		t.Errorf("unchanged package listed:\n%s", out)
	}
}

func TestPrinterSummaryEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewTo(&buf).Summary(testPlan(t, nil))
	if !strings.Contains(buf.String(), "no package needs a release") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrinterLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewTo(&buf)
	if p.Check("cargo found", nil) != true {
		t.Error("Check(nil) = false")
	}
	if p.Check("classifier loads", errors.New("no such file")) != false {
		t.Error("Check(err) = true")
	}
	p.Error("boom")
	p.Warn("careful")
	p.Watching([]string{"/repo/policy.go"})
	p.Replanning("/repo/policy.go", "modified")
	p.Applied(testPlan(t, map[string]classify.Verdict{"tools": {Bump: version.Patch, Changelog: "- fix"}}))

	out := buf.String()
	for _, want := range []string{
		"✓ cargo found",
		"✗ classifier loads: no such file",
		"boom",
		"careful",
		"/repo/policy.go",
		"modified, planning again",
		"updated 1 changelog(s) and 1 manifest(s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
