package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/papapumpkin/pulsar/internal/changelog"
	"github.com/papapumpkin/pulsar/internal/classify"
	"github.com/papapumpkin/pulsar/internal/telemetry"
	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// Run stages reported by StageError.
const (
	StageAttribute = "attribute"
	StageClassify  = "classify"
	StagePersist   = "persist"
)

// ErrIncomplete is returned when a Planner is missing a collaborator.
var ErrIncomplete = errors.New("planner is missing a collaborator")

// StageError reports the stage and package a run failed in.
type StageError struct {
	Stage   string
	Package string
	Err     error
}

// Error formats the stage, package and cause.
func (e *StageError) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Package, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Attributor returns the commits that touched any of dirs, in the order they
// are handed to the classifier. *history.Walk implements it.
type Attributor interface {
	Attribute(ctx context.Context, dirs []string) ([]classify.Commit, error)
}

// ChangelogWriter persists one changelog entry for a package.
type ChangelogWriter interface {
	WriteEntry(pkg workspace.Package, e changelog.Entry) error
}

// ManifestWriter persists a package's new version.
type ManifestWriter interface {
	SetVersion(pkg workspace.Package, v version.Version) error
}

// Planner runs attribution, classification and propagation over a graph.
type Planner struct {
	Graph      *workspace.Graph
	History    Attributor
	Classifier classify.Classifier
	Log        logrus.FieldLogger
	Events     *telemetry.Emitter
}

// Plan is the outcome of a successful run. Statuses is index-aligned with
// Graph.
type Plan struct {
	Graph    *workspace.Graph
	Statuses []Status
	Passes   int

	log    logrus.FieldLogger
	events *telemetry.Emitter
}

// Plan classifies every top-level package in graph order, one classifier
// call at a time, then propagates bumps to a fixed point. Any failure aborts
// the run with a *StageError and no plan.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	if p.Graph == nil || p.History == nil || p.Classifier == nil {
		return nil, ErrIncomplete
	}
	log := p.logger()
	g := p.Graph
	p.emit(telemetry.KindRunStart, "", map[string]int{"packages": g.Len()})

	for _, pair := range g.Nesting() {
		log.WithFields(logrus.Fields{
			"outer": g.Package(pair.Outer).Name,
			"inner": g.Package(pair.Inner).Name,
		}).Warn("package is nested inside another package, its changes are classified with the outer one")
	}

	statuses := NewStatuses(g)
	for _, i := range g.TopLevel() {
		if err := p.classifyPackage(ctx, &statuses[i], g.Dirs(i), log); err != nil {
			p.emit(telemetry.KindRunFailed, statuses[i].Package.Name, map[string]string{"error": err.Error()})
			return nil, err
		}
	}

	passes := propagate(g, statuses, func(i int, from, to version.Bump, reason string) {
		name := statuses[i].Package.Name
		log.WithFields(logrus.Fields{"package": name, "bump": to}).Debug(reason)
		p.emit(telemetry.KindBumpRaised, name, map[string]string{
			"from":   from.String(),
			"to":     to.String(),
			"reason": reason,
		})
	})
	log.WithField("pass", passes).Debug("propagation reached a fixed point")
	p.emit(telemetry.KindPropagationDone, "", map[string]int{"passes": passes})

	return &Plan{Graph: g, Statuses: statuses, Passes: passes, log: log, events: p.Events}, nil
}

func (p *Planner) classifyPackage(ctx context.Context, st *Status, dirs []string, log logrus.FieldLogger) error {
	name := st.Package.Name
	commits, err := p.History.Attribute(ctx, dirs)
	if err != nil {
		return &StageError{Stage: StageAttribute, Package: name, Err: err}
	}
	log.WithFields(logrus.Fields{"package": name, "commits": len(commits)}).Info("attributed commits")
	p.emit(telemetry.KindPackageAttributed, name, map[string]int{"commits": len(commits)})

	verdict, err := p.Classifier.Classify(ctx, commits)
	if err != nil {
		return &StageError{Stage: StageClassify, Package: name, Err: err}
	}
	st.Changelog = verdict.Changelog
	st.raise(verdict.Bump, fmt.Sprintf("classifier decided on a %s bump", verdict.Bump))

	entry := log.WithFields(logrus.Fields{"package": name, "bump": verdict.Bump})
	entry.Info("classified")
	if verdict.Bump == version.None && strings.TrimSpace(verdict.Changelog) != "" {
		entry.Warn("classifier produced changelog text without a bump")
	}
	p.emit(telemetry.KindPackageClassified, name, map[string]string{"bump": verdict.Bump.String()})
	return nil
}

func (p *Planner) logger() logrus.FieldLogger {
	if p.Log != nil {
		return p.Log
	}
	return discardLogger()
}

func (p *Planner) emit(kind, pkg string, data any) {
	emitTo(p.Events, p.logger(), kind, pkg, data)
}

func emitTo(events *telemetry.Emitter, log logrus.FieldLogger, kind, pkg string, data any) {
	if err := events.Record(kind, pkg, data); err != nil {
		log.WithError(err).Debug("dropping run event")
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Changed returns the statuses with a bump or changelog text, sorted by
// package name.
func (pl *Plan) Changed() []Status {
	var out []Status
	for _, st := range pl.Statuses {
		if st.Bump > version.None || strings.TrimSpace(st.Changelog) != "" {
			out = append(out, st)
		}
	}
	sortByName(out)
	return out
}

// Sorted returns every status sorted by package name.
func (pl *Plan) Sorted() []Status {
	out := append([]Status(nil), pl.Statuses...)
	sortByName(out)
	return out
}

func sortByName(sts []Status) {
	sort.SliceStable(sts, func(i, j int) bool {
		if sts[i].Package.Name != sts[j].Package.Name {
			return sts[i].Package.Name < sts[j].Package.Name
		}
		return sts[i].Package.ID < sts[j].Package.ID
	})
}

// Apply persists the plan: a changelog entry dated now for every package
// with changelog text, then the new version of every bumped package. It stops
// at the first error, returned as a *StageError.
func (pl *Plan) Apply(ctx context.Context, cw ChangelogWriter, mw ManifestWriter, now time.Time) error {
	log := pl.log
	if log == nil {
		log = discardLogger()
	}
	changed := pl.Changed()

	for _, st := range changed {
		if strings.TrimSpace(st.Changelog) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StagePersist, Err: err}
		}
		entry := changelog.Entry{Version: st.FinalVersion(), Date: now, Body: st.Changelog}
		if err := cw.WriteEntry(st.Package, entry); err != nil {
			return &StageError{Stage: StagePersist, Package: st.Package.Name, Err: err}
		}
		log.WithField("package", st.Package.Name).Info("changelog updated")
		emitTo(pl.events, log, telemetry.KindChangelogWritten, st.Package.Name, map[string]string{"version": entry.Version.String()})
	}

	for _, st := range changed {
		if st.Bump == version.None {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StagePersist, Err: err}
		}
		v := st.FinalVersion()
		if err := mw.SetVersion(st.Package, v); err != nil {
			return &StageError{Stage: StagePersist, Package: st.Package.Name, Err: err}
		}
		log.WithFields(logrus.Fields{"package": st.Package.Name, "version": v.String()}).Info("manifest updated")
		emitTo(pl.events, log, telemetry.KindManifestWritten, st.Package.Name, map[string]string{"version": v.String()})
	}
	return nil
}
