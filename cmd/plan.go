package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/changelog"
	"github.com/papapumpkin/pulsar/internal/classify"
	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/manifest"
	"github.com/papapumpkin/pulsar/internal/release"
	"github.com/papapumpkin/pulsar/internal/telemetry"
	"github.com/papapumpkin/pulsar/internal/ui"
	"github.com/papapumpkin/pulsar/internal/watch"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// Report formats accepted by --output.
const (
	outputMarkdown = "markdown"
	outputYAML     = "yaml"
	outputText     = "text"
)

var (
	errRevisionRequired = errors.New("a SINCE_REV argument or --root is required")
	errRevisionAndRoot  = errors.New("SINCE_REV and --root are mutually exclusive")
	errWatchExecute     = errors.New("--watch only plans; it cannot be combined with --execute")
)

// sinceRevision resolves the exclusive lower bound of the walk. An empty
// result with a nil error means the whole history.
func sinceRevision(args []string, root bool) (string, error) {
	switch {
	case root && len(args) > 0:
		return "", errRevisionAndRoot
	case root:
		return "", nil
	case len(args) == 1 && args[0] != "":
		return args[0], nil
	default:
		return "", errRevisionRequired
	}
}

func checkOutput(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unknown output format %q (want one of %v)", format, allowed)
}

// planRun carries everything one planning run needs.
type planRun struct {
	cfg     config.Config
	since   string
	output  string
	log     *logrus.Logger
	events  *telemetry.Emitter
	printer *ui.Printer
	out     io.Writer
}

func runPlan(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetBool("root")
	execute, _ := cmd.Flags().GetBool("execute")
	watchMode, _ := cmd.Flags().GetBool("watch")
	output, _ := cmd.Flags().GetString("output")
	verbose, _ := cmd.Flags().GetBool("verbose")

	since, err := sinceRevision(args, root)
	if err != nil {
		return err
	}
	if watchMode && execute {
		return errWatchExecute
	}
	if err := checkOutput(output, outputMarkdown, outputYAML); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log, verbose)
	if err != nil {
		return err
	}

	var events *telemetry.Emitter
	if cfg.EventsFile != "" {
		events, err = telemetry.NewEmitter(cfg.EventsFile)
		if err != nil {
			return err
		}
		defer events.Close()
		log.WithField("run", events.RunID()).Debug("recording run events")
	}

	printer := ui.New()
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	r := &planRun{
		cfg:     cfg,
		since:   since,
		output:  output,
		log:     log,
		events:  events,
		printer: printer,
		out:     cmd.OutOrStdout(),
	}
	if watchMode {
		return r.watchLoop(ctx)
	}
	return r.once(ctx, execute)
}

// plan loads the workspace and history and runs the planner.
func (r *planRun) plan(ctx context.Context) (*release.Plan, error) {
	repo, err := history.Open(r.cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	graph, err := loadGraph(ctx, r.cfg, repo.Root())
	if err != nil {
		return nil, err
	}

	order, err := history.ParseOrder(r.cfg.History.Order)
	if err != nil {
		return nil, err
	}
	walk, err := repo.Walk(ctx, history.Range{Head: r.cfg.History.Head, Since: r.since}, order)
	if err != nil {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"commits":  walk.Len(),
		"packages": graph.Len(),
		"mailmap":  repo.Mailmap().Len(),
	}).Debug("history loaded")

	cls, err := classify.Open(r.cfg.Classifier.Kind, r.cfg.Classifier.Path, r.cfg.Classifier.Args)
	if err != nil {
		return nil, fmt.Errorf("loading classifier: %w", err)
	}

	planner := &release.Planner{
		Graph:      graph,
		History:    walk,
		Classifier: cls,
		Log:        r.log,
		Events:     r.events,
	}
	return planner.Plan(ctx)
}

// once plans, reports, and persists when execute is set.
func (r *planRun) once(ctx context.Context, execute bool) error {
	plan, err := r.plan(ctx)
	if err != nil {
		return err
	}
	if err := r.report(plan); err != nil {
		return err
	}
	r.printer.Summary(plan)

	if execute {
		cw := &changelog.Writer{FileName: r.cfg.Changelog.File, Marker: r.cfg.Changelog.Marker}
		if err := plan.Apply(ctx, cw, manifest.Writer{}, time.Now()); err != nil {
			r.record(telemetry.KindRunFailed, map[string]string{"error": err.Error()})
			return err
		}
		r.printer.Applied(plan)
	}
	r.record(telemetry.KindRunDone, map[string]any{"changed": len(plan.Changed()), "executed": execute})
	return nil
}

func (r *planRun) report(plan *release.Plan) error {
	if r.output == outputYAML {
		return ui.RenderYAML(r.out, plan)
	}
	return ui.RenderReport(r.out, plan)
}

func (r *planRun) record(kind string, data any) {
	if err := r.events.Record(kind, "", data); err != nil {
		r.log.WithError(err).Debug("dropping run event")
	}
}

// watchLoop plans once, then again after every change to the classifier or the
// mailmap, until ctx is canceled. Planning failures are reported and the
// loop keeps going.
func (r *planRun) watchLoop(ctx context.Context) error {
	repo, err := history.Open(r.cfg.WorkDir)
	if err != nil {
		return err
	}
	files := []string{r.cfg.Classifier.Path}
	if root := repo.Root(); root != "" {
		files = append(files, filepath.Join(root, history.MailmapFile))
	}

	w, err := watch.NewWatcher(files...)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	r.printer.Watching(w.Files)
	if err := r.once(ctx, false); err != nil {
		r.printer.Error(err.Error())
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes:
			if !ok {
				return nil
			}
			r.printer.Replanning(change.File, change.Kind.String())
			if err := r.once(ctx, false); err != nil {
				r.printer.Error(err.Error())
			}
		}
	}
}

// loadGraph runs cargo metadata and builds the workspace graph.
func loadGraph(ctx context.Context, cfg config.Config, repoRoot string) (*workspace.Graph, error) {
	loader := &workspace.CargoLoader{
		CargoPath:   cfg.CargoPath,
		WorkDir:     cfg.WorkDir,
		RepoRoot:    repoRoot,
		MetadataKey: cfg.MetadataKey,
	}
	pkgs, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	g, err := workspace.New(pkgs)
	if err != nil {
		return nil, fmt.Errorf("building workspace graph: %w", err)
	}
	return g, nil
}
