package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/telemetry"
	"github.com/papapumpkin/pulsar/internal/ui"
)

var errNoEventsFile = errors.New("no events file: pass one as an argument or set events_file")

var eventsCmd = &cobra.Command{
	Use:   "events [FILE]",
	Short: "View the JSONL run events recorded by --events",
	Long: `Reads and formats a run-event log written by 'pulsar --events FILE'.

Without FILE, the configured events_file is used.
With --run, only events from that run are shown.
With --follow (-f), watches the file for new events (like tail -f).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().String("run", "", "only show events from this run ID")
	eventsCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	run, _ := cmd.Flags().GetString("run")
	follow, _ := cmd.Flags().GetBool("follow")

	path, err := resolveEventsPath(args)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(f)
	if err := printLines(out, reader, run); err != nil {
		return fmt.Errorf("events: read %s: %w", path, err)
	}
	if !follow {
		return nil
	}

	ctx, cancel := setupSignalContext(ui.New())
	defer cancel()
	return tailFollow(ctx, out, reader, path, run)
}

// resolveEventsPath picks the file named on the command line, falling back to
// the configured events_file.
func resolveEventsPath(args []string) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.EventsFile == "" {
		return "", errNoEventsFile
	}
	return cfg.EventsFile, nil
}

// printLines prints every complete line available from r. A trailing line
// without a newline is printed as well.
func printLines(w io.Writer, r *bufio.Reader, run string) error {
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			printEvent(w, line, run)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// tailFollow watches the file for new data using fsnotify and prints new
// events until ctx is canceled.
func tailFollow(ctx context.Context, w io.Writer, r *bufio.Reader, path, run string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("events: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("events: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("events: watch %s: %w", path, err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			if err := printLines(w, r, run); err != nil {
				return fmt.Errorf("events: read %s: %w", path, err)
			}
		}
	}
}

// printEvent decodes a JSONL line and prints a human-readable representation.
// Events from runs other than run are skipped when run is set.
func printEvent(w io.Writer, line, run string) {
	var evt telemetry.Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		fmt.Fprintf(w, "??? %s\n", line)
		return
	}
	if run != "" && evt.RunID != run {
		return
	}

	ts := evt.Timestamp.Format(time.TimeOnly)
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", ts))
	parts = append(parts, evt.Kind)

	if evt.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", shortRunID(evt.RunID)))
	}
	if evt.Package != "" {
		parts = append(parts, fmt.Sprintf("package=%s", evt.Package))
	}
	if evt.Data != nil {
		if m, ok := evt.Data.(map[string]any); ok {
			parts = append(parts, formatDataMap(m))
		} else {
			data, _ := json.Marshal(evt.Data)
			parts = append(parts, string(data))
		}
	}

	fmt.Fprintln(w, strings.Join(parts, " "))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDataMap formats a data map as key=value pairs sorted by key.
func formatDataMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}
