// Package watch reports edits to a fixed set of files, such as the
// classifier policy and the mailmap, so a dry-run plan can be recomputed.
package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must be quiet before a change is sent.
const DefaultDebounce = 100 * time.Millisecond

// ChangeKind describes the type of file change detected.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota // file written or recreated
	ChangeRemoved                    // file no longer exists
)

// String returns a lowercase name for the kind.
func (k ChangeKind) String() string {
	if k == ChangeRemoved {
		return "removed"
	}
	return "modified"
}

// Change is one debounced edit to a watched file.
type Change struct {
	Kind ChangeKind
	File string // Absolute path
}

// Watcher monitors a set of files using fsnotify. Parent directories are
// watched rather than the files themselves so that editors which replace a
// file by renaming over it are still observed.
type Watcher struct {
	Files    []string
	Debounce time.Duration
	Changes  <-chan Change // Read-only external channel

	changes chan Change // Internal write channel
	stop    chan struct{}
	done    chan struct{}
	watched map[string]bool
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for files. Empty paths are ignored; files
// need not exist yet.
func NewWatcher(files ...string) (*Watcher, error) {
	watched := make(map[string]bool, len(files))
	var abs []string
	for _, f := range files {
		if f == "" {
			continue
		}
		p, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		if !watched[p] {
			watched[p] = true
			abs = append(abs, p)
		}
	}
	if len(abs) == 0 {
		return nil, errors.New("watch: no files to watch")
	}
	sort.Strings(abs)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ch := make(chan Change, 16)
	w := &Watcher{
		Files:    abs,
		Debounce: DefaultDebounce,
		Changes:  ch,
		changes:  ch,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		watched:  watched,
		watcher:  fw,
	}
	return w, nil
}

// Start begins watching the parent directory of every file. Stop must still
// be called if Start fails.
func (w *Watcher) Start() error {
	dirs := make(map[string]bool)
	for _, f := range w.Files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.watcher.Add(dir); err != nil {
			close(w.done)
			return fmt.Errorf("watch: %s: %w", dir, err)
		}
	}

	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel. Changes nobody has
// received by then are dropped.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
	<-w.done // Wait for loop to exit
	close(w.changes)
}

func (w *Watcher) loop() {
	defer close(w.done)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	// Debounce: track last event time per file.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				// Drain pending on close.
				for file := range pending {
					w.emitChange(file)
				}
				return
			}

			if !w.watched[filepath.Clean(event.Name)] {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[filepath.Clean(event.Name)] = time.Now()
			}

		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= debounce {
					w.emitChange(file)
					delete(pending, file)
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Ignore watch errors; they're non-fatal.
		}
	}
}

func (w *Watcher) emitChange(file string) {
	kind := ChangeModified
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		kind = ChangeRemoved
	}
	select {
	case w.changes <- Change{Kind: kind, File: file}:
	case <-w.stop:
	}
}
