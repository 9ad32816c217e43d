// Package telemetry provides a JSONL event stream for recording what a
// release-planning run decided. Every attribution, classifier verdict, bump
// raise and persistence step is recorded as a structured JSON event tagged
// with the run id, making runs auditable and comparable across CI builds.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds identify the type of telemetry event.
const (
	KindRunStart          = "run_start"
	KindPackageAttributed = "package_attributed"
	KindPackageClassified = "package_classified"
	KindBumpRaised        = "bump_raised"
	KindPropagationDone   = "propagation_done"
	KindChangelogWritten  = "changelog_written"
	KindManifestWritten   = "manifest_written"
	KindRunDone           = "run_done"
	KindRunFailed         = "run_failed"
)

// Event represents a single telemetry record. Each event carries a timestamp,
// a kind tag, the run it belongs to, an optional package name and arbitrary
// structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run,omitempty"`
	Package   string    `json:"package,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events as JSONL. It is safe for concurrent use by
// multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	close func() error
	enc   *json.Encoder
	run   string
	mu    sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	e := NewWriterEmitter(f)
	e.close = f.Close
	return e, nil
}

// NewWriterEmitter creates an Emitter writing to w. Close does not close w.
func NewWriterEmitter(w io.Writer) *Emitter {
	return &Emitter{
		close: func() error { return nil },
		enc:   json.NewEncoder(w),
		run:   uuid.NewString(),
	}
}

// RunID returns the identifier stamped on every event from this emitter.
// A nil Emitter has no run id.
func (e *Emitter) RunID() string {
	if e == nil {
		return ""
	}
	return e.run
}

// Emit writes a single event. A zero Timestamp is set to the current time and
// an empty RunID to the emitter's run. Calling Emit on a nil Emitter is a
// no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.RunID == "" {
		evt.RunID = e.run
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Record is shorthand for emitting an event of kind about pkg.
func (e *Emitter) Record(kind, pkg string, data any) error {
	return e.Emit(Event{Kind: kind, Package: pkg, Data: data})
}

// Close closes the underlying file. Calling Close on a nil Emitter is a
// no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
