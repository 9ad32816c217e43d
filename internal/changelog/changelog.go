// Package changelog maintains the auto-generated section of per-package
// changelog files. New entries are inserted directly below a marker line so
// hand-written text above the marker and older entries below it are kept
// byte for byte.
package changelog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// Defaults for the changelog file name and the marker line.
const (
	DefaultFileName = "CHANGELOG.md"
	DefaultMarker   = "<!-- pulsar goes here -->"
)

// Entry is one release section.
type Entry struct {
	Version version.Version
	Date    time.Time
	Body    string
}

// Render formats the entry as a level-two heading followed by the body.
// Headings inside the body are demoted one level so they nest under the
// entry heading.
func (e Entry) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## [v%s] %s\n\n", e.Version, e.Date.Format(time.DateOnly))
	b.WriteString(DemoteHeadings(e.Body))
	b.WriteByte('\n')
	return b.String()
}

// DemoteHeadings trims text and adds one '#' to every line that starts with
// '#'. Every returned line ends in a newline; empty text yields "".
func DemoteHeadings(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "#") {
			b.WriteByte('#')
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Insert places e directly after the marker line in existing. Without a
// marker line, the marker and the entry are prepended. When the marker line
// ends in CRLF the entry is written with CRLF line endings too.
func Insert(existing, marker string, e Entry) string {
	start, end, ok := findMarkerLine(existing, marker)
	if !ok {
		return marker + "\n" + e.Render() + existing
	}
	eol := existing[start+len(marker) : end]
	rendered := e.Render()
	switch eol {
	case "":
		return existing + "\n" + rendered
	case "\r\n":
		rendered = strings.ReplaceAll(rendered, "\n", "\r\n")
	}
	return existing[:end] + rendered + existing[end:]
}

// findMarkerLine locates the first line of text that is exactly marker. It
// returns the offset of the marker and the offset just past its line ending.
func findMarkerLine(text, marker string) (start, end int, ok bool) {
	if marker == "" {
		return 0, 0, false
	}
	for off := 0; off < len(text); {
		i := strings.Index(text[off:], marker)
		if i < 0 {
			return 0, 0, false
		}
		start = off + i
		end = start + len(marker)
		if start == 0 || text[start-1] == '\n' {
			rest := text[end:]
			switch {
			case rest == "":
				return start, end, true
			case strings.HasPrefix(rest, "\n"):
				return start, end + 1, true
			case strings.HasPrefix(rest, "\r\n"):
				return start, end + 2, true
			}
		}
		off = end
	}
	return 0, 0, false
}

// Writer persists entries into the changelog file next to each package
// manifest.
type Writer struct {
	FileName string
	Marker   string
}

// Path returns the changelog location for pkg.
func (w *Writer) Path(pkg workspace.Package) string {
	name := w.FileName
	if name == "" {
		name = DefaultFileName
	}
	return filepath.Join(filepath.Dir(pkg.ManifestPath), name)
}

// WriteEntry inserts e into pkg's changelog, creating the file if needed.
func (w *Writer) WriteEntry(pkg workspace.Package, e Entry) error {
	marker := w.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	path := w.Path(pkg)

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading changelog %s: %w", path, err)
	}
	updated := Insert(string(existing), marker, e)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing changelog %s: %w", path, err)
	}
	return nil
}
