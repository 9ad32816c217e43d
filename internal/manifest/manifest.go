// Package manifest rewrites the version field of Cargo.toml manifests in
// place. Only the bytes of the version string literal change, so comments,
// key order and formatting survive a release.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/papapumpkin/pulsar/internal/version"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// ErrNoVersion is returned when a manifest has no literal package version to
// rewrite, including versions inherited with version.workspace = true.
var ErrNoVersion = errors.New("manifest has no package version string")

// SetVersion returns data with the [package] version set to v.
func SetVersion(data []byte, v version.Version) ([]byte, error) {
	lit, err := findVersion(data)
	if err != nil {
		return nil, err
	}

	start, end := int(lit.Raw.Offset), int(lit.Raw.Offset+lit.Raw.Length)
	quote := byte('"')
	if end > start && data[start] == '\'' {
		quote = '\''
	}
	replacement := string(quote) + v.String() + string(quote)

	out := make([]byte, 0, len(data)-(end-start)+len(replacement))
	out = append(out, data[:start]...)
	out = append(out, replacement...)
	out = append(out, data[end:]...)

	if err := verify(out, v); err != nil {
		return nil, err
	}
	return out, nil
}

// findVersion walks the top-level expressions tracking the current table and
// returns the string node assigned to package.version.
func findVersion(data []byte) (*unstable.Node, error) {
	var p unstable.Parser
	p.Reset(data)

	var table []string
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = keyPath(expr.Key(), nil)
		case unstable.KeyValue:
			full := keyPath(expr.Key(), table)
			if len(full) < 2 || full[0] != "package" || full[1] != "version" {
				continue
			}
			if len(full) > 2 {
				return nil, fmt.Errorf("%w: version is inherited (%s)", ErrNoVersion, strings.Join(full, "."))
			}
			val := expr.Value()
			if val.Kind != unstable.String {
				return nil, fmt.Errorf("%w: package.version is a %s", ErrNoVersion, val.Kind)
			}
			return val, nil
		}
	}
	if err := p.Error(); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return nil, ErrNoVersion
}

func keyPath(it unstable.Iterator, prefix []string) []string {
	path := append([]string(nil), prefix...)
	for it.Next() {
		path = append(path, string(it.Node().Data))
	}
	return path
}

// verify decodes the rewritten document to confirm it is still valid TOML
// carrying the new version.
func verify(data []byte, v version.Version) error {
	var doc struct {
		Package struct {
			Version string `toml:"version"`
		} `toml:"package"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("rewritten manifest does not parse: %w", err)
	}
	if doc.Package.Version != v.String() {
		return fmt.Errorf("rewritten manifest has version %q, want %q", doc.Package.Version, v)
	}
	return nil
}

// Writer rewrites package manifests on disk.
type Writer struct{}

// SetVersion rewrites the version in pkg's manifest, keeping its file mode.
func (Writer) SetVersion(pkg workspace.Package, v version.Version) error {
	path := pkg.ManifestPath
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading manifest %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest %s: %w", path, err)
	}
	out, err := SetVersion(data, v)
	if err != nil {
		return fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
