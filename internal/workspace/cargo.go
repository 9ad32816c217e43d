package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/papapumpkin/pulsar/internal/version"
)

// ErrMetadata indicates malformed workspace metadata.
var ErrMetadata = errors.New("malformed workspace metadata")

// ErrExtraDirs indicates an invalid extra-dirs entry in package metadata.
var ErrExtraDirs = errors.New("invalid extra-dirs")

// ExtraDirsKey is the key inside a package's metadata table that lists extra
// directories.
const ExtraDirsKey = "extra-dirs"

// ResolveError reports a graph-resolution failure for one package.
type ResolveError struct {
	Package string
	Err     error
}

// Error returns the package name and the underlying error.
func (e *ResolveError) Error() string {
	return "resolving package " + e.Package + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// CargoLoader loads a Cargo workspace through `cargo metadata`.
type CargoLoader struct {
	CargoPath string
	// WorkDir is where cargo runs; it must be inside the workspace.
	WorkDir string
	// RepoRoot is the repository root that package directories are made
	// relative to.
	RepoRoot string
	// MetadataKey names the [package.metadata.<key>] table holding pulsar
	// settings.
	MetadataKey string
}

// Load runs cargo metadata and converts its output.
func (l *CargoLoader) Load(ctx context.Context) ([]Package, error) {
	cargo := l.CargoPath
	if cargo == "" {
		cargo = "cargo"
	}
	cmd := exec.CommandContext(ctx, cargo, "metadata", "--format-version", "1", "--no-deps")
	cmd.Dir = l.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cargo metadata: %s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return ParseCargoMetadata(stdout.Bytes(), l.RepoRoot, l.MetadataKey)
}

// Validate checks that the cargo binary can be executed.
func (l *CargoLoader) Validate(ctx context.Context) error {
	cargo := l.CargoPath
	if cargo == "" {
		cargo = "cargo"
	}
	if out, err := exec.CommandContext(ctx, cargo, "--version").CombinedOutput(); err != nil {
		return fmt.Errorf("cargo not found at %q: %w (%s)", cargo, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type cargoMetadata struct {
	Packages         []cargoPackage `json:"packages"`
	WorkspaceMembers []string       `json:"workspace_members"`
	WorkspaceRoot    string         `json:"workspace_root"`
}

type cargoPackage struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Version      string                     `json:"version"`
	ManifestPath string                     `json:"manifest_path"`
	Dependencies []cargoDependency          `json:"dependencies"`
	Metadata     map[string]json.RawMessage `json:"metadata"`
}

type cargoDependency struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// ParseCargoMetadata converts `cargo metadata --format-version 1` output into
// packages. Directories are made relative to repoRoot after resolving
// symlinks on both sides. Dependency edges are path dependencies on other
// workspace members, of any kind.
func ParseCargoMetadata(data []byte, repoRoot, metadataKey string) ([]Package, error) {
	var meta cargoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	if repoRoot == "" {
		repoRoot = meta.WorkspaceRoot
	}
	repoRoot = realPath(repoRoot)

	members := make(map[string]bool, len(meta.WorkspaceMembers))
	for _, id := range meta.WorkspaceMembers {
		members[id] = true
	}

	dirToID := make(map[string]string)
	var raw []cargoPackage
	for _, p := range meta.Packages {
		if len(members) > 0 && !members[p.ID] {
			continue
		}
		if p.ManifestPath == "" {
			return nil, &ResolveError{Package: p.Name, Err: fmt.Errorf("%w: missing manifest_path", ErrMetadata)}
		}
		dirToID[realPath(filepath.Dir(p.ManifestPath))] = p.ID
		raw = append(raw, p)
	}

	pkgs := make([]Package, 0, len(raw))
	for _, p := range raw {
		pkg, err := convertCargoPackage(p, repoRoot, metadataKey, dirToID)
		if err != nil {
			return nil, &ResolveError{Package: p.Name, Err: err}
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

func convertCargoPackage(p cargoPackage, repoRoot, metadataKey string, dirToID map[string]string) (Package, error) {
	v, err := version.Parse(p.Version)
	if err != nil {
		return Package{}, err
	}

	absDir := realPath(filepath.Dir(p.ManifestPath))
	rel, err := filepath.Rel(repoRoot, absDir)
	if err != nil {
		return Package{}, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	dir := cleanDir(filepath.ToSlash(rel))
	if escapes(dir) {
		return Package{}, fmt.Errorf("%w: %s is outside the repository", ErrMetadata, absDir)
	}

	extra, err := extraDirs(p.Metadata, metadataKey, dir)
	if err != nil {
		return Package{}, err
	}

	var deps []string
	for _, d := range p.Dependencies {
		if d.Path == "" {
			continue
		}
		if id, ok := dirToID[realPath(d.Path)]; ok && id != p.ID {
			deps = append(deps, id)
		}
	}

	return Package{
		ID:           p.ID,
		Name:         p.Name,
		Version:      v,
		Dir:          dir,
		ExtraDirs:    extra,
		Dependencies: deps,
		ManifestPath: p.ManifestPath,
	}, nil
}

// extraDirs reads metadata.<key>.extra-dirs, resolving each entry against the
// package directory.
func extraDirs(metadata map[string]json.RawMessage, key, pkgDir string) ([]string, error) {
	table, ok := metadata[key]
	if !ok || isNull(table) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(table, &fields); err != nil {
		return nil, fmt.Errorf("%w: metadata.%s should be a table", ErrExtraDirs, key)
	}
	list, ok := fields[ExtraDirsKey]
	if !ok || isNull(list) {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(list, &entries); err != nil {
		return nil, fmt.Errorf("%w: extra dirs should be a list", ErrExtraDirs)
	}
	dirs := make([]string, 0, len(entries))
	for i, e := range entries {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			return nil, fmt.Errorf("%w: entry %d should be a string", ErrExtraDirs, i)
		}
		d := cleanDir(path.Join(pkgDir, filepath.ToSlash(s)))
		if escapes(d) {
			return nil, fmt.Errorf("%w: %q is outside the repository", ErrExtraDirs, s)
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// realPath resolves symlinks so a repository opened through a link compares
// equal to the canonical paths cargo reports. Paths that do not exist are
// only cleaned.
func realPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func escapes(dir string) bool {
	return dir == ".." || strings.HasPrefix(dir, "../") || path.IsAbs(dir)
}
