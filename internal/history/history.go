// Package history attributes commits to workspace packages. It walks the
// revision history once, diffs every commit against each of its parents with
// rename detection, and reports the commits whose changed paths fall under a
// package's directories.
//
// Commit order is part of the contract: children are always emitted before
// their parents, and among commits whose children have all been emitted the
// one with the latest committer time comes first (ties broken by hash). This
// is newest-first topological order; OldestFirst reverses it.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/papapumpkin/pulsar/internal/classify"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

// ErrUndecodable indicates a commit field that is not valid UTF-8 text.
var ErrUndecodable = errors.New("commit text is not valid UTF-8")

// MailmapFile is the conventional mailmap location at the repository root.
const MailmapFile = ".mailmap"

// DecodeError reports which field of which commit could not be decoded.
type DecodeError struct {
	Commit string
	Field  string
}

// Error returns the commit hash and offending field.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("commit %s: %s: %v", e.Commit, e.Field, ErrUndecodable)
}

// Unwrap returns ErrUndecodable.
func (e *DecodeError) Unwrap() error {
	return ErrUndecodable
}

// Range bounds a history walk.
type Range struct {
	// Head is the revision the walk starts from; empty means HEAD.
	Head string
	// Since is an exclusive boundary: it and its ancestors are not visited.
	// Empty walks from the beginning of history.
	Since string
}

// Repo is an opened repository with its mailmap.
type Repo struct {
	repo    *git.Repository
	mailmap *Mailmap
}

// Open opens the repository containing path.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}
	return FromRepository(r)
}

// FromRepository wraps an already opened go-git repository.
func FromRepository(r *git.Repository) (*Repo, error) {
	mm, err := loadMailmap(r)
	if err != nil {
		return nil, fmt.Errorf("loading mailmap: %w", err)
	}
	return &Repo{repo: r, mailmap: mm}, nil
}

// Root returns the worktree root directory, or "" for a bare repository.
func (r *Repo) Root() string {
	wt, err := r.repo.Worktree()
	if err != nil {
		return ""
	}
	return wt.Filesystem.Root()
}

// Mailmap returns the identity mapping in use.
func (r *Repo) Mailmap() *Mailmap {
	return r.mailmap
}

// loadMailmap reads .mailmap from the worktree, falling back to the HEAD tree.
// A missing file yields an empty mailmap.
func loadMailmap(r *git.Repository) (*Mailmap, error) {
	if wt, err := r.Worktree(); err == nil {
		f, err := wt.Filesystem.Open(MailmapFile)
		switch {
		case err == nil:
			defer f.Close()
			return ParseMailmap(f)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	ref, err := r.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return &Mailmap{}, nil
		}
		return nil, err
	}
	c, err := r.CommitObject(ref.Hash())
	if err != nil {
		return nil, err
	}
	f, err := c.File(MailmapFile)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return &Mailmap{}, nil
		}
		return nil, err
	}
	rd, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return ParseMailmap(rd)
}

// Resolve resolves a revision expression to a commit hash.
func (r *Repo) Resolve(rev string) (plumbing.Hash, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving revision %q: %w", rev, err)
	}
	return *h, nil
}

// Walk is the ordered set of commits in a Range. Changed paths are computed
// lazily and cached, so attributing many packages diffs each commit once.
type Walk struct {
	repo    *Repo
	commits []*object.Commit
	changed map[plumbing.Hash][]string
}

// Walk collects the commits reachable from rng.Head that are not ancestors
// of rng.Since (inclusive), in the requested order.
func (r *Repo) Walk(ctx context.Context, rng Range, order Order) (*Walk, error) {
	headRev := rng.Head
	if headRev == "" {
		headRev = "HEAD"
	}
	head, err := r.Resolve(headRev)
	if err != nil {
		return nil, err
	}

	hidden := make(map[plumbing.Hash]bool)
	if rng.Since != "" {
		since, err := r.Resolve(rng.Since)
		if err != nil {
			return nil, err
		}
		if err := r.ancestors(ctx, since, hidden); err != nil {
			return nil, err
		}
	}

	commits, err := r.reachable(ctx, head, hidden)
	if err != nil {
		return nil, err
	}
	ordered := topoNewestFirst(commits)
	if order == OldestFirst {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	return &Walk{repo: r, commits: ordered, changed: make(map[plumbing.Hash][]string)}, nil
}

// ancestors adds from and every ancestor of it to set.
func (r *Repo) ancestors(ctx context.Context, from plumbing.Hash, set map[plumbing.Hash]bool) error {
	stack := []plumbing.Hash{from}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set[h] {
			continue
		}
		set[h] = true
		c, err := r.repo.CommitObject(h)
		if err != nil {
			return fmt.Errorf("reading commit %s: %w", h, err)
		}
		stack = append(stack, c.ParentHashes...)
	}
	return nil
}

// reachable returns every commit reachable from head that is not hidden.
func (r *Repo) reachable(ctx context.Context, head plumbing.Hash, hidden map[plumbing.Hash]bool) (map[plumbing.Hash]*object.Commit, error) {
	found := make(map[plumbing.Hash]*object.Commit)
	stack := []plumbing.Hash{head}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if hidden[h] || found[h] != nil {
			continue
		}
		c, err := r.repo.CommitObject(h)
		if err != nil {
			return nil, fmt.Errorf("reading commit %s: %w", h, err)
		}
		found[h] = c
		stack = append(stack, c.ParentHashes...)
	}
	return found, nil
}

// Len returns the number of commits in the walk.
func (w *Walk) Len() int {
	return len(w.commits)
}

// Hashes returns the walked commit hashes in walk order.
func (w *Walk) Hashes() []string {
	out := make([]string, len(w.commits))
	for i, c := range w.commits {
		out[i] = c.Hash.String()
	}
	return out
}

// Attribute returns, in walk order, the commits that changed at least one path
// under any of dirs. Paths are compared by component-wise prefix; both the old
// and the new side of every change count, so renames into or out of a
// directory are attributed to it.
func (w *Walk) Attribute(ctx context.Context, dirs []string) ([]classify.Commit, error) {
	var out []classify.Commit
	for _, c := range w.commits {
		paths, err := w.changedPaths(ctx, c)
		if err != nil {
			return nil, err
		}
		if !touches(paths, dirs) {
			continue
		}
		commit, err := w.decode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, commit)
	}
	return out, nil
}

func touches(paths, dirs []string) bool {
	for _, p := range paths {
		for _, d := range dirs {
			if workspace.Within(p, d) {
				return true
			}
		}
	}
	return false
}

func (w *Walk) decode(c *object.Commit) (classify.Commit, error) {
	id := c.Hash.String()
	if !utf8.ValidString(c.Message) {
		return classify.Commit{}, &DecodeError{Commit: id, Field: "message"}
	}
	if !utf8.ValidString(c.Author.Name) {
		return classify.Commit{}, &DecodeError{Commit: id, Field: "author name"}
	}
	if !utf8.ValidString(c.Author.Email) {
		return classify.Commit{}, &DecodeError{Commit: id, Field: "author email"}
	}
	name, email := w.repo.mailmap.Resolve(c.Author.Name, c.Author.Email)
	return classify.Commit{
		ID:          id,
		Message:     c.Message,
		AuthorName:  name,
		AuthorEmail: email,
	}, nil
}

// changedPaths diffs c against each parent (or the empty tree for a root
// commit) with rename detection and returns the sorted union of old and new
// paths.
func (w *Walk) changedPaths(ctx context.Context, c *object.Commit) ([]string, error) {
	if paths, ok := w.changed[c.Hash]; ok {
		return paths, nil
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree of %s: %w", c.Hash, err)
	}

	seen := make(map[string]bool)
	collect := func(from *object.Tree) error {
		opts := *object.DefaultDiffTreeOptions
		changes, err := object.DiffTreeWithOptions(ctx, from, tree, &opts)
		if err != nil {
			return fmt.Errorf("diffing %s: %w", c.Hash, err)
		}
		for _, ch := range changes {
			if ch.From.Name != "" {
				seen[ch.From.Name] = true
			}
			if ch.To.Name != "" {
				seen[ch.To.Name] = true
			}
		}
		return nil
	}

	if c.NumParents() == 0 {
		if err := collect(&object.Tree{}); err != nil {
			return nil, err
		}
	} else {
		err := c.Parents().ForEach(func(p *object.Commit) error {
			ptree, err := p.Tree()
			if err != nil {
				return fmt.Errorf("reading tree of %s: %w", p.Hash, err)
			}
			return collect(ptree)
		})
		if err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.changed[c.Hash] = paths
	return paths, nil
}
