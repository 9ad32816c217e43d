// Package classify defines the boundary between the release engine and the
// policy that decides what a package's commits mean. A Classifier receives the
// ordered commits attributed to one package and returns a Verdict: changelog
// text plus a bump level. Implementations are chosen at startup; the engine
// only depends on the interface.
package classify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/papapumpkin/pulsar/internal/version"
)

// ErrContract is returned when a classifier output violates the verdict
// contract, e.g. a bump outside [0, 3].
var ErrContract = errors.New("classifier contract violation")

// ErrUnknownKind is returned by Open for an unrecognized classifier kind.
var ErrUnknownKind = errors.New("unknown classifier kind")

// Commit is one attributed commit as handed to a classifier.
type Commit struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
}

// Verdict is a classifier's decision for one package.
type Verdict struct {
	Changelog string
	Bump      version.Bump
}

// RawVerdict is the wire form of a Verdict: bump is 0=None, 1=Patch, 2=Minor,
// 3=Major.
type RawVerdict struct {
	Changelog string `json:"changelog"`
	Bump      int    `json:"bump"`
}

// Verdict validates the raw form and converts it.
func (r RawVerdict) Verdict() (Verdict, error) {
	b, err := version.BumpFromRaw(r.Bump)
	if err != nil {
		return Verdict{}, &ContractError{Reason: err.Error()}
	}
	return Verdict{Changelog: r.Changelog, Bump: b}, nil
}

// ContractError describes how a classifier output broke the contract.
type ContractError struct {
	Reason string
}

// Error returns the violation description.
func (e *ContractError) Error() string {
	return ErrContract.Error() + ": " + e.Reason
}

// Unwrap returns ErrContract so callers can match with errors.Is.
func (e *ContractError) Unwrap() error {
	return ErrContract
}

// Classifier turns the commits attributed to one package into a Verdict.
// Commits arrive in the order the history walk produced them. A returned
// error aborts the run; no partial verdict is used.
type Classifier interface {
	Classify(ctx context.Context, commits []Commit) (Verdict, error)
}

// Func adapts an ordinary function to the Classifier interface.
type Func func(ctx context.Context, commits []Commit) (Verdict, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, commits []Commit) (Verdict, error) {
	return f(ctx, commits)
}

// Serial wraps a Classifier so that at most one invocation runs at a time.
// Classifiers are not assumed to be reentrant.
type Serial struct {
	mu    sync.Mutex
	inner Classifier
}

// NewSerial returns c guarded by a mutex.
func NewSerial(c Classifier) *Serial {
	return &Serial{inner: c}
}

// Classify invokes the wrapped classifier under the lock.
func (s *Serial) Classify(ctx context.Context, commits []Commit) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Classify(ctx, commits)
}

// Kinds accepted by Open.
const (
	KindAuto   = "auto"
	KindScript = "script"
	KindExec   = "exec"
)

// Open selects a classifier implementation. KindAuto picks a script for .go
// files and an executable otherwise.
func Open(kind, path string, args []string) (Classifier, error) {
	if path == "" {
		return nil, fmt.Errorf("classifier path is required")
	}
	if kind == "" || kind == KindAuto {
		kind = KindExec
		if filepath.Ext(path) == ".go" {
			kind = KindScript
		}
	}
	switch kind {
	case KindScript:
		s, err := LoadScript(path)
		if err != nil {
			return nil, err
		}
		return NewSerial(s), nil
	case KindExec:
		return NewSerial(&Exec{Path: path, Args: args}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Validate opens the classifier described by kind and path without running
// it. Executables are also looked up on disk or PATH.
func Validate(kind, path string, args []string) error {
	c, err := Open(kind, path, args)
	if err != nil {
		return err
	}
	if s, ok := c.(*Serial); ok {
		if v, ok := s.inner.(interface{ Validate() error }); ok {
			return v.Validate()
		}
	}
	return nil
}
