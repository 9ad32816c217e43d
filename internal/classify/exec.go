package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Exec is a classifier run as a subprocess. The commits are written to its
// stdin as a JSON array and a JSON object {"changelog": "...", "bump": N} is
// read from its stdout. A non-zero exit status is a classifier failure.
type Exec struct {
	Path string
	Args []string
	// Dir is the working directory of the subprocess; empty means the
	// current directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// Classify runs the subprocess once for commits.
func (e *Exec) Classify(ctx context.Context, commits []Commit) (Verdict, error) {
	if commits == nil {
		commits = []Commit{}
	}
	input, err := json.Marshal(commits)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: encode commits: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Verdict{}, fmt.Errorf("classify: %s %s failed: %w\nstderr: %s",
			e.Path, strings.Join(e.Args, " "), err, strings.TrimSpace(stderr.String()))
	}

	out := stdout.Bytes()
	var wire struct {
		Changelog string `json:"changelog"`
		Bump      *int   `json:"bump"`
	}
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Verdict{}, &ContractError{Reason: fmt.Sprintf("malformed verdict JSON: %v (raw output: %s)", err, out)}
	}
	if wire.Bump == nil {
		return Verdict{}, &ContractError{Reason: "bump is missing"}
	}
	return RawVerdict{Changelog: wire.Changelog, Bump: *wire.Bump}.Verdict()
}

// Validate checks that the classifier executable exists.
func (e *Exec) Validate() error {
	if _, err := exec.LookPath(e.Path); err != nil {
		return fmt.Errorf("classifier executable %q: %w", e.Path, err)
	}
	return nil
}
