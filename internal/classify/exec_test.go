package classify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/papapumpkin/pulsar/internal/version"
)

// writeExecutable creates a shell script classifier in a temp dir.
func writeExecutable(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell classifiers are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "classifier.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write classifier: %v", err)
	}
	return path
}

func TestExecClassify(t *testing.T) {
	t.Parallel()

	stdinCopy := filepath.Join(t.TempDir(), "stdin.json")
	path := writeExecutable(t, `cat > "$1"
echo '{"changelog": "- added things", "bump": 2}'`)

	e := &Exec{Path: path, Args: []string{stdinCopy}}
	commits := []Commit{{ID: "abc", Message: "feat: x", AuthorName: "Ada", AuthorEmail: "ada@example.com"}}
	v, err := e.Classify(context.Background(), commits)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if v.Bump != version.Minor || v.Changelog != "- added things" {
		t.Errorf("verdict = %+v", v)
	}

	data, err := os.ReadFile(stdinCopy)
	if err != nil {
		t.Fatalf("read stdin copy: %v", err)
	}
	var got []map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("stdin was not JSON: %v\n%s", err, data)
	}
	if len(got) != 1 || got[0]["id"] != "abc" || got[0]["authorEmail"] != "ada@example.com" || got[0]["authorName"] != "Ada" {
		t.Errorf("stdin = %v", got)
	}
}

func TestExecEmptyCommitsIsJSONArray(t *testing.T) {
	t.Parallel()

	stdinCopy := filepath.Join(t.TempDir(), "stdin.json")
	path := writeExecutable(t, `cat > "$1"
echo '{"changelog": "", "bump": 0}'`)

	e := &Exec{Path: path, Args: []string{stdinCopy}}
	if _, err := e.Classify(context.Background(), nil); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	data, _ := os.ReadFile(stdinCopy)
	if string(data) != "[]" {
		t.Errorf("stdin = %q, want []", data)
	}
}

func TestExecFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		contract bool
	}{
		{"non-zero exit", `echo "policy exploded" >&2; exit 3`, false},
		{"bump out of range", `echo '{"changelog": "", "bump": 4}'`, true},
		{"bump missing", `echo '{"changelog": "x"}'`, true},
		{"not json", `echo 'major please'`, true},
		{"unknown field", `echo '{"changelog": "", "bump": 1, "extra": true}'`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := &Exec{Path: writeExecutable(t, "cat > /dev/null\n"+tt.body)}
			_, err := e.Classify(context.Background(), []Commit{{ID: "a"}})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrContract); got != tt.contract {
				t.Errorf("errors.Is(err, ErrContract) = %v, want %v (err: %v)", got, tt.contract, err)
			}
		})
	}
}

func TestExecValidate(t *testing.T) {
	t.Parallel()

	if err := (&Exec{Path: writeExecutable(t, "exit 0")}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (&Exec{Path: filepath.Join(t.TempDir(), "nope")}).Validate(); err == nil {
		t.Error("expected Validate to fail for a missing executable")
	}
}
