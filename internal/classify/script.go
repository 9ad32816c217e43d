package classify

import (
	"context"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const scriptFuncName = "Classify"

// Script is a classifier written as a Go source file and run by an embedded
// interpreter. The file must declare, in package main:
//
//	func Classify(commits []map[string]string) (map[string]any, error)
//
// Each commit map carries the keys id, message, authorName and authorEmail.
// The result map must carry "changelog" (string, optional) and "bump"
// (integer 0..3). Only the standard library is importable.
type Script struct {
	Path   string
	source string
}

// LoadScript reads and test-compiles the script at path so that syntax errors
// and a missing Classify function surface before any history is walked.
func LoadScript(path string) (*Script, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read %s: %w", path, err)
	}
	if strings.TrimSpace(string(code)) == "" {
		return nil, fmt.Errorf("classify: %s is empty", path)
	}
	s := &Script{Path: path, source: string(code)}
	if _, err := s.compile(); err != nil {
		return nil, err
	}
	return s, nil
}

// compile evaluates the script in a fresh interpreter and returns its
// Classify function. A new interpreter per call keeps invocations isolated
// from each other's global state.
func (s *Script) compile() (reflect.Value, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return reflect.Value{}, fmt.Errorf("classify: load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(s.source); err != nil {
		return reflect.Value{}, fmt.Errorf("classify: interpret %s: %w", s.Path, err)
	}
	fn, err := i.Eval(scriptFuncName)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("classify: %s must define %s([]map[string]string) (map[string]any, error): %w",
			s.Path, scriptFuncName, err)
	}
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("classify: %s: %s is not a function", s.Path, scriptFuncName)
	}
	if fn.Type().NumIn() != 1 {
		return reflect.Value{}, fmt.Errorf("classify: %s: %s must take exactly one argument", s.Path, scriptFuncName)
	}
	return fn, nil
}

// Classify runs the script's Classify function on commits.
func (s *Script) Classify(ctx context.Context, commits []Commit) (v Verdict, err error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	fn, err := s.compile()
	if err != nil {
		return Verdict{}, err
	}

	arg := reflect.ValueOf(commitMaps(commits))
	if in := fn.Type().In(0); arg.Type() != in {
		if !arg.Type().ConvertibleTo(in) {
			return Verdict{}, fmt.Errorf("classify: %s: %s argument must be []map[string]string, got %s",
				s.Path, scriptFuncName, in)
		}
		arg = arg.Convert(in)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classify: %s panicked: %v", s.Path, r)
		}
	}()
	results := fn.Call([]reflect.Value{arg})
	return decodeScriptResults(s.Path, results)
}

func commitMaps(commits []Commit) []map[string]string {
	out := make([]map[string]string, len(commits))
	for i, c := range commits {
		out[i] = map[string]string{
			"id":          c.ID,
			"message":     c.Message,
			"authorName":  c.AuthorName,
			"authorEmail": c.AuthorEmail,
		}
	}
	return out
}

func decodeScriptResults(path string, results []reflect.Value) (Verdict, error) {
	if len(results) == 0 || len(results) > 2 {
		return Verdict{}, &ContractError{Reason: fmt.Sprintf("%s must return (map[string]any[, error])", scriptFuncName)}
	}
	if len(results) == 2 && !isNilValue(results[1]) {
		if e, ok := results[1].Interface().(error); ok {
			return Verdict{}, fmt.Errorf("classify: %s: %w", path, e)
		}
		return Verdict{}, &ContractError{Reason: fmt.Sprintf("%s returned non-error second value", scriptFuncName)}
	}

	out := results[0]
	for out.Kind() == reflect.Interface && !out.IsNil() {
		out = out.Elem()
	}
	if out.Kind() != reflect.Map || out.Type().Key().Kind() != reflect.String {
		return Verdict{}, &ContractError{Reason: fmt.Sprintf("%s must return a map, got %s", scriptFuncName, out.Kind())}
	}

	var raw RawVerdict
	if cl := out.MapIndex(reflect.ValueOf("changelog").Convert(out.Type().Key())); cl.IsValid() {
		s, ok := unwrap(cl).Interface().(string)
		if !ok {
			return Verdict{}, &ContractError{Reason: "changelog must be a string"}
		}
		raw.Changelog = s
	}
	b := out.MapIndex(reflect.ValueOf("bump").Convert(out.Type().Key()))
	if !b.IsValid() {
		return Verdict{}, &ContractError{Reason: "bump is missing"}
	}
	n, err := integer(unwrap(b))
	if err != nil {
		return Verdict{}, err
	}
	raw.Bump = n
	return raw.Verdict()
}

func unwrap(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

func integer(v reflect.Value) (int, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, &ContractError{Reason: fmt.Sprintf("bump %d out of range", n)}
		}
		return int(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := v.Uint()
		if n > math.MaxInt32 {
			return 0, &ContractError{Reason: fmt.Sprintf("bump %d out of range", n)}
		}
		return int(n), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return 0, &ContractError{Reason: fmt.Sprintf("bump %v is not an integer", f)}
		}
		return int(f), nil
	default:
		return 0, &ContractError{Reason: fmt.Sprintf("bump must be an integer, got %s", v.Kind())}
	}
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
