package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/cache"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process backend.Backend double: it never
// shells out, just records each Spawn and returns a canned result.
type fakeBackend struct {
	spawns     int
	exitCode   int
	constraint func(backend.Constraints, backend.Hints) (backend.Constraints, error)
}

func (f *fakeBackend) MaxConcurrency() uint64 { return 0 }

func (f *fakeBackend) Constraints(requested backend.Constraints, hints backend.Hints, span diag.Span) (backend.Constraints, error) {
	if f.constraint != nil {
		return f.constraint(requested, hints)
	}
	return requested, nil
}

func (f *fakeBackend) GuestInputsDir() (string, bool) { return "", false }
func (f *fakeBackend) NeedsLocalInputs() bool         { return false }

func (f *fakeBackend) LocalizeInputs(ctx context.Context, t backend.Transferer, inputs []backend.Input) error {
	for i := range inputs {
		inputs[i].GuestPath = inputs[i].HostPath
	}
	return nil
}

func (f *fakeBackend) Spawn(ctx context.Context, req backend.Request) (<-chan backend.SpawnOutcome, error) {
	f.spawns++
	out := make(chan backend.SpawnOutcome, 1)
	out <- backend.SpawnOutcome{Result: backend.Result{
		ExitCode: f.exitCode,
		WorkDir:  filepath.Join(req.AttemptDir, "work"),
		Stdout:   filepath.Join(req.AttemptDir, "stdout"),
		Stderr:   filepath.Join(req.AttemptDir, "stderr"),
	}}
	close(out)
	return out, nil
}

func (f *fakeBackend) Cleanup(ctx context.Context, workDir string) error { return nil }

// alwaysExists is a PathResolver stub for output types that are
// scalar (not File/Directory), where no resolver call is reached.
type alwaysExists struct{}

func (alwaysExists) Exists(path, baseDir string) (string, bool) { return path, true }

func greetTask() *ast.Task {
	return &ast.Task{
		Name:   "greet",
		Inputs: []ast.Field{{Name: "name", Type: value.String()}},
		Command: &ast.CommandTemplate{Parts: []ast.CommandPart{
			{Literal: "echo "},
			{Placeholder: &ast.Ident{Name: "name"}},
		}},
		Outputs: []ast.Field{{Name: "greeting", Type: value.String(), Default: &ast.Ident{Name: "name"}}},
	}
}

func newEvaluator(b backend.Backend) (*Evaluator, *scope.Arena, int) {
	a := scope.NewArena()
	callerScope := a.Alloc(scope.Root)
	e := &Evaluator{
		Backend:  b,
		Resolver: alwaysExists{},
		Cfg:      config.New(),
	}
	return e, a, callerScope
}

func TestEvaluateCallBindsOutputFromInput(t *testing.T) {
	fb := &fakeBackend{}
	e, arena, callerScope := newEvaluator(fb)
	arena.Insert(callerScope, "greeting_arg", value.NewString("world"))

	cc := CallContext{
		Task:        greetTask(),
		Call:        &ast.Call{Alias: "greet1", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{"name": &ast.Ident{Name: "greeting_arg"}}},
		ID:          "greet1",
		CallDir:     filepath.Join(t.TempDir(), "calls", "greet1"),
		TempDir:     t.TempDir(),
		CallerScope: callerScope,
	}

	out, err := e.EvaluateCall(context.Background(), cc, arena)
	require.NoError(t, err)
	v, ok := out.Field("greeting")
	require.True(t, ok)
	assert.Equal(t, "world", v.Str)
	assert.Equal(t, 1, fb.spawns)
}

func TestEvaluateCallMissingRequiredInputFails(t *testing.T) {
	fb := &fakeBackend{}
	e, arena, callerScope := newEvaluator(fb)

	cc := CallContext{
		Task:        greetTask(),
		Call:        &ast.Call{Alias: "greet1", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{}},
		ID:          "greet1",
		CallDir:     filepath.Join(t.TempDir(), "calls", "greet1"),
		TempDir:     t.TempDir(),
		CallerScope: callerScope,
	}

	_, err := e.EvaluateCall(context.Background(), cc, arena)
	require.Error(t, err)
}

func TestEvaluateCallNonZeroExitFails(t *testing.T) {
	fb := &fakeBackend{exitCode: 1}
	e, arena, callerScope := newEvaluator(fb)
	arena.Insert(callerScope, "greeting_arg", value.NewString("world"))

	cc := CallContext{
		Task:        greetTask(),
		Call:        &ast.Call{Alias: "greet1", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{"name": &ast.Ident{Name: "greeting_arg"}}},
		ID:          "greet1",
		CallDir:     filepath.Join(t.TempDir(), "calls", "greet1"),
		TempDir:     t.TempDir(),
		CallerScope: callerScope,
	}

	_, err := e.EvaluateCall(context.Background(), cc, arena)
	require.Error(t, err)
	assert.Equal(t, 1, fb.spawns)
}

func TestEvaluateCallWritesInputsAndOutputsJSON(t *testing.T) {
	fb := &fakeBackend{}
	e, arena, callerScope := newEvaluator(fb)
	arena.Insert(callerScope, "greeting_arg", value.NewString("world"))

	callDir := filepath.Join(t.TempDir(), "calls", "greet1")
	cc := CallContext{
		Task:        greetTask(),
		Call:        &ast.Call{Alias: "greet1", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{"name": &ast.Ident{Name: "greeting_arg"}}},
		ID:          "greet1",
		CallDir:     callDir,
		TempDir:     t.TempDir(),
		CallerScope: callerScope,
	}

	_, err := e.EvaluateCall(context.Background(), cc, arena)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(callDir, "inputs.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(callDir, "outputs.json"))
	require.NoError(t, err)
}

func TestEvaluateCallCacheableHitSkipsSpawn(t *testing.T) {
	fb := &fakeBackend{}
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	tsk := greetTask()
	tsk.Hints = &ast.HintsBlock{Cacheable: &ast.BoolLiteral{Value: true}}

	e, arena, callerScope := newEvaluator(fb)
	e.Cache = fc
	arena.Insert(callerScope, "greeting_arg", value.NewString("world"))

	cc := CallContext{
		Task:        tsk,
		Call:        &ast.Call{Alias: "greet1", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{"name": &ast.Ident{Name: "greeting_arg"}}},
		ID:          "greet1",
		CallDir:     filepath.Join(t.TempDir(), "calls", "greet1"),
		TempDir:     t.TempDir(),
		CallerScope: callerScope,
	}

	_, err = e.EvaluateCall(context.Background(), cc, arena)
	require.NoError(t, err)
	assert.Equal(t, 1, fb.spawns)

	cc2 := cc
	cc2.ID = "greet2"
	cc2.CallDir = filepath.Join(t.TempDir(), "calls", "greet2")
	out2, err := e.EvaluateCall(context.Background(), cc2, arena)
	require.NoError(t, err)
	v, ok := out2.Field("greeting")
	require.True(t, ok)
	assert.Equal(t, "world", v.Str)
	assert.Equal(t, 1, fb.spawns, "second call should be served from cache, not dispatched")
}
