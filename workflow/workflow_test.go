package workflow

import (
	"context"
	"testing"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/task"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process backend.Backend double, mirroring the
// task package's own test double: it never shells out, it just
// records each Spawn and returns a canned successful result.
type fakeBackend struct {
	spawns   int
	maxConc  uint64
	exitCode int
}

func (f *fakeBackend) MaxConcurrency() uint64 { return f.maxConc }

func (f *fakeBackend) Constraints(requested backend.Constraints, hints backend.Hints, span diag.Span) (backend.Constraints, error) {
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
	out <- backend.SpawnOutcome{Result: backend.Result{ExitCode: f.exitCode}}
	close(out)
	return out, nil
}

func (f *fakeBackend) Cleanup(ctx context.Context, workDir string) error { return nil }

type alwaysExists struct{}

func (alwaysExists) Exists(path, baseDir string) (string, bool) { return path, true }

type fakeIO struct{}

func (fakeIO) ReadFile(path string) (string, error)          { return "", nil }
func (fakeIO) WriteTempFile(content string) (string, error)  { return "", nil }
func (fakeIO) Size(path string) (int64, error)                { return 0, nil }

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

func doubleTask() *ast.Task {
	return &ast.Task{
		Name:   "double",
		Inputs: []ast.Field{{Name: "x", Type: value.Int()}},
		Command: &ast.CommandTemplate{Parts: []ast.CommandPart{
			{Literal: "true"},
		}},
		Outputs: []ast.Field{{Name: "y", Type: value.Int(), Default: &ast.BinaryOp{
			Op: "*", Left: &ast.Ident{Name: "x"}, Right: &ast.IntLiteral{Raw: "2"},
		}}},
	}
}

func newWorkflowEvaluator(doc *ast.Document, fb *fakeBackend) *Evaluator {
	cfg := config.New()
	return &Evaluator{
		Doc: doc,
		Tasks: &task.Evaluator{
			Backend:  fb,
			Resolver: alwaysExists{},
			Cfg:      cfg,
			IO:       fakeIO{},
		},
		Cfg:      cfg,
		IO:       fakeIO{},
		Resolver: alwaysExists{},
	}
}

func TestEvaluateLinearWorkflow(t *testing.T) {
	wf := &ast.Workflow{
		Name:   "greeting",
		Inputs: []ast.Field{{Name: "name", Type: value.String()}},
		Body: []ast.Node{
			&ast.InputNode{Name: "name", Type: value.String()},
			&ast.Call{Alias: "g", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{
				"name": &ast.Ident{Name: "name"},
			}},
			&ast.OutputNode{Name: "greeting", Type: value.String(), Expr: &ast.MemberAccess{
				Target: &ast.Ident{Name: "g"}, Field: "greeting",
			}},
		},
		Outputs: []ast.Field{{Name: "greeting", Type: value.String()}},
	}
	doc := &ast.Document{Path: "/virtual/wf.wdl", Workflow: wf, Tasks: map[string]*ast.Task{"greet": greetTask()}}
	fb := &fakeBackend{}
	e := newWorkflowEvaluator(doc, fb)

	out, err := e.Evaluate(context.Background(), map[string]value.Value{"name": value.NewString("world")}, t.TempDir())
	require.NoError(t, err)
	v, ok := out.Field("greeting")
	require.True(t, ok)
	assert.Equal(t, "world", v.Str)
	assert.Equal(t, 1, fb.spawns)
}

func TestEvaluateUnknownWorkflowInputFails(t *testing.T) {
	wf := &ast.Workflow{
		Name:   "greeting",
		Inputs: []ast.Field{{Name: "name", Type: value.String()}},
		Body:   []ast.Node{&ast.InputNode{Name: "name", Type: value.String()}},
	}
	doc := &ast.Document{Path: "/virtual/wf.wdl", Workflow: wf, Tasks: map[string]*ast.Task{}}
	e := newWorkflowEvaluator(doc, &fakeBackend{})

	_, err := e.Evaluate(context.Background(), map[string]value.Value{"nope": value.NewString("x")}, t.TempDir())
	require.Error(t, err)
}

func TestEvaluateMissingRequiredInputFails(t *testing.T) {
	wf := &ast.Workflow{
		Name:   "greeting",
		Inputs: []ast.Field{{Name: "name", Type: value.String()}},
		Body:   []ast.Node{&ast.InputNode{Name: "name", Type: value.String()}},
	}
	doc := &ast.Document{Path: "/virtual/wf.wdl", Workflow: wf, Tasks: map[string]*ast.Task{}}
	e := newWorkflowEvaluator(doc, &fakeBackend{})

	_, err := e.Evaluate(context.Background(), map[string]value.Value{}, t.TempDir())
	require.Error(t, err)
}

func TestEvaluateUnknownTaskCallFails(t *testing.T) {
	wf := &ast.Workflow{
		Name: "bogus",
		Body: []ast.Node{
			&ast.Call{Alias: "g", Callee: "missing", IsTask: true, Args: map[string]ast.Expr{}},
		},
	}
	doc := &ast.Document{Path: "/virtual/wf.wdl", Workflow: wf, Tasks: map[string]*ast.Task{}}
	e := newWorkflowEvaluator(doc, &fakeBackend{})

	_, err := e.Evaluate(context.Background(), map[string]value.Value{}, t.TempDir())
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindUnknownName))
}

func TestEvaluateRecursiveWorkflowCallFails(t *testing.T) {
	wf := &ast.Workflow{
		Name: "self",
		Body: []ast.Node{
			&ast.Call{Alias: "g", Callee: "self", IsTask: false, Args: map[string]ast.Expr{}},
		},
	}
	doc := &ast.Document{Path: "/virtual/wf.wdl", Workflow: wf, Tasks: map[string]*ast.Task{}}
	e := newWorkflowEvaluator(doc, &fakeBackend{})

	_, err := e.Evaluate(context.Background(), map[string]value.Value{}, t.TempDir())
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindRecursiveCall))
}

func conditionalWorkflow() (*ast.Document, *ast.Workflow) {
	wf := &ast.Workflow{
		Name: "maybeGreet",
		Inputs: []ast.Field{
			{Name: "flag", Type: value.Bool()},
			{Name: "nm", Type: value.String()},
		},
		Body: []ast.Node{
			&ast.InputNode{Name: "flag", Type: value.Bool()},
			&ast.InputNode{Name: "nm", Type: value.String()},
			&ast.ConditionalEntry{
				Predicate: &ast.Ident{Name: "flag"},
				Body: []ast.Node{
					&ast.Call{Alias: "g", Callee: "greet", IsTask: true, Args: map[string]ast.Expr{
						"name": &ast.Ident{Name: "nm"},
					}},
				},
				BoundNames: []ast.Field{
					{Name: "g", Type: value.CallOutputs("greet", []value.Field{{Name: "greeting", Type: value.String()}})},
				},
			},
			&ast.OutputNode{Name: "greeting", Type: value.String().Opt(), Expr: &ast.MemberAccess{
				Target: &ast.Ident{Name: "g"}, Field: "greeting",
			}},
		},
		Outputs: []ast.Field{{Name: "greeting", Type: value.String().Opt()}},
	}
	doc := &ast.Document{Path: "/virtual/cond.wdl", Workflow: wf, Tasks: map[string]*ast.Task{"greet": greetTask()}}
	return doc, wf
}

func TestEvaluateConditionalTrueRunsBody(t *testing.T) {
	doc, _ := conditionalWorkflow()
	fb := &fakeBackend{}
	e := newWorkflowEvaluator(doc, fb)

	out, err := e.Evaluate(context.Background(), map[string]value.Value{
		"flag": value.NewBool(true),
		"nm":   value.NewString("hi"),
	}, t.TempDir())
	require.NoError(t, err)
	v, ok := out.Field("greeting")
	require.True(t, ok)
	assert.Equal(t, "hi", v.Str)
	assert.Equal(t, 1, fb.spawns)
}

func TestEvaluateConditionalFalseSkipsBodyAndPromotesNone(t *testing.T) {
	doc, _ := conditionalWorkflow()
	fb := &fakeBackend{}
	e := newWorkflowEvaluator(doc, fb)

	out, err := e.Evaluate(context.Background(), map[string]value.Value{
		"flag": value.NewBool(false),
		"nm":   value.NewString("hi"),
	}, t.TempDir())
	require.NoError(t, err)
	v, ok := out.Field("greeting")
	require.True(t, ok)
	assert.True(t, v.Type.Optional)
	assert.Equal(t, 0, fb.spawns, "conditional-false must not drive the body")
}

func TestEvaluateScatterGathersCallOutputsAsArrays(t *testing.T) {
	wf := &ast.Workflow{
		Name: "doubleAll",
		Body: []ast.Node{
			&ast.ScatterEntry{
				LoopVar: "i",
				Iterable: &ast.ArrayLiteral{Elements: []ast.Expr{
					&ast.IntLiteral{Raw: "1"},
					&ast.IntLiteral{Raw: "2"},
					&ast.IntLiteral{Raw: "3"},
				}},
				Body: []ast.Node{
					&ast.Call{Alias: "d", Callee: "double", IsTask: true, Args: map[string]ast.Expr{
						"x": &ast.Ident{Name: "i"},
					}},
				},
				BoundNames: []ast.Field{
					{Name: "d", Type: value.CallOutputs("double", []value.Field{{Name: "y", Type: value.Int()}})},
				},
			},
			&ast.OutputNode{Name: "ys", Type: value.Array(value.Int()), Expr: &ast.MemberAccess{
				Target: &ast.Ident{Name: "d"}, Field: "y",
			}},
		},
		Outputs: []ast.Field{{Name: "ys", Type: value.Array(value.Int())}},
	}
	doc := &ast.Document{Path: "/virtual/scatter.wdl", Workflow: wf, Tasks: map[string]*ast.Task{"double": doubleTask()}}
	fb := &fakeBackend{}
	e := newWorkflowEvaluator(doc, fb)

	out, err := e.Evaluate(context.Background(), map[string]value.Value{}, t.TempDir())
	require.NoError(t, err)
	v, ok := out.Field("ys")
	require.True(t, ok)
	require.Len(t, v.Array, 3)
	assert.Equal(t, int64(2), v.Array[0].Int)
	assert.Equal(t, int64(4), v.Array[1].Int)
	assert.Equal(t, int64(6), v.Array[2].Int)
	assert.Equal(t, 3, fb.spawns)
}

func TestEvaluateScatterEmptyIterableGathersEmptyArray(t *testing.T) {
	wf := &ast.Workflow{
		Name: "doubleNone",
		Body: []ast.Node{
			&ast.ScatterEntry{
				LoopVar:  "i",
				Iterable: &ast.ArrayLiteral{Elements: nil},
				Body: []ast.Node{
					&ast.Call{Alias: "d", Callee: "double", IsTask: true, Args: map[string]ast.Expr{
						"x": &ast.Ident{Name: "i"},
					}},
				},
				BoundNames: []ast.Field{
					{Name: "d", Type: value.CallOutputs("double", []value.Field{{Name: "y", Type: value.Int()}})},
				},
			},
			&ast.OutputNode{Name: "ys", Type: value.Array(value.Int()), Expr: &ast.MemberAccess{
				Target: &ast.Ident{Name: "d"}, Field: "y",
			}},
		},
		Outputs: []ast.Field{{Name: "ys", Type: value.Array(value.Int())}},
	}
	doc := &ast.Document{Path: "/virtual/scatter0.wdl", Workflow: wf, Tasks: map[string]*ast.Task{"double": doubleTask()}}
	fb := &fakeBackend{}
	e := newWorkflowEvaluator(doc, fb)

	out, err := e.Evaluate(context.Background(), map[string]value.Value{}, t.TempDir())
	require.NoError(t, err)
	v, ok := out.Field("ys")
	require.True(t, ok)
	assert.Len(t, v.Array, 0)
	assert.Equal(t, 0, fb.spawns)
}
