package engine

import (
	"context"
	"testing"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct{ spawns int }

func (f *fakeBackend) MaxConcurrency() uint64 { return 0 }
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
	out <- backend.SpawnOutcome{Result: backend.Result{ExitCode: 0}}
	close(out)
	return out, nil
}
func (f *fakeBackend) Cleanup(ctx context.Context, workDir string) error { return nil }

type alwaysExists struct{}

func (alwaysExists) Exists(path, baseDir string) (string, bool) { return path, true }

func greetDoc() *ast.Document {
	greet := &ast.Task{
		Name:   "greet",
		Inputs: []ast.Field{{Name: "name", Type: value.String()}},
		Command: &ast.CommandTemplate{Parts: []ast.CommandPart{
			{Literal: "echo "},
			{Placeholder: &ast.Ident{Name: "name"}},
		}},
		Outputs: []ast.Field{{Name: "greeting", Type: value.String(), Default: &ast.Ident{Name: "name"}}},
	}
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
	return &ast.Document{Path: "/virtual/wf.wdl", Workflow: wf, Tasks: map[string]*ast.Task{"greet": greet}}
}

func TestEngineRunEndToEnd(t *testing.T) {
	doc := greetDoc()
	fb := &fakeBackend{}
	eng := New(config.New(), fb, nil, nil, alwaysExists{}, nil)

	runID, out, err := eng.Run(context.Background(), doc, map[string]any{"name": "world"}, t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	v, ok := out.Field("greeting")
	require.True(t, ok)
	assert.Equal(t, "world", v.Str)
	assert.Equal(t, 1, fb.spawns)
}

func TestEngineRunRejectsUnknownInput(t *testing.T) {
	doc := greetDoc()
	fb := &fakeBackend{}
	eng := New(config.New(), fb, nil, nil, alwaysExists{}, nil)

	_, _, err := eng.Run(context.Background(), doc, map[string]any{"nope": "x"}, t.TempDir())
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindCoercionFailure) || diag.IsKind(err, diag.KindUnknownName))
}

func TestEngineRunRejectsMissingRequiredInput(t *testing.T) {
	doc := greetDoc()
	fb := &fakeBackend{}
	eng := New(config.New(), fb, nil, nil, alwaysExists{}, nil)

	_, _, err := eng.Run(context.Background(), doc, map[string]any{}, t.TempDir())
	require.Error(t, err)
}

func TestEngineRunRequiresWorkflow(t *testing.T) {
	doc := &ast.Document{Path: "/virtual/notasks.wdl"}
	fb := &fakeBackend{}
	eng := New(config.New(), fb, nil, nil, alwaysExists{}, nil)

	_, _, err := eng.Run(context.Background(), doc, map[string]any{}, t.TempDir())
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindUnknownName))
}

func TestDecodeInputsJSONRejectsMalformed(t *testing.T) {
	_, err := DecodeInputsJSON([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindIO))
}

func TestDecodeInputsJSONParsesObject(t *testing.T) {
	m, err := DecodeInputsJSON([]byte(`{"name":"world"}`))
	require.NoError(t, err)
	assert.Equal(t, "world", m["name"])
}
