// Package engine wires the workflow evaluator, the task evaluator, a
// backend, and the run's on-disk layout into a single top-level entry
// point, mirroring the teacher's cli/internal/engine session-wiring
// package: one long-lived Engine value built once from a Backend and a
// Config, driving many independent runs.
package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/cache"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/oakflow-dev/oakflow/task"
	"github.com/oakflow-dev/oakflow/transfer"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/oakflow-dev/oakflow/workflow"
)

// Engine runs workflow documents against one backend. It is safe for
// concurrent use across independent Run calls: each Run allocates its
// own run id, directory, and evaluator state.
type Engine struct {
	Cfg        *config.Config
	Backend    backend.Backend
	Transferer backend.Transferer
	Cache      cache.Cache
	Resolver   value.PathResolver
	Bus        *events.Bus
}

// New wires an Engine from its collaborators. The root directory new
// runs are created under (<baseDir>/<run-id>/...) is passed to Run.
func New(cfg *config.Config, be backend.Backend, tr *transfer.Transferer, c cache.Cache, resolver value.PathResolver, bus *events.Bus) *Engine {
	return &Engine{Cfg: cfg, Backend: be, Transferer: tr, Cache: c, Resolver: resolver, Bus: bus}
}

// Run is one end-to-end workflow execution (§4.4 + §6.2 + §6.4): it
// validates rawInputs against the workflow's declared input schema,
// decodes it into typed Values, allocates a run id and directory under
// baseDir, and drives the workflow evaluator to completion.
//
// rawInputs is the JSON-decoded content of an inputs.json document
// (as produced by encoding/json.Unmarshal into map[string]any, numbers
// as float64, per §6.2).
func (e *Engine) Run(ctx context.Context, doc *ast.Document, rawInputs map[string]any, baseDir string) (runID string, outputs value.Value, err error) {
	if doc.Workflow == nil {
		return "", value.Value{}, diag.Newf(diag.KindUnknownName, doc.Span, "document has no workflow")
	}
	wf := doc.Workflow

	if err := validateInputsJSON(wf, doc.Structs, rawInputs); err != nil {
		return "", value.Value{}, err
	}

	declared := make(map[string]ast.Field, len(wf.Inputs))
	for _, in := range wf.Inputs {
		declared[in.Name] = in
	}
	structResolver := structResolverFor(doc.Structs)

	inputs := make(map[string]value.Value, len(rawInputs))
	for name, raw := range rawInputs {
		f, ok := declared[name]
		if !ok {
			return "", value.Value{}, diag.Newf(diag.KindUnknownName, wf.Span, "unknown workflow input %q", name)
		}
		v, err := value.FromJSON(raw, f.Type, structResolver, f.Span)
		if err != nil {
			return "", value.Value{}, err
		}
		inputs[name] = v
	}

	runID = uuid.New().String()
	rootDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return "", value.Value{}, diag.Wrap(diag.KindIO, wf.Span, "engine: create run directory", err)
	}

	io := LocalIO{TempDir: filepath.Join(rootDir, "tmp")}
	if err := os.MkdirAll(io.TempDir, 0o755); err != nil {
		return "", value.Value{}, diag.Wrap(diag.KindIO, wf.Span, "engine: create run temp directory", err)
	}

	we := &workflow.Evaluator{
		Doc: doc,
		Tasks: &task.Evaluator{
			Backend:    e.Backend,
			Transferer: e.Transferer,
			Cache:      e.Cache,
			Resolver:   e.Resolver,
			Cfg:        e.Cfg,
			IO:         io,
			Structs:    structResolver,
		},
		Cfg:      e.Cfg,
		IO:       io,
		Resolver: e.Resolver,
		Bus:      e.Bus,
	}

	out, err := we.Evaluate(ctx, inputs, rootDir)
	if err != nil {
		return runID, value.Value{}, err
	}
	return runID, out, nil
}

func structResolverFor(structs map[string]*ast.StructDef) value.StructResolver {
	return func(name string) ([]value.Field, bool) {
		def, ok := structs[name]
		if !ok {
			return nil, false
		}
		fields := make([]value.Field, len(def.Fields))
		for i, f := range def.Fields {
			fields[i] = value.Field{Name: f.Name, Type: f.Type}
		}
		return fields, true
	}
}

// DecodeInputsJSON parses raw inputs.json bytes into the
// map[string]any shape Run expects, surfacing a malformed document as
// a typed diagnostic rather than a bare encoding/json error.
func DecodeInputsJSON(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, diag.Wrap(diag.KindIO, diag.Span{}, "engine: parse inputs.json", err)
	}
	return m, nil
}
