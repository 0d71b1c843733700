// Package workflow implements the workflow evaluator of §4.4: the
// entry point that validates supplied inputs, builds and splits the
// graph, drives the root subgraph to completion dispatching calls to
// the task evaluator, and writes the run's inputs.json/outputs.json.
// Grounded on the teacher's runtime/planner scope-graph walk
// (parent-chain scope resolution, a builder pass over a body of
// statements) generalised from a single-pass IR build to an
// indegree-driven, concurrently-scheduled DAG walk.
package workflow

import (
	"context"
	"os"
	"path/filepath"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/eval"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/oakflow-dev/oakflow/graph"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/task"
	"github.com/oakflow-dev/oakflow/value"
)

// Evaluator runs one workflow document. It is safe for concurrent use
// across independent Evaluate calls: all per-run state (arena, graph,
// cancellation) lives on the stack of Evaluate.
type Evaluator struct {
	Doc      *ast.Document
	Tasks    *task.Evaluator
	Cfg      *config.Config
	IO       eval.IO
	Resolver value.PathResolver
	Bus      *events.Bus
}

// Evaluate runs §4.4's five steps against Doc.Workflow and returns the
// workflow's outputs as an Object value, keyed by output name in
// declaration order (§6.2).
func (e *Evaluator) Evaluate(ctx context.Context, inputs map[string]value.Value, rootDir string) (value.Value, error) {
	wf := e.Doc.Workflow
	if wf == nil {
		return value.Value{}, diag.Newf(diag.KindUnknownName, diag.Span{}, "document has no workflow")
	}

	supplied, err := e.validateInputs(wf, inputs)
	if err != nil {
		return value.Value{}, err
	}

	g := graph.Build(wf.Body, suppliedNames(supplied))

	tmpDir := filepath.Join(rootDir, "tmp")
	callsDir := filepath.Join(rootDir, "calls")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return value.Value{}, diag.Wrap(diag.KindIO, wf.Span, "workflow: create tmp dir", err)
	}
	if err := os.MkdirAll(callsDir, 0o755); err != nil {
		return value.Value{}, diag.Wrap(diag.KindIO, wf.Span, "workflow: create calls dir", err)
	}
	if err := writeInputsJSON(rootDir, inputs); err != nil {
		return value.Value{}, err
	}

	arena := scope.NewArena()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := &driver{
		eval:     e,
		doc:      e.Doc,
		graph:    g,
		arena:    arena,
		tmpDir:   tmpDir,
		callsDir: callsDir,
		supplied: supplied,
		cancel:   cancel,
	}

	if err := d.driveSubgraph(runCtx, cloneSubgraph(g.Root), scope.Root); err != nil {
		return value.Value{}, err
	}

	outputs := make(map[string]value.Value, len(wf.Outputs))
	for _, o := range wf.Outputs {
		v, ok := arena.Lookup(scope.Output, o.Name)
		if !ok {
			return value.Value{}, diag.Newf(diag.KindUnknownName, o.Span, "workflow output %q was never bound", o.Name)
		}
		outputs[o.Name] = v
	}

	if err := writeOutputsJSONOrdered(rootDir, wf.Outputs, outputs); err != nil {
		return value.Value{}, err
	}

	names := make([]string, len(wf.Outputs))
	vals := make([]value.Value, len(wf.Outputs))
	for i, o := range wf.Outputs {
		names[i] = o.Name
		vals[i] = outputs[o.Name]
	}
	return value.NewObject(names, vals), nil
}

// validateInputs checks every supplied name against the workflow's
// declared inputs (§4.4 step 1): unknown names are an error, known
// names are coerced to their declared type. Missing required inputs
// are not an error here — they surface as a missing-default failure
// when the Input node is driven, matching the graph builder's
// suppliedInputs contract (§4.3).
func (e *Evaluator) validateInputs(wf *ast.Workflow, inputs map[string]value.Value) (map[string]value.Value, error) {
	declared := make(map[string]ast.Field, len(wf.Inputs))
	for _, in := range wf.Inputs {
		declared[in.Name] = in
	}
	out := make(map[string]value.Value, len(inputs))
	for name, v := range inputs {
		f, ok := declared[name]
		if !ok {
			return nil, diag.Newf(diag.KindUnknownName, wf.Span, "unknown workflow input %q", name)
		}
		cv, err := value.Coerce(v, f.Type, f.Span)
		if err != nil {
			return nil, err
		}
		out[name], err = value.EnsurePathExists(e.Resolver, cv, filepath.Dir(wf.Span.Document), f.Span)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func suppliedNames(supplied map[string]value.Value) map[string]bool {
	out := make(map[string]bool, len(supplied))
	for name := range supplied {
		out[name] = true
	}
	return out
}

func writeInputsJSON(rootDir string, inputs map[string]value.Value) error {
	return writeJSONValues(filepath.Join(rootDir, "inputs.json"), inputs)
}
