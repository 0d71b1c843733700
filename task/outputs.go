package task

import (
	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/eval"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
)

// instantiateCommand renders a task's command template to bytes (§4.5
// step 4): literal text passes through verbatim, a placeholder
// expression is evaluated in scopeIdx and rendered with
// eval.RenderCommandValue (no sep/default/true-false options, arrays
// space-joined, None -> empty string).
func (e *Evaluator) instantiateCommand(ct *ast.CommandTemplate, arena *scope.Arena, scopeIdx int) ([]byte, error) {
	var out []byte
	for _, part := range ct.Parts {
		if part.Placeholder == nil {
			out = append(out, part.Literal...)
			continue
		}
		v, err := eval.Eval(part.Placeholder, arena, scopeIdx, e.IO)
		if err != nil {
			return nil, err
		}
		out = append(out, eval.RenderCommandValue(v)...)
	}
	return out, nil
}

// bindOutputs evaluates each declared output expression in order,
// against a scope seeded with the task's inputs/privates (already
// bound in taskScope) plus the special stdout/stderr/work-dir bindings
// (§4.5 step 8), coerces and path-checks the result, and returns the
// bound outputs by name.
func (e *Evaluator) bindOutputs(t *ast.Task, arena *scope.Arena, taskScope int, result backend.Result, span diag.Span) (map[string]value.Value, error) {
	outScope := arena.Alloc(taskScope)
	defer arena.Free(outScope)

	arena.Insert(outScope, "stdout", value.NewFile(result.Stdout))
	arena.Insert(outScope, "stderr", value.NewFile(result.Stderr))
	arena.Insert(outScope, "work_dir", value.NewDirectory(result.WorkDir))

	outputs := make(map[string]value.Value, len(t.Outputs))
	for _, o := range t.Outputs {
		// ast.Field is shared between inputs and outputs; an output
		// field's Default holds its (always-present) value expression.
		v, err := eval.Eval(o.Default, arena, outScope, e.IO)
		if err != nil {
			return nil, err
		}
		v, err = value.Coerce(v, o.Type, o.Span)
		if err != nil {
			return nil, err
		}
		v, err = value.EnsurePathExists(e.Resolver, v, result.WorkDir, o.Span)
		if err != nil {
			return nil, err
		}
		arena.Insert(outScope, o.Name, v)
		outputs[o.Name] = v
	}
	return outputs, nil
}
