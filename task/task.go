// Package task implements the task evaluator of §4.5: for one call to
// a task, it merges arguments with declared defaults, resolves
// requirements/hints against engine defaults, validates the ask
// against backend capacity, instantiates the command template,
// consults the content-addressed cache, dispatches to a backend, and
// binds the task's declared outputs. Grounded on the teacher's
// core/decorator invocation pipeline (resolve inputs -> build command
// -> dispatch via Transport -> bind result), generalised from a single
// decorator command to a WDL task's full input/output contract.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/cache"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/eval"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
)

// Evaluator dispatches one call-to-task per invocation of EvaluateCall.
// It is safe for concurrent use: all per-call mutable state lives on
// the stack of EvaluateCall, not on the Evaluator itself.
type Evaluator struct {
	Backend    backend.Backend
	Transferer backend.Transferer
	Cache      cache.Cache
	Resolver   value.PathResolver
	Cfg        *config.Config
	IO         eval.IO
	Structs    value.StructResolver
}

// CallContext names the one call being evaluated: its task definition,
// its AST call node (argument expressions, evaluated against
// CallerScope), its dispatch id (call alias joined with scatter index,
// §6.3), and the on-disk directory laid out for it (§6.4).
type CallContext struct {
	Task        *ast.Task
	Call        *ast.Call
	ID          string
	CallDir     string
	TempDir     string
	CallerScope int
}

// EvaluateCall runs the full task-evaluator pipeline of §4.5 and
// returns the call's outputs as a CallOutputs value.
func (e *Evaluator) EvaluateCall(ctx context.Context, cc CallContext, arena *scope.Arena) (value.Value, error) {
	t := cc.Task
	span := t.Span

	taskScope := arena.Alloc(-1)
	defer arena.Free(taskScope)

	argValues := make(map[string]value.Value, len(t.Inputs))
	for _, in := range t.Inputs {
		v, err := e.resolveInput(in, cc, arena, taskScope)
		if err != nil {
			return value.Value{}, err
		}
		v, err = value.EnsurePathExists(e.Resolver, v, filepath.Dir(t.Span.Document), span)
		if err != nil {
			return value.Value{}, err
		}
		arena.Insert(taskScope, in.Name, v)
		argValues[in.Name] = v
	}

	for _, d := range t.Privates {
		v, err := eval.Eval(d.Expr, arena, taskScope, e.IO)
		if err != nil {
			return value.Value{}, err
		}
		v, err = value.Coerce(v, d.Type, d.Span)
		if err != nil {
			return value.Value{}, err
		}
		arena.Insert(taskScope, d.Name, v)
	}

	constraints, err := e.resolveConstraints(t.Requirements, arena, taskScope, span)
	if err != nil {
		return value.Value{}, err
	}
	hints, err := e.resolveHints(t.Hints, arena, taskScope, span)
	if err != nil {
		return value.Value{}, err
	}

	resolved, err := e.Backend.Constraints(constraints, hints, span)
	if err != nil {
		return value.Value{}, err
	}

	command, err := e.instantiateCommand(t.Command, arena, taskScope)
	if err != nil {
		return value.Value{}, err
	}

	outputTypes := make(map[string]value.Type, len(t.Outputs))
	for _, o := range t.Outputs {
		outputTypes[o.Name] = o.Type
	}

	cacheKey := cache.Fingerprint(t.Name, command, argValues)
	consult, store := cache.Mode(e.Cfg.Cache)
	if hints.Cacheable && consult && e.Cache != nil {
		if entry, hit, err := e.Cache.Lookup(ctx, cacheKey, outputTypes, e.Structs); err == nil && hit && len(entry.Outputs) == len(outputTypes) {
			return e.assembleOutputs(t, entry.Outputs), nil
		}
	}

	inputs, err := e.collectInputs(t, argValues)
	if err != nil {
		return value.Value{}, err
	}

	if err := os.MkdirAll(cc.CallDir, 0o755); err != nil {
		return value.Value{}, diag.Wrap(diag.KindIO, span, "task: create call dir", err)
	}
	if err := writeInputsJSON(cc.CallDir, argValues); err != nil {
		return value.Value{}, err
	}

	result, err := e.dispatch(ctx, cc, command, inputs, resolved, hints)
	if err != nil {
		return value.Value{}, err
	}

	outputs, err := e.bindOutputs(t, arena, taskScope, result, span)
	if err != nil {
		return value.Value{}, err
	}

	if err := writeOutputsJSON(cc.CallDir, outputs); err != nil {
		return value.Value{}, err
	}

	if hints.Cacheable && store && e.Cache != nil {
		_ = e.Cache.Store(ctx, cacheKey, cache.Entry{Outputs: outputs})
	}

	return e.assembleOutputs(t, outputs), nil
}

func (e *Evaluator) resolveInput(in ast.Field, cc CallContext, arena *scope.Arena, taskScope int) (value.Value, error) {
	if argExpr, ok := cc.Call.Args[in.Name]; ok {
		v, err := eval.Eval(argExpr, arena, cc.CallerScope, e.IO)
		if err != nil {
			return value.Value{}, err
		}
		return value.Coerce(v, in.Type, in.Span)
	}
	if in.Default != nil {
		v, err := eval.Eval(in.Default, arena, taskScope, e.IO)
		if err != nil {
			return value.Value{}, err
		}
		return value.Coerce(v, in.Type, in.Span)
	}
	if in.Type.Optional {
		return value.None(in.Type), nil
	}
	return value.Value{}, diag.Newf(diag.KindUnknownName, in.Span, "missing required input %q for task %q", in.Name, cc.Task.Name)
}

// assembleOutputs packs a map of output name->value into the call's
// CallOutputs-typed value (§3.1), in the task's declared output order.
func (e *Evaluator) assembleOutputs(t *ast.Task, outputs map[string]value.Value) value.Value {
	fields := make([]value.Field, len(t.Outputs))
	names := make([]string, len(t.Outputs))
	vals := make([]value.Value, len(t.Outputs))
	for i, o := range t.Outputs {
		fields[i] = value.Field{Name: o.Name, Type: o.Type}
		names[i] = o.Name
		vals[i] = outputs[o.Name]
	}
	return value.NewCallOutputs(t.Name, fields, names, vals)
}

func (e *Evaluator) dispatch(ctx context.Context, cc CallContext, command []byte, inputs []backend.Input, constraints backend.Constraints, hints backend.Hints) (backend.Result, error) {
	maxAttempts := constraints.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptDir := filepath.Join(cc.CallDir, "attempts", fmt.Sprintf("%d", attempt))
		if err := os.MkdirAll(attemptDir, 0o755); err != nil {
			return backend.Result{}, diag.Wrap(diag.KindIO, cc.Task.Span, "task: create attempt dir", err)
		}

		attemptInputs := append([]backend.Input{}, inputs...)
		if err := e.Backend.LocalizeInputs(ctx, e.Transferer, attemptInputs); err != nil {
			return backend.Result{}, err
		}

		env := map[string]string{
			"OAKFLOW_CONTAINER": constraints.Container,
		}
		if hints.ShortTask {
			env["OAKFLOW_SHORT_TASK"] = "true"
		}
		if hints.Preemptible > 0 {
			env["OAKFLOW_PREEMPTIBLE_RETRIES"] = fmt.Sprintf("%d", hints.Preemptible)
		}

		req := backend.Request{
			ID:          cc.ID,
			Command:     command,
			Env:         env,
			Inputs:      attemptInputs,
			Constraints: constraints,
			AttemptDir:  attemptDir,
			TempDir:     cc.TempDir,
		}

		ch, err := e.Backend.Spawn(ctx, req)
		if err != nil {
			return backend.Result{}, err
		}

		select {
		case outcome := <-ch:
			if outcome.Err != nil {
				lastErr = outcome.Err
				if diag.IsKind(outcome.Err, diag.KindBackendTransient) {
					continue
				}
				return backend.Result{}, outcome.Err
			}
			if outcome.Result.ExitCode != 0 {
				lastErr = diag.Newf(diag.KindTaskNonZeroExit, cc.Task.Span,
					"task %q exited with status %d", cc.Task.Name, outcome.Result.ExitCode)
				continue
			}
			return outcome.Result, nil
		case <-ctx.Done():
			return backend.Result{}, diag.Wrap(diag.KindCancelled, cc.Task.Span, "task: call cancelled", ctx.Err())
		}
	}
	return backend.Result{}, lastErr
}

func writeInputsJSON(callDir string, inputs map[string]value.Value) error {
	return writeJSONValues(filepath.Join(callDir, "inputs.json"), inputs)
}

func writeOutputsJSON(callDir string, outputs map[string]value.Value) error {
	return writeJSONValues(filepath.Join(callDir, "outputs.json"), outputs)
}

func writeJSONValues(path string, values map[string]value.Value) error {
	out := make(map[string]any, len(values))
	for name, v := range values {
		j, err := value.ToJSON(v)
		if err != nil {
			return diag.Wrap(diag.KindIO, diag.Span{}, "task: encode "+name, err)
		}
		out[name] = j
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return diag.Wrap(diag.KindIO, diag.Span{}, "task: marshal "+path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
