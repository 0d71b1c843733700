package task

import (
	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/eval"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
)

// resolveConstraints applies the precedence of §3.4 ("explicit
// input-file override > per-call expression > workflow default >
// engine default"): the input-file-override tier is handled upstream,
// by a caller-supplied argument binding that already shadows the
// task's own requirements expression before this is reached; what
// remains here is "per-call expression, else engine default" — the
// document has no workflow-level requirements block to occupy the
// intermediate tier (see DESIGN.md Open Questions).
func (e *Evaluator) resolveConstraints(req *ast.RequirementsBlock, arena *scope.Arena, scopeIdx int, span diag.Span) (backend.Constraints, error) {
	c := backend.Constraints{
		Container:  e.Cfg.DefaultContainer,
		CPU:        e.Cfg.DefaultCPU,
		MemoryMiB:  e.Cfg.DefaultMemoryMiB,
		MaxRetries: e.Cfg.DefaultMaxRetries,
	}
	if req == nil {
		return c, nil
	}

	var err error
	if req.Container != nil {
		if c.Container, err = e.evalString(req.Container, arena, scopeIdx); err != nil {
			return backend.Constraints{}, err
		}
	}
	if req.CPU != nil {
		if c.CPU, err = e.evalFloat(req.CPU, arena, scopeIdx); err != nil {
			return backend.Constraints{}, err
		}
	}
	if req.Memory != nil {
		if c.MemoryMiB, err = e.evalInt(req.Memory, arena, scopeIdx); err != nil {
			return backend.Constraints{}, err
		}
	}
	if req.GPU != nil {
		gpu, err := e.evalInt(req.GPU, arena, scopeIdx)
		if err != nil {
			return backend.Constraints{}, err
		}
		c.GPU = int(gpu)
	}
	if req.FPGA != nil {
		fpga, err := e.evalInt(req.FPGA, arena, scopeIdx)
		if err != nil {
			return backend.Constraints{}, err
		}
		c.FPGA = int(fpga)
	}
	if req.Disks != nil {
		disks, err := e.evalDisks(req.Disks, arena, scopeIdx)
		if err != nil {
			return backend.Constraints{}, err
		}
		c.Disks = disks
	}
	if req.MaxRetries != nil {
		retries, err := e.evalInt(req.MaxRetries, arena, scopeIdx)
		if err != nil {
			return backend.Constraints{}, err
		}
		c.MaxRetries = int(retries)
	}
	return c, nil
}

func (e *Evaluator) resolveHints(h *ast.HintsBlock, arena *scope.Arena, scopeIdx int, span diag.Span) (backend.Hints, error) {
	var hints backend.Hints
	if h == nil {
		return hints, nil
	}

	var err error
	if h.Preemptible != nil {
		retries, err := e.evalInt(h.Preemptible, arena, scopeIdx)
		if err != nil {
			return backend.Hints{}, err
		}
		hints.Preemptible = int(retries)
	}
	if h.MaxCPU != nil {
		if hints.MaxCPU, err = e.evalFloat(h.MaxCPU, arena, scopeIdx); err != nil {
			return backend.Hints{}, err
		}
	}
	if h.MaxMemory != nil {
		if hints.MaxMemory, err = e.evalInt(h.MaxMemory, arena, scopeIdx); err != nil {
			return backend.Hints{}, err
		}
	}
	if h.Cacheable != nil {
		if hints.Cacheable, err = e.evalBool(h.Cacheable, arena, scopeIdx); err != nil {
			return backend.Hints{}, err
		}
	}
	if h.ShortTask != nil {
		if hints.ShortTask, err = e.evalBool(h.ShortTask, arena, scopeIdx); err != nil {
			return backend.Hints{}, err
		}
	}
	return hints, nil
}

func (e *Evaluator) evalString(expr ast.Expr, arena *scope.Arena, scopeIdx int) (string, error) {
	v, err := eval.Eval(expr, arena, scopeIdx, e.IO)
	if err != nil {
		return "", err
	}
	v, err = value.Coerce(v, value.String(), expr.ExprSpan())
	if err != nil {
		return "", err
	}
	return v.Str, nil
}

func (e *Evaluator) evalFloat(expr ast.Expr, arena *scope.Arena, scopeIdx int) (float64, error) {
	v, err := eval.Eval(expr, arena, scopeIdx, e.IO)
	if err != nil {
		return 0, err
	}
	v, err = value.Coerce(v, value.Float(), expr.ExprSpan())
	if err != nil {
		return 0, err
	}
	return v.Float, nil
}

func (e *Evaluator) evalInt(expr ast.Expr, arena *scope.Arena, scopeIdx int) (int64, error) {
	v, err := eval.Eval(expr, arena, scopeIdx, e.IO)
	if err != nil {
		return 0, err
	}
	if v.Type.Kind != value.KindInt {
		return 0, diag.Newf(diag.KindTypeMismatch, expr.ExprSpan(), "expected Int, got %s", v.Type.String())
	}
	return v.Int, nil
}

func (e *Evaluator) evalBool(expr ast.Expr, arena *scope.Arena, scopeIdx int) (bool, error) {
	v, err := eval.Eval(expr, arena, scopeIdx, e.IO)
	if err != nil {
		return false, err
	}
	if v.Type.Kind != value.KindBool {
		return false, diag.Newf(diag.KindTypeMismatch, expr.ExprSpan(), "expected Boolean, got %s", v.Type.String())
	}
	return v.Bool, nil
}

// evalDisks evaluates the requirements block's disks expression, an
// array of Object values each carrying mount_point/size_gib/type
// fields — the same loosely-typed Object shape the command template's
// placeholder values use (§3.1), since the AST has no dedicated disk-
// mount literal node.
func (e *Evaluator) evalDisks(expr ast.Expr, arena *scope.Arena, scopeIdx int) ([]backend.DiskMount, error) {
	v, err := eval.Eval(expr, arena, scopeIdx, e.IO)
	if err != nil {
		return nil, err
	}
	if v.Type.Kind != value.KindArray {
		return nil, diag.Newf(diag.KindTypeMismatch, expr.ExprSpan(), "disks must be an Array, got %s", v.Type.String())
	}
	disks := make([]backend.DiskMount, len(v.Array))
	for i, elem := range v.Array {
		d := backend.DiskMount{}
		if mp, ok := elem.Field("mount_point"); ok {
			d.MountPoint = mp.Str
		}
		if sz, ok := elem.Field("size_gib"); ok {
			switch sz.Type.Kind {
			case value.KindFloat:
				d.SizeGiB = sz.Float
			case value.KindInt:
				d.SizeGiB = float64(sz.Int)
			}
		}
		if ty, ok := elem.Field("type"); ok {
			d.Type = ty.Str
		}
		disks[i] = d
	}
	return disks, nil
}
