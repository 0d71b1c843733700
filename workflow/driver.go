package workflow

import (
	"context"
	"path/filepath"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/eval"
	"github.com/oakflow-dev/oakflow/graph"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/task"
	"github.com/oakflow-dev/oakflow/value"
	"golang.org/x/sync/errgroup"
)

// driver holds the state threaded through one run's subgraph walk:
// the document and its graph, the scope arena, the run's filesystem
// layout, the supplied workflow inputs, and the shared cancellation
// function every node error triggers (§4.4 "Cancellation").
type driver struct {
	eval     *Evaluator
	doc      *ast.Document
	graph    *graph.Graph
	arena    *scope.Arena
	tmpDir   string
	callsDir string
	supplied map[string]value.Value
	cancel   context.CancelFunc
}

// workingSet is a subgraph being driven: a mutable copy of its node
// set and indegree map, since driving deletes completed nodes and
// decrements successors' indegree in place (§4.3's subgraphs are
// re-driven fresh on every scatter iteration, so the original must
// never be mutated).
type workingSet struct {
	nodes    map[graph.NodeID]bool
	indegree map[graph.NodeID]int
}

func cloneSubgraph(sg *graph.Subgraph) workingSet {
	nodes := make(map[graph.NodeID]bool, len(sg.Nodes))
	for id := range sg.Nodes {
		nodes[id] = true
	}
	indegree := make(map[graph.NodeID]int, len(sg.Indegree))
	for id, n := range sg.Indegree {
		indegree[id] = n
	}
	return workingSet{nodes: nodes, indegree: indegree}
}

type completion struct {
	id  graph.NodeID
	err error
}

// driveSubgraph runs ws to completion (§4.4's subgraph driver):
// every node whose indegree is zero is launched immediately: as each
// finishes, its successors' indegree is decremented and any newly
// zero-indegree node is launched in turn. On the first node error the
// shared cancellation token is pulled and no further nodes are
// launched, but every already-launched node is joined before
// returning, so no goroutine outlives the call.
func (d *driver) driveSubgraph(ctx context.Context, ws workingSet, scopeIdx int) error {
	ch := make(chan completion)
	pending := 0
	var firstErr error

	launch := func(id graph.NodeID) {
		pending++
		go func() {
			err := d.runNode(ctx, id, scopeIdx)
			ch <- completion{id: id, err: err}
		}()
	}

	for id := range ws.nodes {
		if ws.indegree[id] == 0 {
			launch(id)
		}
	}

	for pending > 0 {
		c := <-ch
		pending--
		if c.err != nil {
			if firstErr == nil {
				firstErr = c.err
				if d.cancel != nil {
					d.cancel()
				}
			}
			continue
		}
		delete(ws.nodes, c.id)
		if firstErr != nil {
			continue
		}
		for _, succ := range d.graph.Successors(c.id) {
			if !ws.nodes[succ] {
				continue
			}
			ws.indegree[succ]--
			if ws.indegree[succ] == 0 {
				launch(succ)
			}
		}
	}
	return firstErr
}

func (d *driver) runNode(ctx context.Context, id graph.NodeID, scopeIdx int) error {
	n := d.graph.Nodes[id]
	switch n.Kind {
	case graph.KindInput:
		return d.runInput(n.AST.(*ast.InputNode), scopeIdx)
	case graph.KindDecl:
		return d.runDecl(n.AST.(*ast.Decl), scopeIdx)
	case graph.KindOutput:
		return d.runOutput(n.AST.(*ast.OutputNode))
	case graph.KindCall:
		return d.runCall(ctx, n.AST.(*ast.Call), scopeIdx)
	case graph.KindConditionalEntry:
		return d.runConditional(ctx, id, n.AST.(*ast.ConditionalEntry), scopeIdx)
	case graph.KindScatterEntry:
		return d.runScatter(ctx, id, n.AST.(*ast.ScatterEntry), scopeIdx)
	case graph.KindConditionalExit, graph.KindScatterExit:
		// The paired entry already bound every name this exit fans
		// out to (§4.3); the exit exists only as a synchronisation
		// point in the parent subgraph.
		return nil
	default:
		return nil
	}
}

func (d *driver) docDir() string {
	return filepath.Dir(d.doc.Path)
}

func (d *driver) runInput(n *ast.InputNode, scopeIdx int) error {
	var v value.Value
	switch {
	case hasSupplied(d.supplied, n.Name):
		cv, err := value.Coerce(d.supplied[n.Name], n.Type, n.Span)
		if err != nil {
			return err
		}
		v = cv
	case n.Default != nil:
		raw, err := eval.Eval(n.Default, d.arena, scopeIdx, d.eval.IO)
		if err != nil {
			return err
		}
		cv, err := value.Coerce(raw, n.Type, n.Span)
		if err != nil {
			return err
		}
		v = cv
	case n.Type.Optional:
		v = value.None(n.Type)
	default:
		return diag.Newf(diag.KindUnknownName, n.Span, "missing required workflow input %q", n.Name)
	}

	ev, err := value.EnsurePathExists(d.eval.Resolver, v, d.docDir(), n.Span)
	if err != nil {
		return err
	}
	d.arena.Insert(scopeIdx, n.Name, ev)
	return nil
}

func hasSupplied(supplied map[string]value.Value, name string) bool {
	_, ok := supplied[name]
	return ok
}

func (d *driver) runDecl(n *ast.Decl, scopeIdx int) error {
	raw, err := eval.Eval(n.Expr, d.arena, scopeIdx, d.eval.IO)
	if err != nil {
		return err
	}
	cv, err := value.Coerce(raw, n.Type, n.Span)
	if err != nil {
		return err
	}
	ev, err := value.EnsurePathExists(d.eval.Resolver, cv, d.docDir(), n.Span)
	if err != nil {
		return err
	}
	d.arena.Insert(scopeIdx, n.Name, ev)
	return nil
}

// runOutput evaluates against the output scope (§4.4): expressions
// there resolve names by walking up to root, since the output scope's
// only parent is root (§3.2). Relative paths are rejected outright
// (empty base dir), per workflow outputs' stricter path rule (§3.1).
func (d *driver) runOutput(n *ast.OutputNode) error {
	raw, err := eval.Eval(n.Expr, d.arena, scope.Output, d.eval.IO)
	if err != nil {
		return err
	}
	cv, err := value.Coerce(raw, n.Type, n.Span)
	if err != nil {
		return err
	}
	ev, err := value.EnsurePathExists(d.eval.Resolver, cv, "", n.Span)
	if err != nil {
		return err
	}
	d.arena.Insert(scope.Output, n.Name, ev)
	return nil
}

func (d *driver) runCall(ctx context.Context, c *ast.Call, scopeIdx int) error {
	if !c.IsTask {
		return diag.Newf(diag.KindRecursiveCall, c.Span,
			"call to workflow %q would recurse into this document; sub-workflow invocation is not supported", c.Callee)
	}
	t, ok := d.doc.Tasks[c.Callee]
	if !ok {
		return diag.Newf(diag.KindUnknownName, c.Span, "unknown task %q", c.Callee)
	}

	id := c.Alias
	if idx := d.arena.ScatterIndex(scopeIdx); idx != "" {
		id = c.Alias + "-" + idx
	}

	cc := task.CallContext{
		Task:        t,
		Call:        c,
		ID:          id,
		CallDir:     filepath.Join(d.callsDir, id),
		TempDir:     d.tmpDir,
		CallerScope: scopeIdx,
	}
	out, err := d.eval.Tasks.EvaluateCall(ctx, cc, d.arena)
	if err != nil {
		return err
	}
	d.arena.Insert(scopeIdx, c.Alias, out)
	return nil
}

// runConditional implements §4.4's Conditional(entry, _) step: the
// predicate is evaluated in the parent scope; on true the body
// subgraph is driven in a fresh child scope and every statically-known
// bound name is copied up; on false each bound name is bound to its
// none-promoted value without driving the body at all.
func (d *driver) runConditional(ctx context.Context, entryID graph.NodeID, n *ast.ConditionalEntry, scopeIdx int) error {
	raw, err := eval.Eval(n.Predicate, d.arena, scopeIdx, d.eval.IO)
	if err != nil {
		return err
	}
	if raw.Type.Kind != value.KindBool {
		return diag.Newf(diag.KindTypeMismatch, n.Span, "if condition must be Boolean, got %s", raw.Type.String())
	}

	if !raw.Bool {
		for _, f := range n.BoundNames {
			d.arena.Insert(scopeIdx, f.Name, noneValue(f.Type))
		}
		return nil
	}

	child := d.arena.Alloc(scopeIdx)
	defer d.arena.Free(child)

	body := d.graph.Subgraphs[entryID]
	if err := d.driveSubgraph(ctx, cloneSubgraph(body), child); err != nil {
		return err
	}
	for _, f := range n.BoundNames {
		v, ok := d.arena.Lookup(child, f.Name)
		if !ok {
			v = noneValue(f.Type)
		}
		d.arena.Insert(scopeIdx, f.Name, v)
	}
	return nil
}

// runScatter implements §4.4's Scatter(entry, _) step: the iterable is
// evaluated once in the parent scope; each element drives its own copy
// of the body subgraph in a scatter-indexed child scope, bounded by a
// join set of MaxScatterConcurrency (further capped by the backend's
// advisory MaxConcurrency, if tighter); every bound name is gathered
// into an array (or a call-outputs-of-arrays for a call-typed name) in
// element order.
func (d *driver) runScatter(ctx context.Context, entryID graph.NodeID, n *ast.ScatterEntry, scopeIdx int) error {
	raw, err := eval.Eval(n.Iterable, d.arena, scopeIdx, d.eval.IO)
	if err != nil {
		return err
	}
	if raw.Type.Kind != value.KindArray {
		return diag.Newf(diag.KindTypeMismatch, n.Span, "scatter iterable must be an Array, got %s", raw.Type.String())
	}
	elems := raw.Array
	if len(elems) == 0 {
		for _, f := range n.BoundNames {
			d.arena.Insert(scopeIdx, f.Name, gatherArray(f.Type, nil))
		}
		return nil
	}

	limit := d.eval.Cfg.MaxScatterConcurrency
	if limit <= 0 || limit > len(elems) {
		limit = len(elems)
	}
	if d.eval.Tasks != nil && d.eval.Tasks.Backend != nil {
		if bc := d.eval.Tasks.Backend.MaxConcurrency(); bc > 0 && int(bc) < limit {
			limit = int(bc)
		}
	}

	body := d.graph.Subgraphs[entryID]
	results := make([]map[string]value.Value, len(elems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, elem := range elems {
		i, elem := i, elem
		g.Go(func() error {
			child := d.arena.AllocScatter(scopeIdx, i)
			defer d.arena.Free(child)
			d.arena.Insert(child, n.LoopVar, elem)

			if err := d.driveSubgraph(gctx, cloneSubgraph(body), child); err != nil {
				return err
			}
			vals := make(map[string]value.Value, len(n.BoundNames))
			for _, f := range n.BoundNames {
				v, ok := d.arena.Lookup(child, f.Name)
				if !ok {
					v = noneValue(f.Type)
				}
				vals[f.Name] = v
			}
			results[i] = vals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, f := range n.BoundNames {
		collected := make([]value.Value, len(results))
		for i, r := range results {
			collected[i] = r[f.Name]
		}
		d.arena.Insert(scopeIdx, f.Name, gatherArray(f.Type, collected))
	}
	return nil
}
