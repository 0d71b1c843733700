package graph

import (
	"testing"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSplitsScatterBody(t *testing.T) {
	iterable := &ast.ArrayLiteral{Elements: []ast.Expr{
		&ast.IntLiteral{Raw: "1"}, &ast.IntLiteral{Raw: "2"}, &ast.IntLiteral{Raw: "3"},
	}}
	call := &ast.Call{Alias: "t", Callee: "t", IsTask: true, Args: map[string]ast.Expr{
		"n": &ast.Ident{Name: "i"},
	}}
	scatter := &ast.ScatterEntry{
		LoopVar:  "i",
		Iterable: iterable,
		Body:     []ast.Node{call},
		BoundNames: []ast.Field{{Name: "t"}},
	}
	out := &ast.OutputNode{Name: "r", Expr: &ast.MemberAccess{Target: &ast.Ident{Name: "t"}, Field: "y"}}

	g := Build([]ast.Node{scatter, out}, nil)

	require.Len(t, g.Root.Nodes, 3) // scatter entry, scatter exit, output
	var entryID NodeID
	for id, n := range g.Nodes {
		if n.Kind == KindScatterEntry {
			entryID = id
		}
	}
	body, ok := g.Subgraphs[entryID]
	require.True(t, ok)
	assert.Len(t, body.Nodes, 1) // the call
}

func TestBuildWiresDeclToOutputEdge(t *testing.T) {
	decl := &ast.Decl{Name: "x", Expr: &ast.IntLiteral{Raw: "1"}}
	out := &ast.OutputNode{Name: "y", Expr: &ast.Ident{Name: "x"}}
	g := Build([]ast.Node{decl, out}, nil)

	var declID, outID NodeID
	for id, n := range g.Nodes {
		switch n.Kind {
		case KindDecl:
			declID = id
		case KindOutput:
			outID = id
		}
	}
	assert.Equal(t, 1, g.Root.Indegree[outID])
	assert.Contains(t, g.Successors(declID), outID)
}

func TestBuildSkipsEdgeForSuppliedInputDefault(t *testing.T) {
	input := &ast.InputNode{Name: "cond", Default: &ast.BoolLiteral{Value: true}}
	g := Build([]ast.Node{input}, map[string]bool{"cond": true})

	var id NodeID
	for k := range g.Nodes {
		id = k
	}
	assert.Equal(t, 0, g.Root.Indegree[id])
}

func TestConditionalExitIndegreeReducedToOne(t *testing.T) {
	cond := &ast.ConditionalEntry{
		Predicate: &ast.BoolLiteral{Value: true},
		Body: []ast.Node{
			&ast.Decl{Name: "z", Expr: &ast.IntLiteral{Raw: "1"}},
		},
		BoundNames: []ast.Field{{Name: "z"}},
	}
	g := Build([]ast.Node{cond}, nil)

	var exitID NodeID
	for id, n := range g.Nodes {
		if n.Kind == KindConditionalExit {
			exitID = id
		}
	}
	assert.Equal(t, 1, g.Root.Indegree[exitID])
	_ = diag.Span{}
}
