package eval

import (
	"testing"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArenaWith(bindings map[string]value.Value) (*scope.Arena, int) {
	a := scope.NewArena()
	idx := a.Alloc(scope.Root)
	for name, v := range bindings {
		a.Insert(idx, name, v)
	}
	return a, idx
}

func TestEvalIdentLookup(t *testing.T) {
	a, idx := newArenaWith(map[string]value.Value{"x": value.NewInt(5)})
	v, err := Eval(&ast.Ident{Name: "x"}, a, idx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int)
}

func TestEvalUnknownIdentIsDiagnostic(t *testing.T) {
	a, idx := newArenaWith(nil)
	_, err := Eval(&ast.Ident{Name: "missing"}, a, idx, nil)
	require.Error(t, err)
}

func TestEvalIntegerOverflowFails(t *testing.T) {
	a, idx := newArenaWith(nil)
	expr := &ast.BinaryOp{
		Op:    "+",
		Left:  &ast.IntLiteral{Raw: "9223372036854775807"},
		Right: &ast.IntLiteral{Raw: "1"},
	}
	_, err := Eval(expr, a, idx, nil)
	require.Error(t, err)
}

func TestEvalNegatedMinIntDoesNotOverflow(t *testing.T) {
	a, idx := newArenaWith(nil)
	expr := &ast.UnaryOp{Op: "-", Operand: &ast.IntLiteral{Raw: "9223372036854775808"}}
	v, err := Eval(expr, a, idx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), v.Int)
}

func TestEvalBareOverflowMagnitudeFails(t *testing.T) {
	a, idx := newArenaWith(nil)
	_, err := Eval(&ast.IntLiteral{Raw: "9223372036854775808"}, a, idx, nil)
	require.Error(t, err)
}

func TestEvalOptionalEqualsNone(t *testing.T) {
	a, idx := newArenaWith(map[string]value.Value{
		"x": value.None(value.Int()),
	})
	expr := &ast.BinaryOp{Op: "==", Left: &ast.Ident{Name: "x"}, Right: &ast.NoneLiteral{}}
	v, err := Eval(expr, a, idx, nil)
	require.NoError(t, err)
	assert.True(t, v.Bool)
}

func TestEvalStringInterpolationDedented(t *testing.T) {
	a, idx := newArenaWith(nil)
	lit := &ast.StringLiteral{
		MultiLine: true,
		Parts: []ast.StringPart{
			{Literal: "\n    hello  "},
			{Expr: &ast.StringLiteral{Parts: []ast.StringPart{{Literal: "world"}}}},
			{Literal: "\n    "},
		},
	}
	v, err := Eval(lit, a, idx, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello  world", v.Str)
}

func TestEvalDivisionByZero(t *testing.T) {
	a, idx := newArenaWith(nil)
	expr := &ast.BinaryOp{Op: "/", Left: &ast.IntLiteral{Raw: "1"}, Right: &ast.IntLiteral{Raw: "0"}}
	_, err := Eval(expr, a, idx, nil)
	require.Error(t, err)
}

func TestEvalArrayIndexOutOfRange(t *testing.T) {
	a, idx := newArenaWith(nil)
	arr := &ast.ArrayLiteral{Elements: []ast.Expr{&ast.IntLiteral{Raw: "1"}}}
	expr := &ast.IndexAccess{Target: arr, Index: &ast.IntLiteral{Raw: "5"}}
	_, err := Eval(expr, a, idx, nil)
	require.Error(t, err)
}

func TestEvalTernarySelectsBranch(t *testing.T) {
	a, idx := newArenaWith(nil)
	expr := &ast.Ternary{
		Cond: &ast.BoolLiteral{Value: false},
		Then: &ast.IntLiteral{Raw: "1"},
		Else: &ast.IntLiteral{Raw: "2"},
	}
	v, err := Eval(expr, a, idx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Int)
}
