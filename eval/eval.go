// Package eval implements the expression evaluator of §4.1: a pure
// function from an AST expression and a scope to a value.Value, plus
// the string-interpolation and built-in dispatch machinery it needs.
package eval

import (
	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
)

// placeholderSentinel stands in for one interpolation placeholder while
// the surrounding literal text is dedented, so a placeholder occupies
// exactly one rune of line-width without contributing to the common
// leading-whitespace computation (§4.1).
const placeholderSentinel = '\x00'

// Eval evaluates e against scope index idx in arena a. io supplies the
// read_*/write_*/size built-ins their filesystem access; it may be nil
// if e is statically known not to invoke one.
func Eval(e ast.Expr, a *scope.Arena, idx int, io IO) (value.Value, error) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		i, err := EvalIntLiteral(n)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(i), nil

	case *ast.FloatLiteral:
		return value.NewFloat(n.Value), nil

	case *ast.BoolLiteral:
		return value.NewBool(n.Value), nil

	case *ast.NoneLiteral:
		return value.None(value.Bool()), nil

	case *ast.StringLiteral:
		return evalStringLiteral(n, a, idx, io)

	case *ast.Ident:
		v, ok := a.Lookup(idx, n.Name)
		if !ok {
			return value.Value{}, diag.Newf(diag.KindUnknownName, n.Span, "unknown name %q", n.Name)
		}
		return v, nil

	case *ast.MemberAccess:
		target, err := Eval(n.Target, a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		v, ok := target.Field(n.Field)
		if !ok {
			return value.Value{}, diag.Newf(diag.KindUnknownName, n.Span, "no field %q on %s", n.Field, target.Type.String())
		}
		return v, nil

	case *ast.IndexAccess:
		return evalIndexAccess(n, a, idx, io)

	case *ast.UnaryOp:
		return evalUnaryOp(n, a, idx, io)

	case *ast.BinaryOp:
		return evalBinaryOp(n, a, idx, io)

	case *ast.ArrayLiteral:
		return evalArrayLiteral(n, a, idx, io)

	case *ast.MapLiteral:
		return evalMapLiteral(n, a, idx, io)

	case *ast.PairLiteral:
		l, err := Eval(n.Left, a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		r, err := Eval(n.Right, a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewPair(l, r), nil

	case *ast.ObjectLiteral:
		vals := make([]value.Value, len(n.Values))
		for i, ve := range n.Values {
			v, err := Eval(ve, a, idx, io)
			if err != nil {
				return value.Value{}, err
			}
			vals[i] = v
		}
		return value.NewObject(append([]string{}, n.Names...), vals), nil

	case *ast.CallExpr:
		args := make([]value.Value, len(n.Args))
		for i, ae := range n.Args {
			v, err := Eval(ae, a, idx, io)
			if err != nil {
				return value.Value{}, err
			}
			args[i] = v
		}
		return CallBuiltin(n.Name, args, n.Span, io)

	case *ast.Ternary:
		cond, err := Eval(n.Cond, a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		if cond.Type.Kind != value.KindBool {
			return value.Value{}, diag.Newf(diag.KindTypeMismatch, n.Span, "ternary condition must be Boolean")
		}
		if cond.Bool {
			return Eval(n.Then, a, idx, io)
		}
		return Eval(n.Else, a, idx, io)

	default:
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, e.ExprSpan(), "unsupported expression node")
	}
}

func evalIndexAccess(n *ast.IndexAccess, a *scope.Arena, idx int, io IO) (value.Value, error) {
	target, err := Eval(n.Target, a, idx, io)
	if err != nil {
		return value.Value{}, err
	}
	index, err := Eval(n.Index, a, idx, io)
	if err != nil {
		return value.Value{}, err
	}
	switch target.Type.Kind {
	case value.KindArray:
		if index.Type.Kind != value.KindInt {
			return value.Value{}, diag.Newf(diag.KindTypeMismatch, n.Span, "array index must be Int")
		}
		if index.Int < 0 || int(index.Int) >= len(target.Array) {
			return value.Value{}, diag.Newf(diag.KindNumericOutOfRange, n.Span, "array index %d out of range", index.Int)
		}
		return target.Array[index.Int], nil
	case value.KindMap:
		for i, k := range target.MapKeys {
			if value.Equal(k, index) {
				return target.MapVals[i], nil
			}
		}
		return value.Value{}, diag.Newf(diag.KindUnknownName, n.Span, "key not found in map")
	default:
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, n.Span, "cannot index %s", target.Type.String())
	}
}

func evalArrayLiteral(n *ast.ArrayLiteral, a *scope.Arena, idx int, io IO) (value.Value, error) {
	elems := make([]value.Value, len(n.Elements))
	for i, e := range n.Elements {
		v, err := Eval(e, a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		elems[i] = v
	}
	elemType := value.Bool()
	if len(elems) > 0 {
		elemType = elems[0].Type
	}
	return value.NewArray(elemType, elems), nil
}

func evalMapLiteral(n *ast.MapLiteral, a *scope.Arena, idx int, io IO) (value.Value, error) {
	keys := make([]value.Value, len(n.Keys))
	vals := make([]value.Value, len(n.Values))
	for i := range n.Keys {
		k, err := Eval(n.Keys[i], a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		v, err := Eval(n.Values[i], a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		keys[i], vals[i] = k, v
	}
	keyType, valType := value.String(), value.Bool()
	if len(keys) > 0 {
		keyType, valType = keys[0].Type, vals[0].Type
	}
	return value.NewMap(keyType, valType, keys, vals), nil
}

func evalUnaryOp(n *ast.UnaryOp, a *scope.Arena, idx int, io IO) (value.Value, error) {
	if n.Op == "-" {
		if lit, ok := n.Operand.(*ast.IntLiteral); ok {
			i, err := EvalNegatedIntLiteral(lit)
			if err != nil {
				return value.Value{}, err
			}
			return value.NewInt(i), nil
		}
	}
	v, err := Eval(n.Operand, a, idx, io)
	if err != nil {
		return value.Value{}, err
	}
	switch n.Op {
	case "-":
		switch v.Type.Kind {
		case value.KindInt:
			if v.Int == -9223372036854775808 {
				return value.Value{}, diag.Newf(diag.KindNumericOutOfRange, n.Span, "negation overflows Int")
			}
			return value.NewInt(-v.Int), nil
		case value.KindFloat:
			return value.NewFloat(-v.Float), nil
		}
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, n.Span, "unary - requires numeric operand")
	case "!":
		if v.Type.Kind != value.KindBool {
			return value.Value{}, diag.Newf(diag.KindTypeMismatch, n.Span, "unary ! requires Boolean operand")
		}
		return value.NewBool(!v.Bool), nil
	default:
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, n.Span, "unknown unary operator %q", n.Op)
	}
}
