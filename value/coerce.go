package value

import (
	"github.com/oakflow-dev/oakflow/diag"
)

// Coerce converts v to target per the published lattice (§3.1):
//
//	Int -> Float
//	File -> String, Directory -> String, String -> File, String -> Directory
//	T -> T? (non-optional -> optional)
//	None -> T? for any T
//	Array[S] -> Array[T] when S -> T
//	Map[K1,V1] -> Map[K2,V2] when K1 -> K2 and V1 -> V2
//	Pair[L1,R1] -> Pair[L2,R2] when L1 -> L2 and R1 -> R2
//
// Coercion is total per this lattice: anything not covered is a
// diag.Diagnostic carrying both the source and target type (§3.1).
func Coerce(v Value, target Type, span diag.Span) (Value, error) {
	if v.IsNone {
		if !target.Optional {
			return Value{}, mismatch(v.Type, target, span)
		}
		return None(target), nil
	}

	if v.Type.Equal(target) {
		r := v
		r.Type.Optional = target.Optional
		return r, nil
	}

	switch {
	case v.Type.Kind == KindInt && target.Kind == KindFloat:
		return NewFloatOptional(float64(v.Int), target.Optional), nil
	case (v.Type.Kind == KindFile || v.Type.Kind == KindDirectory) && target.Kind == KindString:
		r := NewString(v.Str)
		r.Type.Optional = target.Optional
		return r, nil
	case v.Type.Kind == KindString && target.Kind == KindFile:
		r := NewFile(v.Str)
		r.Type.Optional = target.Optional
		return r, nil
	case v.Type.Kind == KindString && target.Kind == KindDirectory:
		r := NewDirectory(v.Str)
		r.Type.Optional = target.Optional
		return r, nil
	case v.Type.Kind == KindArray && target.Kind == KindArray:
		out := make([]Value, len(v.Array))
		for i, e := range v.Array {
			ce, err := Coerce(e, *target.Elem, span)
			if err != nil {
				return Value{}, err
			}
			out[i] = ce
		}
		r := NewArray(*target.Elem, out)
		r.Type.Optional = target.Optional
		return r, nil
	case v.Type.Kind == KindMap && target.Kind == KindMap:
		keys := make([]Value, len(v.MapKeys))
		vals := make([]Value, len(v.MapVals))
		for i := range v.MapKeys {
			ck, err := Coerce(v.MapKeys[i], *target.Key, span)
			if err != nil {
				return Value{}, err
			}
			cv, err := Coerce(v.MapVals[i], *target.Val, span)
			if err != nil {
				return Value{}, err
			}
			keys[i], vals[i] = ck, cv
		}
		r := NewMap(*target.Key, *target.Val, keys, vals)
		r.Type.Optional = target.Optional
		return r, nil
	case v.Type.Kind == KindPair && target.Kind == KindPair:
		cl, err := Coerce(*v.PairLeft, *target.Left, span)
		if err != nil {
			return Value{}, err
		}
		cr, err := Coerce(*v.PairRight, *target.Right, span)
		if err != nil {
			return Value{}, err
		}
		r := NewPair(cl, cr)
		r.Type.Optional = target.Optional
		return r, nil
	case v.Type.Kind == KindCallOutputs && target.Kind == KindCallOutputs:
		// Same callee, optionality widening only (conditional promotion).
		if v.Type.CalleeName == target.CalleeName {
			r := v
			r.Type = target
			return r, nil
		}
		return Value{}, mismatch(v.Type, target, span)
	case !v.Type.Optional && target.Optional && v.Type.Kind == target.Kind:
		r := v
		r.Type.Optional = true
		return r, nil
	default:
		return Value{}, mismatch(v.Type, target, span)
	}
}

func NewFloatOptional(f float64, optional bool) Value {
	v := NewFloat(f)
	v.Type.Optional = optional
	return v
}

func mismatch(from, to Type, span diag.Span) *diag.Diagnostic {
	return diag.Newf(diag.KindCoercionFailure, span,
		"cannot coerce %s to %s", from.String(), to.String())
}

// EqualOrNone implements the "== and != between an optional and None
// are defined" clause of §4.1.
func EqualOrNone(a, b Value) (bool, error) {
	if a.IsNone || b.IsNone {
		return a.IsNone == b.IsNone, nil
	}
	return Equal(a, b), nil
}
