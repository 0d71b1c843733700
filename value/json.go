package value

import (
	"fmt"
	"sort"

	"github.com/oakflow-dev/oakflow/diag"
)

// StructResolver looks up a named struct's field schema, needed to
// decode a JSON object into a Struct-typed Value (§6.2): the document's
// StructDef table, adapted away from an ast dependency so this package
// stays upstream of ast.
type StructResolver func(name string) ([]Field, bool)

// ToJSON converts v to a plain JSON-marshalable Go value (bool, int64,
// float64, string, []any, map[string]any, or nil for None), the shape
// written to inputs.json/outputs.json (§6.2). A Pair becomes
// {"left":…, "right":…}; there is no WDL-standard JSON shape for Pair,
// so this is this engine's own convention (see DESIGN.md).
func ToJSON(v Value) (any, error) {
	if v.IsNone {
		return nil, nil
	}
	switch v.Type.Kind {
	case KindBool:
		return v.Bool, nil
	case KindInt:
		return v.Int, nil
	case KindFloat:
		return v.Float, nil
	case KindString, KindFile, KindDirectory:
		return v.Str, nil
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			j, err := ToJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case KindMap:
		out := make(map[string]any, len(v.MapKeys))
		for i, k := range v.MapKeys {
			if k.Type.Kind != KindString {
				return nil, fmt.Errorf("value: JSON map keys must be String, got %s", k.Type.String())
			}
			j, err := ToJSON(v.MapVals[i])
			if err != nil {
				return nil, err
			}
			out[k.Str] = j
		}
		return out, nil
	case KindPair:
		l, err := ToJSON(*v.PairLeft)
		if err != nil {
			return nil, err
		}
		r, err := ToJSON(*v.PairRight)
		if err != nil {
			return nil, err
		}
		return map[string]any{"left": l, "right": r}, nil
	case KindObject, KindStruct, KindCallOutputs:
		out := make(map[string]any, len(v.FieldNames))
		for i, n := range v.FieldNames {
			j, err := ToJSON(v.FieldValues[i])
			if err != nil {
				return nil, err
			}
			out[n] = j
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: cannot convert %s to JSON", v.Type.String())
	}
}

// FromJSON decodes a value produced by encoding/json's default
// unmarshalling (json.Number not enabled: numbers arrive as float64)
// into target, applying §6.2's "numbers map to integer or float based
// on the declared type" rule and the path-existence rules are left to
// a later EnsurePathExists pass by the caller.
func FromJSON(raw any, target Type, resolve StructResolver, span diag.Span) (Value, error) {
	if raw == nil {
		if !target.Optional {
			return Value{}, diag.Newf(diag.KindCoercionFailure, span, "missing value for required %s", target.String())
		}
		return None(target), nil
	}

	switch target.Kind {
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		return withOptional(NewBool(b), target.Optional), nil

	case KindInt:
		f, ok := raw.(float64)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		return withOptional(NewInt(int64(f)), target.Optional), nil

	case KindFloat:
		f, ok := raw.(float64)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		return withOptional(NewFloat(f), target.Optional), nil

	case KindString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		return withOptional(NewString(s), target.Optional), nil

	case KindFile:
		s, ok := raw.(string)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		return withOptional(NewFile(s), target.Optional), nil

	case KindDirectory:
		s, ok := raw.(string)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		return withOptional(NewDirectory(s), target.Optional), nil

	case KindArray:
		arr, ok := raw.([]any)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		elems := make([]Value, len(arr))
		for i, e := range arr {
			ev, err := FromJSON(e, *target.Elem, resolve, span)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return withOptional(NewArray(*target.Elem, elems), target.Optional), nil

	case KindMap:
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		names := make([]string, 0, len(m))
		for n := range m {
			names = append(names, n)
		}
		sort.Strings(names)
		keys := make([]Value, len(names))
		vals := make([]Value, len(names))
		for i, n := range names {
			vv, err := FromJSON(m[n], *target.Val, resolve, span)
			if err != nil {
				return Value{}, err
			}
			keys[i] = NewString(n)
			vals[i] = vv
		}
		return withOptional(NewMap(*target.Key, *target.Val, keys, vals), target.Optional), nil

	case KindPair:
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		l, err := FromJSON(m["left"], *target.Left, resolve, span)
		if err != nil {
			return Value{}, err
		}
		r, err := FromJSON(m["right"], *target.Right, resolve, span)
		if err != nil {
			return Value{}, err
		}
		return withOptional(NewPair(l, r), target.Optional), nil

	case KindStruct:
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		fields, ok := resolve(target.StructName)
		if !ok {
			return Value{}, diag.Newf(diag.KindUnknownName, span, "unknown struct %q", target.StructName)
		}
		names := make([]string, len(fields))
		vals := make([]Value, len(fields))
		for i, f := range fields {
			fv, err := FromJSON(m[f.Name], f.Type, resolve, span)
			if err != nil {
				return Value{}, err
			}
			names[i], vals[i] = f.Name, fv
		}
		return withOptional(NewStruct(target.StructName, names, vals), target.Optional), nil

	case KindObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, jsonTypeErr(raw, target, span)
		}
		names := make([]string, 0, len(m))
		for n := range m {
			names = append(names, n)
		}
		sort.Strings(names)
		vals := make([]Value, len(names))
		for i, n := range names {
			// An untyped Object field's JSON shape only tells us its
			// kind, not a declared element type; scalars and nested
			// objects decode structurally, arrays default to Boolean
			// element type same as evalArrayLiteral's empty-array case.
			vv, err := fromJSONUntyped(m[n], span)
			if err != nil {
				return Value{}, err
			}
			vals[i] = vv
		}
		return withOptional(NewObject(names, vals), target.Optional), nil

	default:
		return Value{}, diag.Newf(diag.KindCoercionFailure, span, "cannot decode JSON into %s", target.String())
	}
}

func fromJSONUntyped(raw any, span diag.Span) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return None(Bool()), nil
	case bool:
		return NewBool(x), nil
	case float64:
		return NewFloat(x), nil
	case string:
		return NewString(x), nil
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			ev, err := fromJSONUntyped(e, span)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		elemType := Bool()
		if len(elems) > 0 {
			elemType = elems[0].Type
		}
		return NewArray(elemType, elems), nil
	case map[string]any:
		names := make([]string, 0, len(x))
		for n := range x {
			names = append(names, n)
		}
		sort.Strings(names)
		vals := make([]Value, len(names))
		for i, n := range names {
			vv, err := fromJSONUntyped(x[n], span)
			if err != nil {
				return Value{}, err
			}
			vals[i] = vv
		}
		return NewObject(names, vals), nil
	default:
		return Value{}, diag.Newf(diag.KindCoercionFailure, span, "unsupported JSON value of type %T", raw)
	}
}

func withOptional(v Value, optional bool) Value {
	v.Type.Optional = optional
	return v
}

func jsonTypeErr(raw any, target Type, span diag.Span) error {
	return diag.Newf(diag.KindCoercionFailure, span, "JSON value %v is not a %s", raw, target.String())
}
