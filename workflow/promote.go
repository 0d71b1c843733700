package workflow

import "github.com/oakflow-dev/oakflow/value"

// noneValue produces the "none-promoted" value copied into the parent
// scope when a conditional's predicate evaluates false (§4.4 invariant
// 3): a plain value becomes None of its optional-widened type; a
// call-outputs value stays a concrete CallOutputs record (so a later
// `.field` access still resolves) but every one of its output fields
// is itself None of its optional-widened type.
func noneValue(t value.Type) value.Value {
	if t.Kind == value.KindCallOutputs {
		promoted := t.PromotedOptional()
		names := make([]string, len(promoted.Outputs))
		vals := make([]value.Value, len(promoted.Outputs))
		for i, f := range promoted.Outputs {
			names[i] = f.Name
			vals[i] = value.None(f.Type)
		}
		return value.Value{Type: promoted, FieldNames: names, FieldValues: vals}
	}
	return value.None(t.Opt())
}

// gatherArray packs the per-element values that every scatter
// iteration produced for a single bound name into the enclosing scope's gathered
// value (§4.4 invariant 4): a plain value becomes Array(t) of the
// collected elements in iteration order; a call-outputs value becomes
// a call-outputs-of-arrays record, each field gathered independently.
func gatherArray(t value.Type, collected []value.Value) value.Value {
	if t.Kind == value.KindCallOutputs {
		promoted := t.PromotedArray()
		names := make([]string, len(promoted.Outputs))
		vals := make([]value.Value, len(promoted.Outputs))
		for i, f := range promoted.Outputs {
			names[i] = f.Name
			elemType := *f.Type.Elem
			arr := make([]value.Value, len(collected))
			for j, cv := range collected {
				fv, _ := cv.Field(f.Name)
				arr[j] = fv
			}
			vals[i] = value.NewArray(elemType, arr)
		}
		return value.Value{Type: promoted, FieldNames: names, FieldValues: vals}
	}
	arr := make([]value.Value, len(collected))
	copy(arr, collected)
	return value.NewArray(t, arr)
}
