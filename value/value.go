package value

// Value is a runtime value tagged with its static Type. Exactly one of
// the kind-specific fields below is meaningful, selected by Type.Kind,
// unless IsNone is set (optionality is a type property, §3.1).
type Value struct {
	Type   Type
	IsNone bool

	Bool  bool
	Int   int64
	Float float64
	// Str backs String, File and Directory values.
	Str string

	Array []Value

	// Map is insertion-ordered; MapKeys/MapVals are parallel slices
	// rather than a Go map so key order survives round-trips.
	MapKeys []Value
	MapVals []Value

	PairLeft, PairRight *Value

	// Object/Struct/CallOutputs all carry an insertion-ordered
	// name->value map; Object and Struct leave Type.Outputs empty,
	// CallOutputs populates it from the callee.
	FieldNames  []string
	FieldValues []Value
}

// None constructs the None value of the given (already-optional) type.
func None(t Type) Value {
	t.Optional = true
	return Value{Type: t, IsNone: true}
}

func NewBool(b bool) Value   { return Value{Type: Bool(), Bool: b} }
func NewInt(i int64) Value    { return Value{Type: Int(), Int: i} }
func NewFloat(f float64) Value { return Value{Type: Float(), Float: f} }
func NewString(s string) Value { return Value{Type: String(), Str: s} }
func NewFile(path string) Value { return Value{Type: File(), Str: path} }
func NewDirectory(path string) Value { return Value{Type: Directory(), Str: path} }

func NewArray(elemType Type, elems []Value) Value {
	return Value{Type: Array(elemType), Array: elems}
}

func NewMap(keyType, valType Type, keys, vals []Value) Value {
	return Value{Type: Map(keyType, valType), MapKeys: keys, MapVals: vals}
}

func NewPair(l, r Value) Value {
	return Value{Type: Pair(l.Type, r.Type), PairLeft: &l, PairRight: &r}
}

func NewObject(names []string, vals []Value) Value {
	return Value{Type: Object(), FieldNames: names, FieldValues: vals}
}

func NewStruct(name string, names []string, vals []Value) Value {
	return Value{Type: Struct(name), FieldNames: names, FieldValues: vals}
}

// NewCallOutputs builds the value carried by a call's invocation result
// (§3.1 "Call-outputs"): tagged with the callee's type so it can pass
// through scatter/conditional and have fields promoted and accessed.
func NewCallOutputs(callee string, fields []Field, names []string, vals []Value) Value {
	return Value{Type: CallOutputs(callee, fields), FieldNames: names, FieldValues: vals}
}

// Field looks up a named field on an Object/Struct/CallOutputs value.
func (v Value) Field(name string) (Value, bool) {
	for i, n := range v.FieldNames {
		if n == name {
			return v.FieldValues[i], true
		}
	}
	return Value{}, false
}

// WithField returns a copy of v with name bound to val (appending if
// new), used to build up Object/Struct/CallOutputs values incrementally.
func (v Value) WithField(name string, val Value) Value {
	for i, n := range v.FieldNames {
		if n == name {
			v.FieldValues[i] = val
			return v
		}
	}
	v.FieldNames = append(append([]string{}, v.FieldNames...), name)
	v.FieldValues = append(append([]Value{}, v.FieldValues...), val)
	return v
}

// Equal is structural equality (§4.1: "equality is structural").
func Equal(a, b Value) bool {
	if a.IsNone || b.IsNone {
		return a.IsNone == b.IsNone
	}
	if a.Type.Kind != b.Type.Kind {
		return false
	}
	switch a.Type.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString, KindFile, KindDirectory:
		return a.Str == b.Str
	case KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.MapKeys) != len(b.MapKeys) {
			return false
		}
		for i := range a.MapKeys {
			if !Equal(a.MapKeys[i], b.MapKeys[i]) || !Equal(a.MapVals[i], b.MapVals[i]) {
				return false
			}
		}
		return true
	case KindPair:
		return Equal(*a.PairLeft, *b.PairLeft) && Equal(*a.PairRight, *b.PairRight)
	case KindObject, KindStruct, KindCallOutputs:
		if len(a.FieldNames) != len(b.FieldNames) {
			return false
		}
		for i, n := range a.FieldNames {
			bv, ok := b.Field(n)
			if !ok || !Equal(a.FieldValues[i], bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
