// Package value implements the workflow evaluator's runtime value and
// type model: tagged-union values, the coercion lattice between them,
// and the path-existence invariant applied to file/directory leaves
// (§3.1, §1 item 3).
package value

import "fmt"

// Kind tags the shape of a Type/Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
	KindFile
	KindDirectory
	KindArray
	KindMap
	KindPair
	KindObject
	KindStruct
	KindCallOutputs
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Boolean"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindFile:
		return "File"
	case KindDirectory:
		return "Directory"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindPair:
		return "Pair"
	case KindObject:
		return "Object"
	case KindStruct:
		return "Struct"
	case KindCallOutputs:
		return "CallOutputs"
	default:
		return "Unknown"
	}
}

// Type is the static type of a Value. Optionality is a property of the
// type, not a distinct value kind (§3.1): a value of an optional type
// may carry IsNone=true.
type Type struct {
	Kind Kind
	Optional bool

	// KindArray
	Elem *Type
	// KindMap
	Key, Val *Type
	// KindPair
	Left, Right *Type
	// KindStruct
	StructName string
	// KindCallOutputs: the callee's declared output fields, in order.
	CalleeName string
	Outputs    []Field
}

// Field names one member of a struct schema or a call-outputs bundle.
type Field struct {
	Name string
	Type Type
}

func Bool() Type      { return Type{Kind: KindBool} }
func Int() Type        { return Type{Kind: KindInt} }
func Float() Type      { return Type{Kind: KindFloat} }
func String() Type     { return Type{Kind: KindString} }
func File() Type       { return Type{Kind: KindFile} }
func Directory() Type  { return Type{Kind: KindDirectory} }

func Array(elem Type) Type { return Type{Kind: KindArray, Elem: &elem} }
func Map(key, val Type) Type {
	return Type{Kind: KindMap, Key: &key, Val: &val}
}
func Pair(l, r Type) Type { return Type{Kind: KindPair, Left: &l, Right: &r} }
func Object() Type        { return Type{Kind: KindObject} }
func Struct(name string) Type {
	return Type{Kind: KindStruct, StructName: name}
}
func CallOutputs(callee string, outputs []Field) Type {
	return Type{Kind: KindCallOutputs, CalleeName: callee, Outputs: outputs}
}

// Opt returns t with Optional set, the "non-optional -> optional"
// widening of the coercion lattice applied structurally.
func (t Type) Opt() Type {
	t.Optional = true
	return t
}

// NonOpt returns t with Optional cleared.
func (t Type) NonOpt() Type {
	t.Optional = false
	return t
}

// PromotedOptional is the type produced when a name bound inside a
// conditional body is copied to the enclosing scope and the predicate
// was false (§4.4, invariant 3): every scalar/array/map/pair/object
// type becomes optional; a call-outputs type has each output field's
// type made optional (one level deep), while the call-outputs type
// itself stays non-optional.
func (t Type) PromotedOptional() Type {
	if t.Kind == KindCallOutputs {
		promoted := make([]Field, len(t.Outputs))
		for i, f := range t.Outputs {
			promoted[i] = Field{Name: f.Name, Type: f.Type.Opt()}
		}
		nt := t
		nt.Outputs = promoted
		return nt
	}
	return t.Opt()
}

// PromotedArray is the type produced when a name bound inside a scatter
// body is gathered into the enclosing scope (invariant 4): each output
// field of a call-outputs type becomes an array of the inner type;
// anything else becomes Array(t).
func (t Type) PromotedArray() Type {
	if t.Kind == KindCallOutputs {
		promoted := make([]Field, len(t.Outputs))
		for i, f := range t.Outputs {
			promoted[i] = Field{Name: f.Name, Type: Array(f.Type)}
		}
		nt := t
		nt.Outputs = promoted
		return nt
	}
	return Array(t)
}

func (t Type) String() string {
	s := t.baseString()
	if t.Optional {
		return s + "?"
	}
	return s
}

func (t Type) baseString() string {
	switch t.Kind {
	case KindArray:
		return fmt.Sprintf("Array[%s]", t.Elem.String())
	case KindMap:
		return fmt.Sprintf("Map[%s,%s]", t.Key.String(), t.Val.String())
	case KindPair:
		return fmt.Sprintf("Pair[%s,%s]", t.Left.String(), t.Right.String())
	case KindStruct:
		return t.StructName
	case KindCallOutputs:
		return t.CalleeName + ".outputs"
	default:
		return t.Kind.String()
	}
}

// Equal reports structural type equality, ignoring Optional.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Elem.Equal(*o.Elem)
	case KindMap:
		return t.Key.Equal(*o.Key) && t.Val.Equal(*o.Val)
	case KindPair:
		return t.Left.Equal(*o.Left) && t.Right.Equal(*o.Right)
	case KindStruct:
		return t.StructName == o.StructName
	default:
		return true
	}
}

// IsPath reports whether t is a File or Directory, the kinds subject to
// the path-existence invariant (§1 item 3, §3.1).
func (t Type) IsPath() bool {
	return t.Kind == KindFile || t.Kind == KindDirectory
}
