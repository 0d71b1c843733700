package ast

import "github.com/oakflow-dev/oakflow/diag"

// Expr is an expression node; eval.Eval consumes these against a
// scope to produce a value.Value (§4.1).
type Expr interface {
	expr()
	ExprSpan() diag.Span
}

// IntLiteral carries the raw text so the evaluator can apply the
// documented integer literal grammar (decimal/hex/octal, i64 bounds) at
// evaluation time rather than parse time, per §4.1 and scenario §8.5.
type IntLiteral struct {
	Raw  string
	Span diag.Span
}

func (*IntLiteral) expr()                {}
func (e *IntLiteral) ExprSpan() diag.Span { return e.Span }

type FloatLiteral struct {
	Value float64
	Span  diag.Span
}

func (*FloatLiteral) expr()                {}
func (e *FloatLiteral) ExprSpan() diag.Span { return e.Span }

type BoolLiteral struct {
	Value bool
	Span  diag.Span
}

func (*BoolLiteral) expr()                {}
func (e *BoolLiteral) ExprSpan() diag.Span { return e.Span }

type NoneLiteral struct {
	Span diag.Span
}

func (*NoneLiteral) expr()                {}
func (e *NoneLiteral) ExprSpan() diag.Span { return e.Span }

// StringLiteral is an interpolated, possibly multi-line, string. Raw
// holds the unprocessed source text (including the `<<<`/`>>>` or quote
// delimiters) and is not read by the evaluator; Parts holds the literal
// runs and placeholders, which the evaluator dedents and interpolates
// at evaluation time, mirroring the teacher's StringLiteral.Parts model.
type StringLiteral struct {
	Raw       string
	MultiLine bool
	Parts     []StringPart
	Span      diag.Span
}

func (*StringLiteral) expr()                {}
func (e *StringLiteral) ExprSpan() diag.Span { return e.Span }

// StringPart is literal text or an interpolation placeholder with
// option modifiers (sep/default/true-false), per §4.1.
type StringPart struct {
	Literal string
	Expr    Expr // nil when Literal is set
	Sep     string
	Default Expr
	IfTrue  string
	IfFalse string
}

// Ident references a name bound in the enclosing scope chain.
type Ident struct {
	Name string
	Span diag.Span
}

func (*Ident) expr()                {}
func (e *Ident) ExprSpan() diag.Span { return e.Span }

// MemberAccess reads a field off an object/struct/call-outputs value,
// e.g. `t.y`.
type MemberAccess struct {
	Target Expr
	Field  string
	Span   diag.Span
}

func (*MemberAccess) expr()                {}
func (e *MemberAccess) ExprSpan() diag.Span { return e.Span }

// IndexAccess reads an array element or map value.
type IndexAccess struct {
	Target Expr
	Index  Expr
	Span   diag.Span
}

func (*IndexAccess) expr()                {}
func (e *IndexAccess) ExprSpan() diag.Span { return e.Span }

// BinaryOp is a standard arithmetic/comparison/logical operator.
type BinaryOp struct {
	Op    string // "+","-","*","/","%","==","!=","<","<=",">",">=","&&","||"
	Left  Expr
	Right Expr
	Span  diag.Span
}

func (*BinaryOp) expr()                {}
func (e *BinaryOp) ExprSpan() diag.Span { return e.Span }

// UnaryOp is negation or logical not.
type UnaryOp struct {
	Op      string // "-","!"
	Operand Expr
	Span    diag.Span
}

func (*UnaryOp) expr()                {}
func (e *UnaryOp) ExprSpan() diag.Span { return e.Span }

// ArrayLiteral constructs an Array value.
type ArrayLiteral struct {
	Elements []Expr
	Span     diag.Span
}

func (*ArrayLiteral) expr()                {}
func (e *ArrayLiteral) ExprSpan() diag.Span { return e.Span }

// MapLiteral constructs an insertion-ordered Map value.
type MapLiteral struct {
	Keys   []Expr
	Values []Expr
	Span   diag.Span
}

func (*MapLiteral) expr()                {}
func (e *MapLiteral) ExprSpan() diag.Span { return e.Span }

// PairLiteral constructs a Pair(L, R) value.
type PairLiteral struct {
	Left  Expr
	Right Expr
	Span  diag.Span
}

func (*PairLiteral) expr()                {}
func (e *PairLiteral) ExprSpan() diag.Span { return e.Span }

// ObjectLiteral constructs an untyped Object value.
type ObjectLiteral struct {
	Names  []string
	Values []Expr
	Span   diag.Span
}

func (*ObjectLiteral) expr()                {}
func (e *ObjectLiteral) ExprSpan() diag.Span { return e.Span }

// CallExpr is a built-in function call, dispatched by name (§4.1, §9).
type CallExpr struct {
	Name string
	Args []Expr
	Span diag.Span
}

func (*CallExpr) expr()                {}
func (e *CallExpr) ExprSpan() diag.Span { return e.Span }

// Ternary is `if cond then a else b`.
type Ternary struct {
	Cond, Then, Else Expr
	Span             diag.Span
}

func (*Ternary) expr()                {}
func (e *Ternary) ExprSpan() diag.Span { return e.Span }
