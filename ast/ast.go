// Package ast defines the typed contract the evaluator walks. The
// lexer, parser and lossless syntax tree that produce these nodes, and
// the static analyser that resolves name tables and type-checks them,
// are out of scope (§1): this package only pins down the shapes the
// rest of the engine depends on, the way a hand-written fixture would
// for a component whose real producer is external.
package ast

import (
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
)

// LanguageVersion is an ordered enum of supported document versions (§6.1).
type LanguageVersion int

const (
	VersionUnknown LanguageVersion = iota
	Version1_0
	Version1_1
	Version1_2
)

func (v LanguageVersion) String() string {
	switch v {
	case Version1_0:
		return "1.0"
	case Version1_1:
		return "1.1"
	case Version1_2:
		return "1.2"
	default:
		return "unknown"
	}
}

// Document is the root of a parsed workflow document.
type Document struct {
	Version   LanguageVersion
	Path      string
	Workflow  *Workflow
	Tasks     map[string]*Task
	Structs   map[string]*StructDef
	Span      diag.Span
}

// StructDef is a named schema for value.KindStruct fields (§3.1).
type StructDef struct {
	Name   string
	Fields []Field
	Span   diag.Span
}

// Field is a named, typed member of a struct or an input/output block.
type Field struct {
	Name    string
	Type    value.Type
	Default Expr // nil if no default
	Span    diag.Span
}

// Workflow is the top-level dataflow document body.
type Workflow struct {
	Name    string
	Inputs  []Field
	Body    []Node
	Outputs []Field
	Span    diag.Span
}

// Task is a parameterised shell command with declared resources.
type Task struct {
	Name         string
	Inputs       []Field
	Privates     []Decl
	Command      *CommandTemplate
	Outputs      []Field
	Requirements *RequirementsBlock
	Hints        *HintsBlock
	Span         diag.Span
}

// CommandTemplate is a shell script with ${placeholder} interpolation
// points; it is rendered to bytes by the task evaluator (§4.5 step 4).
type CommandTemplate struct {
	Parts []CommandPart
	Span  diag.Span
}

// CommandPart is literal text or a placeholder expression.
type CommandPart struct {
	Literal     string
	Placeholder Expr // nil when Literal is set
}

// RequirementsBlock is the hard-constraint block of a task (§3.4).
type RequirementsBlock struct {
	Container  Expr
	CPU        Expr
	Memory     Expr
	GPU        Expr
	FPGA       Expr
	Disks      Expr
	MaxRetries Expr
	Span       diag.Span
}

// HintsBlock is the advisory-knob block of a task (§3.4).
type HintsBlock struct {
	Preemptible Expr
	MaxCPU      Expr
	MaxMemory   Expr
	Cacheable   Expr
	ShortTask   Expr
	Span        diag.Span
}

// Node is one member of the dataflow graph: an input, a private
// declaration, an output, a call, or the entry/exit markers of a
// conditional/scatter body (§3.3).
type Node interface {
	node()
	NodeSpan() diag.Span
}

// InputNode resolves a workflow input from supplied inputs or a default.
type InputNode struct {
	Name    string
	Type    value.Type
	Default Expr // nil if required
	Span    diag.Span
}

func (*InputNode) node()                  {}
func (n *InputNode) NodeSpan() diag.Span  { return n.Span }

// Decl is a private intermediate declaration.
type Decl struct {
	Name string
	Type value.Type
	Expr Expr
	Span diag.Span
}

func (*Decl) node()                 {}
func (n *Decl) NodeSpan() diag.Span { return n.Span }

// OutputNode binds one workflow output name.
type OutputNode struct {
	Name string
	Type value.Type
	Expr Expr
	Span diag.Span
}

func (*OutputNode) node()                 {}
func (n *OutputNode) NodeSpan() diag.Span { return n.Span }

// Call binds argument expressions to a task's or a sub-workflow's inputs.
type Call struct {
	Alias    string
	Callee   string // task or workflow name
	IsTask   bool
	Args     map[string]Expr
	Span     diag.Span
}

func (*Call) node()                 {}
func (n *Call) NodeSpan() diag.Span { return n.Span }

// ConditionalEntry/ConditionalExit bracket an `if` body (§3.3).
type ConditionalEntry struct {
	Predicate Expr
	Body      []Node
	// BoundNames lists the names statically known to be bound by Body,
	// used to promote them to optional/None when the predicate is false.
	BoundNames []Field
	Span       diag.Span
}

func (*ConditionalEntry) node()                 {}
func (n *ConditionalEntry) NodeSpan() diag.Span { return n.Span }

type ConditionalExit struct {
	Entry *ConditionalEntry
	Span  diag.Span
}

func (*ConditionalExit) node()                 {}
func (n *ConditionalExit) NodeSpan() diag.Span { return n.Span }

// ScatterEntry/ScatterExit bracket a `scatter` body (§3.3).
type ScatterEntry struct {
	LoopVar  string
	Iterable Expr
	Body     []Node
	BoundNames []Field
	Span     diag.Span
}

func (*ScatterEntry) node()                 {}
func (n *ScatterEntry) NodeSpan() diag.Span { return n.Span }

type ScatterExit struct {
	Entry *ScatterEntry
	Span  diag.Span
}

func (*ScatterExit) node()                 {}
func (n *ScatterExit) NodeSpan() diag.Span { return n.Span }
