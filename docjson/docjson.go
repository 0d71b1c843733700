// Package docjson decodes a workflow document from a plain JSON
// encoding into *ast.Document. The lexer/parser that produces an
// ast.Document from source text is out of scope for this engine (the
// ast package's own doc comment: "assumed external"); this package is
// the bridge cmd/oakflow uses in its place, a hand-decodable wire
// format rather than a second parser. Every Expr/Node carries a "kind"
// discriminator naming its concrete ast type.
package docjson

import (
	"encoding/json"
	"fmt"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
)

type kindTag struct {
	Kind string `json:"kind"`
}

// ---- Type ----

type typeWire struct {
	Kind       string      `json:"kind"`
	Optional   bool        `json:"optional,omitempty"`
	Elem       *typeWire   `json:"elem,omitempty"`
	Key        *typeWire   `json:"key,omitempty"`
	Val        *typeWire   `json:"val,omitempty"`
	Left       *typeWire   `json:"left,omitempty"`
	Right      *typeWire   `json:"right,omitempty"`
	StructName string      `json:"structName,omitempty"`
	CalleeName string      `json:"calleeName,omitempty"`
	Outputs    []fieldWire `json:"outputs,omitempty"`
}

type fieldWire struct {
	Name    string          `json:"name"`
	Type    typeWire        `json:"type"`
	Default json.RawMessage `json:"default,omitempty"`
	Span    diag.Span       `json:"span,omitempty"`
}

func decodeType(w typeWire) (value.Type, error) {
	var t value.Type
	switch w.Kind {
	case "Bool", "Boolean":
		t = value.Bool()
	case "Int":
		t = value.Int()
	case "Float":
		t = value.Float()
	case "String":
		t = value.String()
	case "File":
		t = value.File()
	case "Directory":
		t = value.Directory()
	case "Array":
		if w.Elem == nil {
			return value.Type{}, fmt.Errorf("docjson: Array type missing elem")
		}
		elem, err := decodeType(*w.Elem)
		if err != nil {
			return value.Type{}, err
		}
		t = value.Array(elem)
	case "Map":
		if w.Key == nil || w.Val == nil {
			return value.Type{}, fmt.Errorf("docjson: Map type missing key/val")
		}
		k, err := decodeType(*w.Key)
		if err != nil {
			return value.Type{}, err
		}
		v, err := decodeType(*w.Val)
		if err != nil {
			return value.Type{}, err
		}
		t = value.Map(k, v)
	case "Pair":
		if w.Left == nil || w.Right == nil {
			return value.Type{}, fmt.Errorf("docjson: Pair type missing left/right")
		}
		l, err := decodeType(*w.Left)
		if err != nil {
			return value.Type{}, err
		}
		r, err := decodeType(*w.Right)
		if err != nil {
			return value.Type{}, err
		}
		t = value.Pair(l, r)
	case "Object":
		t = value.Object()
	case "Struct":
		t = value.Struct(w.StructName)
	case "CallOutputs":
		fields := make([]value.Field, len(w.Outputs))
		for i, f := range w.Outputs {
			ft, err := decodeType(f.Type)
			if err != nil {
				return value.Type{}, err
			}
			fields[i] = value.Field{Name: f.Name, Type: ft}
		}
		t = value.CallOutputs(w.CalleeName, fields)
	default:
		return value.Type{}, fmt.Errorf("docjson: unknown type kind %q", w.Kind)
	}
	if w.Optional {
		t = t.Opt()
	}
	return t, nil
}

func decodeField(w fieldWire) (ast.Field, error) {
	t, err := decodeType(w.Type)
	if err != nil {
		return ast.Field{}, err
	}
	f := ast.Field{Name: w.Name, Type: t, Span: w.Span}
	if len(w.Default) > 0 {
		d, err := decodeExpr(w.Default)
		if err != nil {
			return ast.Field{}, err
		}
		f.Default = d
	}
	return f, nil
}

func decodeFields(ws []fieldWire) ([]ast.Field, error) {
	out := make([]ast.Field, len(ws))
	for i, w := range ws {
		f, err := decodeField(w)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// ---- Expr ----

func decodeExpr(raw json.RawMessage) (ast.Expr, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var tag kindTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("docjson: decode expr kind: %w", err)
	}

	switch tag.Kind {
	case "IntLiteral":
		var w struct {
			Raw  string
			Span diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &ast.IntLiteral{Raw: w.Raw, Span: w.Span}, nil

	case "FloatLiteral":
		var w struct {
			Value float64
			Span  diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &ast.FloatLiteral{Value: w.Value, Span: w.Span}, nil

	case "BoolLiteral":
		var w struct {
			Value bool
			Span  diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &ast.BoolLiteral{Value: w.Value, Span: w.Span}, nil

	case "NoneLiteral":
		var w struct{ Span diag.Span }
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &ast.NoneLiteral{Span: w.Span}, nil

	case "StringLiteral":
		var w struct {
			Raw       string
			MultiLine bool
			Parts     []stringPartWire
			Span      diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		parts := make([]ast.StringPart, len(w.Parts))
		for i, p := range w.Parts {
			sp, err := decodeStringPart(p)
			if err != nil {
				return nil, err
			}
			parts[i] = sp
		}
		return &ast.StringLiteral{Raw: w.Raw, MultiLine: w.MultiLine, Parts: parts, Span: w.Span}, nil

	case "Ident":
		var w struct {
			Name string
			Span diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &ast.Ident{Name: w.Name, Span: w.Span}, nil

	case "MemberAccess":
		var w struct {
			Target json.RawMessage
			Field  string
			Span   diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		target, err := decodeExpr(w.Target)
		if err != nil {
			return nil, err
		}
		return &ast.MemberAccess{Target: target, Field: w.Field, Span: w.Span}, nil

	case "IndexAccess":
		var w struct {
			Target json.RawMessage
			Index  json.RawMessage
			Span   diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		target, err := decodeExpr(w.Target)
		if err != nil {
			return nil, err
		}
		index, err := decodeExpr(w.Index)
		if err != nil {
			return nil, err
		}
		return &ast.IndexAccess{Target: target, Index: index, Span: w.Span}, nil

	case "BinaryOp":
		var w struct {
			Op    string
			Left  json.RawMessage
			Right json.RawMessage
			Span  diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		l, err := decodeExpr(w.Left)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(w.Right)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: w.Op, Left: l, Right: r, Span: w.Span}, nil

	case "UnaryOp":
		var w struct {
			Op      string
			Operand json.RawMessage
			Span    diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		operand, err := decodeExpr(w.Operand)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: w.Op, Operand: operand, Span: w.Span}, nil

	case "ArrayLiteral":
		var w struct {
			Elements []json.RawMessage
			Span     diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		elems, err := decodeExprs(w.Elements)
		if err != nil {
			return nil, err
		}
		return &ast.ArrayLiteral{Elements: elems, Span: w.Span}, nil

	case "MapLiteral":
		var w struct {
			Keys   []json.RawMessage
			Values []json.RawMessage
			Span   diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		keys, err := decodeExprs(w.Keys)
		if err != nil {
			return nil, err
		}
		vals, err := decodeExprs(w.Values)
		if err != nil {
			return nil, err
		}
		return &ast.MapLiteral{Keys: keys, Values: vals, Span: w.Span}, nil

	case "PairLiteral":
		var w struct {
			Left  json.RawMessage
			Right json.RawMessage
			Span  diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		l, err := decodeExpr(w.Left)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(w.Right)
		if err != nil {
			return nil, err
		}
		return &ast.PairLiteral{Left: l, Right: r, Span: w.Span}, nil

	case "CallExpr":
		var w struct {
			Name string
			Args []json.RawMessage
			Span diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		args, err := decodeExprs(w.Args)
		if err != nil {
			return nil, err
		}
		return &ast.CallExpr{Name: w.Name, Args: args, Span: w.Span}, nil

	case "Ternary":
		var w struct {
			Cond json.RawMessage
			Then json.RawMessage
			Else json.RawMessage
			Span diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		cond, err := decodeExpr(w.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(w.Then)
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(w.Else)
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{Cond: cond, Then: then, Else: els, Span: w.Span}, nil

	case "ObjectLiteral":
		var w struct {
			Names  []string
			Values []json.RawMessage
			Span   diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		vals, err := decodeExprs(w.Values)
		if err != nil {
			return nil, err
		}
		return &ast.ObjectLiteral{Names: w.Names, Values: vals, Span: w.Span}, nil

	default:
		return nil, fmt.Errorf("docjson: unknown expr kind %q", tag.Kind)
	}
}

func decodeExprs(raws []json.RawMessage) ([]ast.Expr, error) {
	out := make([]ast.Expr, len(raws))
	for i, r := range raws {
		e, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

type stringPartWire struct {
	Literal string
	Expr    json.RawMessage
	Sep     string
	Default json.RawMessage
	IfTrue  string
	IfFalse string
}

func decodeStringPart(w stringPartWire) (ast.StringPart, error) {
	e, err := decodeExpr(w.Expr)
	if err != nil {
		return ast.StringPart{}, err
	}
	d, err := decodeExpr(w.Default)
	if err != nil {
		return ast.StringPart{}, err
	}
	return ast.StringPart{
		Literal: w.Literal, Expr: e, Sep: w.Sep, Default: d,
		IfTrue: w.IfTrue, IfFalse: w.IfFalse,
	}, nil
}

// ---- Node ----

func decodeNode(raw json.RawMessage) (ast.Node, error) {
	var tag kindTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("docjson: decode node kind: %w", err)
	}

	switch tag.Kind {
	case "InputNode":
		var w struct {
			Name    string
			Type    typeWire
			Default json.RawMessage
			Span    diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		t, err := decodeType(w.Type)
		if err != nil {
			return nil, err
		}
		def, err := decodeExpr(w.Default)
		if err != nil {
			return nil, err
		}
		return &ast.InputNode{Name: w.Name, Type: t, Default: def, Span: w.Span}, nil

	case "Decl":
		d, err := decodeDecl(raw)
		if err != nil {
			return nil, err
		}
		return &d, nil

	case "OutputNode":
		var w struct {
			Name string
			Type typeWire
			Expr json.RawMessage
			Span diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		t, err := decodeType(w.Type)
		if err != nil {
			return nil, err
		}
		e, err := decodeExpr(w.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.OutputNode{Name: w.Name, Type: t, Expr: e, Span: w.Span}, nil

	case "Call":
		var w struct {
			Alias  string
			Callee string
			IsTask bool
			Args   map[string]json.RawMessage
			Span   diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		args := make(map[string]ast.Expr, len(w.Args))
		for name, r := range w.Args {
			e, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}
			args[name] = e
		}
		return &ast.Call{Alias: w.Alias, Callee: w.Callee, IsTask: w.IsTask, Args: args, Span: w.Span}, nil

	case "ConditionalEntry":
		var w struct {
			Predicate  json.RawMessage
			Body       []json.RawMessage
			BoundNames []fieldWire
			Span       diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		pred, err := decodeExpr(w.Predicate)
		if err != nil {
			return nil, err
		}
		body, err := decodeNodes(w.Body)
		if err != nil {
			return nil, err
		}
		bound, err := decodeFields(w.BoundNames)
		if err != nil {
			return nil, err
		}
		return &ast.ConditionalEntry{Predicate: pred, Body: body, BoundNames: bound, Span: w.Span}, nil

	case "ScatterEntry":
		var w struct {
			LoopVar    string
			Iterable   json.RawMessage
			Body       []json.RawMessage
			BoundNames []fieldWire
			Span       diag.Span
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		iter, err := decodeExpr(w.Iterable)
		if err != nil {
			return nil, err
		}
		body, err := decodeNodes(w.Body)
		if err != nil {
			return nil, err
		}
		bound, err := decodeFields(w.BoundNames)
		if err != nil {
			return nil, err
		}
		return &ast.ScatterEntry{LoopVar: w.LoopVar, Iterable: iter, Body: body, BoundNames: bound, Span: w.Span}, nil

	default:
		return nil, fmt.Errorf("docjson: unknown node kind %q", tag.Kind)
	}
}

func decodeNodes(raws []json.RawMessage) ([]ast.Node, error) {
	out := make([]ast.Node, len(raws))
	for i, r := range raws {
		n, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func decodeDecl(raw json.RawMessage) (ast.Decl, error) {
	var w struct {
		Name string
		Type typeWire
		Expr json.RawMessage
		Span diag.Span
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return ast.Decl{}, err
	}
	t, err := decodeType(w.Type)
	if err != nil {
		return ast.Decl{}, err
	}
	e, err := decodeExpr(w.Expr)
	if err != nil {
		return ast.Decl{}, err
	}
	return ast.Decl{Name: w.Name, Type: t, Expr: e, Span: w.Span}, nil
}

// ---- Task / Workflow / Document ----

type commandPartWire struct {
	Literal     string
	Placeholder json.RawMessage
}

func decodeCommand(w *struct {
	Parts []commandPartWire
	Span  diag.Span
}) (*ast.CommandTemplate, error) {
	if w == nil {
		return nil, nil
	}
	parts := make([]ast.CommandPart, len(w.Parts))
	for i, p := range w.Parts {
		ph, err := decodeExpr(p.Placeholder)
		if err != nil {
			return nil, err
		}
		parts[i] = ast.CommandPart{Literal: p.Literal, Placeholder: ph}
	}
	return &ast.CommandTemplate{Parts: parts, Span: w.Span}, nil
}

type requirementsWire struct {
	Container  json.RawMessage
	CPU        json.RawMessage
	Memory     json.RawMessage
	GPU        json.RawMessage
	FPGA       json.RawMessage
	Disks      json.RawMessage
	MaxRetries json.RawMessage
	Span       diag.Span
}

func decodeRequirements(w *requirementsWire) (*ast.RequirementsBlock, error) {
	if w == nil {
		return nil, nil
	}
	exprs := make([]ast.Expr, 7)
	raws := []json.RawMessage{w.Container, w.CPU, w.Memory, w.GPU, w.FPGA, w.Disks, w.MaxRetries}
	for i, r := range raws {
		e, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return &ast.RequirementsBlock{
		Container: exprs[0], CPU: exprs[1], Memory: exprs[2], GPU: exprs[3],
		FPGA: exprs[4], Disks: exprs[5], MaxRetries: exprs[6], Span: w.Span,
	}, nil
}

type hintsWire struct {
	Preemptible json.RawMessage
	MaxCPU      json.RawMessage
	MaxMemory   json.RawMessage
	Cacheable   json.RawMessage
	ShortTask   json.RawMessage
	Span        diag.Span
}

func decodeHints(w *hintsWire) (*ast.HintsBlock, error) {
	if w == nil {
		return nil, nil
	}
	exprs := make([]ast.Expr, 5)
	raws := []json.RawMessage{w.Preemptible, w.MaxCPU, w.MaxMemory, w.Cacheable, w.ShortTask}
	for i, r := range raws {
		e, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return &ast.HintsBlock{
		Preemptible: exprs[0], MaxCPU: exprs[1], MaxMemory: exprs[2],
		Cacheable: exprs[3], ShortTask: exprs[4], Span: w.Span,
	}, nil
}

type taskWire struct {
	Name   string
	Inputs []fieldWire
	Privates []struct {
		Name string
		Type typeWire
		Expr json.RawMessage
		Span diag.Span
	}
	Command *struct {
		Parts []commandPartWire
		Span  diag.Span
	}
	Outputs      []fieldWire
	Requirements *requirementsWire
	Hints        *hintsWire
	Span         diag.Span
}

func decodeTask(w taskWire) (*ast.Task, error) {
	inputs, err := decodeFields(w.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := decodeFields(w.Outputs)
	if err != nil {
		return nil, err
	}
	privates := make([]ast.Decl, len(w.Privates))
	for i, p := range w.Privates {
		t, err := decodeType(p.Type)
		if err != nil {
			return nil, err
		}
		e, err := decodeExpr(p.Expr)
		if err != nil {
			return nil, err
		}
		privates[i] = ast.Decl{Name: p.Name, Type: t, Expr: e, Span: p.Span}
	}
	command, err := decodeCommand(w.Command)
	if err != nil {
		return nil, err
	}
	reqs, err := decodeRequirements(w.Requirements)
	if err != nil {
		return nil, err
	}
	hints, err := decodeHints(w.Hints)
	if err != nil {
		return nil, err
	}
	return &ast.Task{
		Name: w.Name, Inputs: inputs, Privates: privates, Command: command,
		Outputs: outputs, Requirements: reqs, Hints: hints, Span: w.Span,
	}, nil
}

type workflowWire struct {
	Name    string
	Inputs  []fieldWire
	Body    []json.RawMessage
	Outputs []fieldWire
	Span    diag.Span
}

func decodeWorkflow(w workflowWire) (*ast.Workflow, error) {
	inputs, err := decodeFields(w.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := decodeFields(w.Outputs)
	if err != nil {
		return nil, err
	}
	body, err := decodeNodes(w.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Workflow{Name: w.Name, Inputs: inputs, Body: body, Outputs: outputs, Span: w.Span}, nil
}

type structDefWire struct {
	Name   string
	Fields []fieldWire
	Span   diag.Span
}

func decodeStructDef(w structDefWire) (*ast.StructDef, error) {
	fields, err := decodeFields(w.Fields)
	if err != nil {
		return nil, err
	}
	return &ast.StructDef{Name: w.Name, Fields: fields, Span: w.Span}, nil
}

// documentWire is the top-level on-disk shape: a language version
// string ("1.0"/"1.1"/"1.2"), the document path, one workflow, a
// task-name-keyed map, and a struct-name-keyed map.
type documentWire struct {
	Version string
	Path    string
	Workflow *workflowWire
	Tasks    map[string]taskWire
	Structs  map[string]structDefWire
	Span     diag.Span
}

// UnmarshalDocument decodes data into an *ast.Document.
func UnmarshalDocument(data []byte) (*ast.Document, error) {
	var w documentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("docjson: decode document: %w", err)
	}

	doc := &ast.Document{
		Version: decodeVersion(w.Version),
		Path:    w.Path,
		Span:    w.Span,
		Tasks:   map[string]*ast.Task{},
		Structs: map[string]*ast.StructDef{},
	}

	if w.Workflow != nil {
		wf, err := decodeWorkflow(*w.Workflow)
		if err != nil {
			return nil, err
		}
		doc.Workflow = wf
	}
	for name, tw := range w.Tasks {
		t, err := decodeTask(tw)
		if err != nil {
			return nil, fmt.Errorf("docjson: task %q: %w", name, err)
		}
		doc.Tasks[name] = t
	}
	for name, sw := range w.Structs {
		s, err := decodeStructDef(sw)
		if err != nil {
			return nil, fmt.Errorf("docjson: struct %q: %w", name, err)
		}
		doc.Structs[name] = s
	}
	return doc, nil
}

func decodeVersion(s string) ast.LanguageVersion {
	switch s {
	case "1.0":
		return ast.Version1_0
	case "1.1":
		return ast.Version1_1
	case "1.2":
		return ast.Version1_2
	default:
		return ast.VersionUnknown
	}
}
