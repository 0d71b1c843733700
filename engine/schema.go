package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// jsonSchemaFor builds a JSON Schema draft-2020 document for a
// workflow's declared input set (§6.2's "unknown keys are an error",
// enforced here as additionalProperties: false), grounded on the
// teacher's ParamSchema.ToJSONSchema + jsonschema.Compiler pipeline in
// core/types/validation.go. Structs resolve fields via structs.
func jsonSchemaFor(inputs []ast.Field, structs map[string]*ast.StructDef) map[string]any {
	props := make(map[string]any, len(inputs))
	var required []string
	for _, f := range inputs {
		props[f.Name] = typeSchema(f.Type, structs)
		if !f.Type.Optional && f.Default == nil {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func typeSchema(t value.Type, structs map[string]*ast.StructDef) map[string]any {
	var s map[string]any
	switch t.Kind {
	case value.KindBool:
		s = map[string]any{"type": "boolean"}
	case value.KindInt:
		s = map[string]any{"type": "integer"}
	case value.KindFloat:
		s = map[string]any{"type": "number"}
	case value.KindString, value.KindFile, value.KindDirectory:
		s = map[string]any{"type": "string"}
	case value.KindArray:
		s = map[string]any{"type": "array", "items": typeSchema(*t.Elem, structs)}
	case value.KindMap:
		s = map[string]any{"type": "object", "additionalProperties": typeSchema(*t.Val, structs)}
	case value.KindPair:
		s = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"left":  typeSchema(*t.Left, structs),
				"right": typeSchema(*t.Right, structs),
			},
			"required": []string{"left", "right"},
		}
	case value.KindStruct:
		if def, ok := structs[t.StructName]; ok {
			fieldProps := make(map[string]any, len(def.Fields))
			var req []string
			for _, f := range def.Fields {
				fieldProps[f.Name] = typeSchema(f.Type, structs)
				if !f.Type.Optional && f.Default == nil {
					req = append(req, f.Name)
				}
			}
			s = map[string]any{"type": "object", "properties": fieldProps}
			if len(req) > 0 {
				s["required"] = req
			}
			break
		}
		s = map[string]any{"type": "object"}
	default:
		// Object and CallOutputs carry no fixed schema at the input
		// boundary; accept any JSON object.
		s = map[string]any{"type": "object"}
	}
	if t.Optional {
		return map[string]any{"anyOf": []any{map[string]any{"type": "null"}, s}}
	}
	return s
}

// compileInputSchema compiles the workflow's input schema once per run.
func compileInputSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal input schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := "schema://inputs.json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("engine: add input schema resource: %w", err)
	}
	return compiler.Compile(url)
}

// validateInputsJSON validates the raw decoded inputs.json document
// against the workflow's input schema before a single value is bound
// (§6.2), surfacing schema violations as a diagnostic rather than
// letting them fall through to per-field coercion errors deep inside
// the evaluator.
func validateInputsJSON(wf *ast.Workflow, structs map[string]*ast.StructDef, raw map[string]any) error {
	schema := jsonSchemaFor(wf.Inputs, structs)
	compiled, err := compileInputSchema(schema)
	if err != nil {
		return diag.Wrap(diag.KindIO, wf.Span, "engine: compile input schema", err)
	}
	if err := compiled.Validate(raw); err != nil {
		return diag.Wrap(diag.KindCoercionFailure, wf.Span, "inputs.json failed schema validation", err)
	}
	return nil
}
