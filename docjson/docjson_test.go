package docjson

import (
	"testing"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetingDoc = `{
  "version": "1.2",
  "path": "/virtual/greeting.wdl",
  "workflow": {
    "name": "greeting",
    "inputs": [{"name": "name", "type": {"kind": "String"}}],
    "body": [
      {"kind": "InputNode", "name": "name", "type": {"kind": "String"}},
      {
        "kind": "Call", "alias": "g", "callee": "greet", "isTask": true,
        "args": {"name": {"kind": "Ident", "name": "name"}}
      },
      {
        "kind": "OutputNode", "name": "greeting", "type": {"kind": "String"},
        "expr": {"kind": "MemberAccess", "target": {"kind": "Ident", "name": "g"}, "field": "greeting"}
      }
    ],
    "outputs": [{"name": "greeting", "type": {"kind": "String"}}]
  },
  "tasks": {
    "greet": {
      "name": "greet",
      "inputs": [{"name": "name", "type": {"kind": "String"}}],
      "command": {"parts": [{"literal": "echo "}, {"placeholder": {"kind": "Ident", "name": "name"}}]},
      "outputs": [
        {"name": "greeting", "type": {"kind": "String"}, "default": {"kind": "Ident", "name": "name"}}
      ]
    }
  }
}`

func TestUnmarshalDocumentDecodesWorkflowAndTask(t *testing.T) {
	doc, err := UnmarshalDocument([]byte(greetingDoc))
	require.NoError(t, err)

	require.NotNil(t, doc.Workflow)
	assert.Equal(t, ast.Version1_2, doc.Version)
	assert.Equal(t, "greeting", doc.Workflow.Name)
	require.Len(t, doc.Workflow.Body, 3)

	input, ok := doc.Workflow.Body[0].(*ast.InputNode)
	require.True(t, ok)
	assert.Equal(t, "name", input.Name)
	assert.True(t, input.Type.Equal(value.String()))

	call, ok := doc.Workflow.Body[1].(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "greet", call.Callee)
	assert.True(t, call.IsTask)
	ident, ok := call.Args["name"].(*ast.Ident)
	require.True(t, ok)
	assert.Equal(t, "name", ident.Name)

	output, ok := doc.Workflow.Body[2].(*ast.OutputNode)
	require.True(t, ok)
	member, ok := output.Expr.(*ast.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, "greeting", member.Field)

	greet, ok := doc.Tasks["greet"]
	require.True(t, ok)
	require.NotNil(t, greet.Command)
	require.Len(t, greet.Command.Parts, 2)
	assert.Equal(t, "echo ", greet.Command.Parts[0].Literal)
	require.NotNil(t, greet.Command.Parts[1].Placeholder)
	require.Len(t, greet.Outputs, 1)
	assert.NotNil(t, greet.Outputs[0].Default)
}

const conditionalDoc = `{
  "workflow": {
    "name": "cond",
    "body": [
      {
        "kind": "ConditionalEntry",
        "predicate": {"kind": "BoolLiteral", "value": true},
        "body": [
          {"kind": "Decl", "name": "x", "type": {"kind": "Int"}, "expr": {"kind": "IntLiteral", "raw": "1"}}
        ],
        "boundNames": [{"name": "x", "type": {"kind": "Int", "optional": true}}]
      }
    ]
  }
}`

func TestUnmarshalDocumentDecodesConditionalEntry(t *testing.T) {
	doc, err := UnmarshalDocument([]byte(conditionalDoc))
	require.NoError(t, err)
	require.Len(t, doc.Workflow.Body, 1)

	entry, ok := doc.Workflow.Body[0].(*ast.ConditionalEntry)
	require.True(t, ok)
	pred, ok := entry.Predicate.(*ast.BoolLiteral)
	require.True(t, ok)
	assert.True(t, pred.Value)
	require.Len(t, entry.Body, 1)
	require.Len(t, entry.BoundNames, 1)
	assert.Equal(t, "x", entry.BoundNames[0].Name)
	assert.True(t, entry.BoundNames[0].Type.Optional)
}

func TestUnmarshalDocumentRejectsUnknownExprKind(t *testing.T) {
	_, err := UnmarshalDocument([]byte(`{
	  "workflow": {"name": "bad", "body": [
	    {"kind": "OutputNode", "name": "o", "type": {"kind": "Int"}, "expr": {"kind": "Nonsense"}}
	  ]}
	}`))
	require.Error(t, err)
}
