package diag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDiagnosticPropagateFromAppendsBacktrace(t *testing.T) {
	d := New(KindUnknownName, Span{Start: Position{Line: 3, Column: 5}}, "undefined name x")
	d.WithSecondary(Span{Start: Position{Line: 1, Column: 1}}, "declared here")
	d.PropagateFrom("callee.wdl", Span{Start: Position{Line: 10, Column: 2}}, "g")

	want := &Diagnostic{
		Kind:     KindUnknownName,
		Severity: SeverityError,
		Message:  "undefined name x",
		Primary:  Span{Start: Position{Line: 3, Column: 5}},
		Secondary: []LabelledSpan{
			{Span: Span{Start: Position{Line: 1, Column: 1}}, Label: "declared here"},
		},
		Backtrace: []Frame{
			{Document: "callee.wdl", CallSpan: Span{Start: Position{Line: 10, Column: 2}}, CallName: "g"},
		},
	}

	// Backtrace/Secondary are slices of structs nested two levels deep;
	// cmp.Diff walks them directly instead of asserting field-by-field.
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnosticIsComparesKindOnly(t *testing.T) {
	a := New(KindCancelled, Span{Start: Position{Line: 1}}, "run cancelled")
	b := New(KindCancelled, Span{Start: Position{Line: 99}}, "different message, same kind")
	assert.True(t, a.Is(b))

	c := New(KindIO, Span{Start: Position{Line: 1}}, "run cancelled")
	assert.False(t, a.Is(c))
}
