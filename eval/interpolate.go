package eval

import (
	"strings"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/scope"
	"github.com/oakflow-dev/oakflow/value"
)

// evalStringLiteral renders an interpolated string (§4.1). For a
// multi-line literal the surrounding literal text is dedented as one
// unit, with each placeholder collapsed to a single sentinel rune so it
// neither contributes to nor is disturbed by the indentation
// computation; the dedented text is then re-split against the original
// placeholder list and each is evaluated and rendered in turn.
func evalStringLiteral(n *ast.StringLiteral, a *scope.Arena, idx int, io IO) (value.Value, error) {
	var sentinel strings.Builder
	for _, p := range n.Parts {
		if p.Expr == nil {
			sentinel.WriteString(p.Literal)
		} else {
			sentinel.WriteRune(placeholderSentinel)
		}
	}

	rendered := sentinel.String()
	if n.MultiLine {
		rendered = Dedent(rendered)
	} else {
		rendered = unescape(rendered)
	}

	dedentedLiterals := splitOnSentinel(rendered)

	var out strings.Builder
	run := 0
	for _, p := range n.Parts {
		if p.Expr == nil {
			out.WriteString(dedentedLiterals[run])
			run++
			continue
		}
		rendered, err := renderPlaceholder(p, a, idx, io)
		if err != nil {
			return value.Value{}, err
		}
		out.WriteString(rendered)
	}
	return value.NewString(out.String()), nil
}

// splitOnSentinel divides a dedented template back into the literal
// runs that separated its placeholders, one run per literal Part
// (parts strictly alternate literal/placeholder, so the Nth sentinel
// split corresponds to the Nth literal Part).
func splitOnSentinel(s string) []string {
	var out []string
	for _, r := range strings.SplitAfter(s, string(placeholderSentinel)) {
		out = append(out, strings.TrimSuffix(r, string(placeholderSentinel)))
	}
	return out
}

// renderPlaceholder evaluates one interpolation placeholder and applies
// its sep/default/true-false option (§4.1).
func renderPlaceholder(p ast.StringPart, a *scope.Arena, idx int, io IO) (string, error) {
	v, err := Eval(p.Expr, a, idx, io)
	if err != nil {
		return "", err
	}

	if p.IfTrue != "" || p.IfFalse != "" {
		if v.Type.Kind != value.KindBool {
			return "", diag.Newf(diag.KindTypeMismatch, p.Expr.ExprSpan(), "true/false placeholder option requires a Boolean")
		}
		if v.Bool {
			return p.IfTrue, nil
		}
		return p.IfFalse, nil
	}

	if v.IsNone {
		if p.Default != nil {
			dv, err := Eval(p.Default, a, idx, io)
			if err != nil {
				return "", err
			}
			return renderScalar(dv), nil
		}
		return "", nil
	}

	if v.Type.Kind == value.KindArray && p.Sep != "" {
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = renderScalar(e)
		}
		return strings.Join(parts, p.Sep), nil
	}

	return renderScalar(v), nil
}
