package eval

import (
	"strings"

	"github.com/oakflow-dev/oakflow/value"
)

// RenderScalar renders a scalar value as its command-line/string text
// form, the same conversion string interpolation placeholders use.
func RenderScalar(v value.Value) string { return renderScalar(v) }

// RenderCommandValue renders v for substitution into a task's command
// template (§4.5 step 4). A command placeholder carries none of the
// sep/default/true-false options a string-literal placeholder does
// (§4.1): None renders as the empty string and an array joins its
// elements with a single space.
func RenderCommandValue(v value.Value) string {
	if v.IsNone {
		return ""
	}
	if v.Type.Kind == value.KindArray {
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = renderScalar(e)
		}
		return strings.Join(parts, " ")
	}
	return renderScalar(v)
}
