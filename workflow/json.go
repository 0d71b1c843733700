package workflow

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
)

func writeJSONValues(path string, values map[string]value.Value) error {
	out := make(map[string]any, len(values))
	for name, v := range values {
		j, err := value.ToJSON(v)
		if err != nil {
			return diag.Wrap(diag.KindIO, diag.Span{}, "workflow: encode "+name, err)
		}
		out[name] = j
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return diag.Wrap(diag.KindIO, diag.Span{}, "workflow: marshal "+path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// writeOutputsJSONOrdered writes outputs.json with keys in the
// workflow's declared output order (§6.2). encoding/json always sorts
// map keys alphabetically, so declaration order is preserved by
// marshalling each value independently and splicing the raw key/value
// pairs into the object by hand.
func writeOutputsJSONOrdered(rootDir string, decls []ast.Field, outputs map[string]value.Value) error {
	var pairs []byte
	for _, o := range decls {
		v, ok := outputs[o.Name]
		if !ok {
			continue
		}
		j, err := value.ToJSON(v)
		if err != nil {
			return diag.Wrap(diag.KindIO, o.Span, "workflow: encode output "+o.Name, err)
		}
		key, err := json.Marshal(o.Name)
		if err != nil {
			return diag.Wrap(diag.KindIO, o.Span, "workflow: encode output key "+o.Name, err)
		}
		val, err := json.Marshal(j)
		if err != nil {
			return diag.Wrap(diag.KindIO, o.Span, "workflow: encode output "+o.Name, err)
		}
		if len(pairs) > 0 {
			pairs = append(pairs, ",\n"...)
		}
		pairs = append(pairs, "  "...)
		pairs = append(pairs, key...)
		pairs = append(pairs, ": "...)
		pairs = append(pairs, val...)
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	buf.Write(pairs)
	buf.WriteString("\n}\n")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		return diag.Wrap(diag.KindIO, diag.Span{}, "workflow: format outputs.json", err)
	}
	return os.WriteFile(rootDir+"/outputs.json", pretty.Bytes(), 0o644)
}
