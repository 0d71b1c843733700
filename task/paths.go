package task

import (
	"fmt"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/value"
)

// collectInputs walks every bound argument value and gathers each
// File/Directory leaf into a backend.Input (§6.3): a leaf inside an
// array, map, pair, struct or object gets its name suffixed with its
// index or field name (even when it is the only leaf), so every mount
// is individually addressable; a top-level File/Directory keeps the
// plain input name.
func (e *Evaluator) collectInputs(t *ast.Task, argValues map[string]value.Value) ([]backend.Input, error) {
	var inputs []backend.Input
	for _, in := range t.Inputs {
		v, ok := argValues[in.Name]
		if !ok {
			continue
		}
		collectLeaves(in.Name, v, &inputs)
	}
	return inputs, nil
}

func collectLeaves(name string, v value.Value, out *[]backend.Input) {
	if v.IsNone {
		return
	}
	switch v.Type.Kind {
	case value.KindFile, value.KindDirectory:
		*out = append(*out, backend.Input{
			Name:        name,
			HostPath:    v.Str,
			ReadOnly:    true,
			IsDirectory: v.Type.Kind == value.KindDirectory,
		})
	case value.KindArray:
		for i, e := range v.Array {
			collectLeaves(fmt.Sprintf("%s.%d", name, i), e, out)
		}
	case value.KindMap:
		for i, mv := range v.MapVals {
			collectLeaves(fmt.Sprintf("%s.%d", name, i), mv, out)
		}
	case value.KindPair:
		collectLeaves(name+".left", *v.PairLeft, out)
		collectLeaves(name+".right", *v.PairRight, out)
	case value.KindObject, value.KindStruct, value.KindCallOutputs:
		for i, n := range v.FieldNames {
			collectLeaves(name+"."+n, v.FieldValues[i], out)
		}
	}
}
