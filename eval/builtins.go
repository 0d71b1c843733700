package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
)

// IO abstracts the filesystem/network operations the read_*/write_*/size
// built-ins perform. The evaluator itself stays pure; these are the only
// suspension points named in §4.1.
type IO interface {
	ReadFile(path string) (string, error)
	WriteTempFile(content string) (string, error)
	Size(path string) (int64, error)
}

type builtinFunc func(args []value.Value, span diag.Span, io IO) (value.Value, error)

// builtins is the dispatch table of §4.1: each name maps to exactly one
// function, which checks its own arity and argument Kinds. There is no
// per-name list of overloaded signatures.
var builtins = map[string]builtinFunc{
	"length":       builtinLength,
	"defined":      builtinDefined,
	"select_first": builtinSelectFirst,
	"select_all":   builtinSelectAll,
	"as_pairs":     builtinAsPairs,
	"as_map":       builtinAsMap,
	"keys":         builtinKeys,
	"values":       builtinValues,
	"zip":          builtinZip,
	"cross":        builtinCross,
	"flatten":      builtinFlatten,
	"range":        builtinRange,
	"ceil":         builtinCeil,
	"floor":        builtinFloor,
	"round":        builtinRound,
	"sub":          builtinSub,
	"sep":          builtinSep,
	"prefix":       builtinPrefix,
	"suffix":       builtinSuffix,
	"quote":        builtinQuote,
	"squote":       builtinSquote,
	"basename":     builtinBasename,
	"size":         builtinSize,
	"read_lines":   builtinReadLines,
	"read_string":  builtinReadString,
	"read_int":     builtinReadInt,
	"read_float":   builtinReadFloat,
	"read_boolean": builtinReadBoolean,
	"write_lines":  builtinWriteLines,
}

// CallBuiltin dispatches a built-in call by name. Unknown names produce
// diag.KindUnknownName since from the evaluator's perspective a built-in
// identifier lives in the same namespace as task/workflow calls.
func CallBuiltin(name string, args []value.Value, span diag.Span, io IO) (value.Value, error) {
	fn, ok := builtins[name]
	if !ok {
		return value.Value{}, diag.Newf(diag.KindUnknownName, span, "unknown built-in %q", name)
	}
	return fn(args, span, io)
}

func arityErr(name string, span diag.Span, want int, got int) error {
	return diag.Newf(diag.KindTypeMismatch, span, "%s: expected %d argument(s), got %d", name, want, got)
}

func typeErr(name string, span diag.Span) error {
	return diag.Newf(diag.KindTypeMismatch, span, "%s: argument type mismatch", name)
}

func builtinLength(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, arityErr("length", span, 1, len(args))
	}
	switch args[0].Type.Kind {
	case value.KindArray:
		return value.NewInt(int64(len(args[0].Array))), nil
	case value.KindMap:
		return value.NewInt(int64(len(args[0].MapKeys))), nil
	default:
		return value.Value{}, typeErr("length", span)
	}
}

func builtinDefined(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, arityErr("defined", span, 1, len(args))
	}
	return value.NewBool(!args[0].IsNone), nil
}

func builtinSelectFirst(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("select_first", span)
	}
	for _, v := range args[0].Array {
		if !v.IsNone {
			return v, nil
		}
	}
	return value.Value{}, diag.Newf(diag.KindTypeMismatch, span, "select_first: no defined element")
}

func builtinSelectAll(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("select_all", span)
	}
	elemType := args[0].Type.Elem.NonOpt()
	out := make([]value.Value, 0, len(args[0].Array))
	for _, v := range args[0].Array {
		if !v.IsNone {
			out = append(out, v)
		}
	}
	return value.NewArray(elemType, out), nil
}

func builtinAsPairs(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindMap {
		return value.Value{}, typeErr("as_pairs", span)
	}
	m := args[0]
	pairType := value.Pair(*m.Type.Key, *m.Type.Val)
	out := make([]value.Value, len(m.MapKeys))
	for i := range m.MapKeys {
		out[i] = value.NewPair(m.MapKeys[i], m.MapVals[i])
	}
	return value.NewArray(pairType, out), nil
}

func builtinAsMap(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindArray || args[0].Type.Elem.Kind != value.KindPair {
		return value.Value{}, typeErr("as_map", span)
	}
	keys := make([]value.Value, len(args[0].Array))
	vals := make([]value.Value, len(args[0].Array))
	for i, p := range args[0].Array {
		keys[i] = *p.PairLeft
		vals[i] = *p.PairRight
	}
	return value.NewMap(*args[0].Type.Elem.Left, *args[0].Type.Elem.Right, keys, vals), nil
}

func builtinKeys(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindMap {
		return value.Value{}, typeErr("keys", span)
	}
	return value.NewArray(*args[0].Type.Key, append([]value.Value{}, args[0].MapKeys...)), nil
}

func builtinValues(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindMap {
		return value.Value{}, typeErr("values", span)
	}
	return value.NewArray(*args[0].Type.Val, append([]value.Value{}, args[0].MapVals...)), nil
}

func builtinZip(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 2 || args[0].Type.Kind != value.KindArray || args[1].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("zip", span)
	}
	a, b := args[0].Array, args[1].Array
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]value.Value, n)
	for i := 0; i < n; i++ {
		out[i] = value.NewPair(a[i], b[i])
	}
	return value.NewArray(value.Pair(*args[0].Type.Elem, *args[1].Type.Elem), out), nil
}

func builtinCross(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 2 || args[0].Type.Kind != value.KindArray || args[1].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("cross", span)
	}
	a, b := args[0].Array, args[1].Array
	out := make([]value.Value, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			out = append(out, value.NewPair(x, y))
		}
	}
	return value.NewArray(value.Pair(*args[0].Type.Elem, *args[1].Type.Elem), out), nil
}

func builtinFlatten(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindArray || args[0].Type.Elem.Kind != value.KindArray {
		return value.Value{}, typeErr("flatten", span)
	}
	elemType := *args[0].Type.Elem.Elem
	var out []value.Value
	for _, inner := range args[0].Array {
		out = append(out, inner.Array...)
	}
	return value.NewArray(elemType, out), nil
}

func builtinRange(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindInt {
		return value.Value{}, typeErr("range", span)
	}
	n := args[0].Int
	if n < 0 {
		return value.Value{}, diag.Newf(diag.KindNumericOutOfRange, span, "range: negative length %d", n)
	}
	out := make([]value.Value, n)
	for i := int64(0); i < n; i++ {
		out[i] = value.NewInt(i)
	}
	return value.NewArray(value.Int(), out), nil
}

func toFloat(v value.Value) (float64, bool) {
	switch v.Type.Kind {
	case value.KindFloat:
		return v.Float, true
	case value.KindInt:
		return float64(v.Int), true
	}
	return 0, false
}

func builtinCeil(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	f, err := unaryFloat("ceil", args, span)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInt(int64(math.Ceil(f))), nil
}

func builtinFloor(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	f, err := unaryFloat("floor", args, span)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInt(int64(math.Floor(f))), nil
}

func builtinRound(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	f, err := unaryFloat("round", args, span)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInt(int64(math.Round(f))), nil
}

func unaryFloat(name string, args []value.Value, span diag.Span) (float64, error) {
	if len(args) != 1 {
		return 0, arityErr(name, span, 1, len(args))
	}
	f, ok := toFloat(args[0])
	if !ok {
		return 0, typeErr(name, span)
	}
	return f, nil
}

func builtinSub(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, arityErr("sub", span, 3, len(args))
	}
	input, pattern, repl := args[0].Str, args[1].Str, args[2].Str
	return value.NewString(strings.ReplaceAll(input, pattern, repl)), nil
}

func builtinSep(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 2 || args[1].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("sep", span)
	}
	sep := args[0].Str
	parts := make([]string, len(args[1].Array))
	for i, v := range args[1].Array {
		parts[i] = renderScalar(v)
	}
	return value.NewString(strings.Join(parts, sep)), nil
}

func builtinPrefix(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 2 || args[1].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("prefix", span)
	}
	p := args[0].Str
	out := make([]value.Value, len(args[1].Array))
	for i, v := range args[1].Array {
		out[i] = value.NewString(p + renderScalar(v))
	}
	return value.NewArray(value.String(), out), nil
}

func builtinSuffix(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) != 2 || args[1].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("suffix", span)
	}
	s := args[0].Str
	out := make([]value.Value, len(args[1].Array))
	for i, v := range args[1].Array {
		out[i] = value.NewString(renderScalar(v) + s)
	}
	return value.NewArray(value.String(), out), nil
}

func builtinQuote(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	return quoteEach(args, span, `"`, `"`)
}

func builtinSquote(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	return quoteEach(args, span, "'", "'")
}

func quoteEach(args []value.Value, span diag.Span, open, close string) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("quote", span)
	}
	out := make([]value.Value, len(args[0].Array))
	for i, v := range args[0].Array {
		out[i] = value.NewString(open + renderScalar(v) + close)
	}
	return value.NewArray(value.String(), out), nil
}

func builtinBasename(args []value.Value, span diag.Span, _ IO) (value.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return value.Value{}, arityErr("basename", span, 1, len(args))
	}
	path := args[0].Str
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	if len(args) == 2 {
		base = strings.TrimSuffix(base, args[1].Str)
	}
	return value.NewString(base), nil
}

func builtinSize(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	if len(args) < 1 {
		return value.Value{}, arityErr("size", span, 1, len(args))
	}
	if args[0].IsNone {
		return value.NewFloat(0), nil
	}
	n, err := io.Size(args[0].Str)
	if err != nil {
		return value.Value{}, diag.Wrap(diag.KindIO, span, "size", err)
	}
	unit := "B"
	if len(args) == 2 {
		unit = args[1].Str
	}
	return value.NewFloat(convertBytes(float64(n), unit)), nil
}

func convertBytes(n float64, unit string) float64 {
	scale := map[string]float64{
		"B": 1, "KB": 1e3, "MB": 1e6, "GB": 1e9, "TB": 1e12,
		"KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30, "TiB": 1 << 40,
	}
	f, ok := scale[unit]
	if !ok {
		f = 1
	}
	return n / f
}

func builtinReadLines(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	content, err := readArg(args, span, io)
	if err != nil {
		return value.Value{}, err
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	out := make([]value.Value, len(lines))
	for i, l := range lines {
		out[i] = value.NewString(l)
	}
	return value.NewArray(value.String(), out), nil
}

func builtinReadString(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	content, err := readArg(args, span, io)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewString(strings.TrimRight(content, "\n")), nil
}

func builtinReadInt(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	content, err := readArg(args, span, io)
	if err != nil {
		return value.Value{}, err
	}
	var n int64
	if _, serr := fmt.Sscanf(strings.TrimSpace(content), "%d", &n); serr != nil {
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, span, "read_int: not an integer")
	}
	return value.NewInt(n), nil
}

func builtinReadFloat(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	content, err := readArg(args, span, io)
	if err != nil {
		return value.Value{}, err
	}
	var f float64
	if _, serr := fmt.Sscanf(strings.TrimSpace(content), "%g", &f); serr != nil {
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, span, "read_float: not a number")
	}
	return value.NewFloat(f), nil
}

func builtinReadBoolean(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	content, err := readArg(args, span, io)
	if err != nil {
		return value.Value{}, err
	}
	switch strings.TrimSpace(strings.ToLower(content)) {
	case "true":
		return value.NewBool(true), nil
	case "false":
		return value.NewBool(false), nil
	default:
		return value.Value{}, diag.Newf(diag.KindTypeMismatch, span, "read_boolean: not true/false")
	}
}

func readArg(args []value.Value, span diag.Span, io IO) (string, error) {
	if len(args) != 1 {
		return "", arityErr("read_*", span, 1, len(args))
	}
	content, err := io.ReadFile(args[0].Str)
	if err != nil {
		return "", diag.Wrap(diag.KindIO, span, "read", err)
	}
	return content, nil
}

func builtinWriteLines(args []value.Value, span diag.Span, io IO) (value.Value, error) {
	if len(args) != 1 || args[0].Type.Kind != value.KindArray {
		return value.Value{}, typeErr("write_lines", span)
	}
	lines := make([]string, len(args[0].Array))
	for i, v := range args[0].Array {
		lines[i] = renderScalar(v)
	}
	path, err := io.WriteTempFile(strings.Join(lines, "\n") + "\n")
	if err != nil {
		return value.Value{}, diag.Wrap(diag.KindIO, span, "write_lines", err)
	}
	return value.NewFile(path), nil
}

// renderScalar renders a scalar value the way placeholder interpolation
// does, without options (§4.1).
func renderScalar(v value.Value) string {
	switch v.Type.Kind {
	case value.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case value.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case value.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case value.KindString, value.KindFile, value.KindDirectory:
		return v.Str
	default:
		return ""
	}
}
