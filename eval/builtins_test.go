package eval

import (
	"testing"

	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthOnArray(t *testing.T) {
	arr := value.NewArray(value.Int(), []value.Value{value.NewInt(1), value.NewInt(2)})
	got, err := CallBuiltin("length", []value.Value{arr}, diag.Span{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Int)
}

func TestSelectFirstSkipsNone(t *testing.T) {
	arr := value.NewArray(value.Int().Opt(), []value.Value{
		value.None(value.Int()), value.NewInt(7),
	})
	got, err := CallBuiltin("select_first", []value.Value{arr}, diag.Span{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Int)
}

func TestSelectFirstAllNoneFails(t *testing.T) {
	arr := value.NewArray(value.Int().Opt(), []value.Value{value.None(value.Int())})
	_, err := CallBuiltin("select_first", []value.Value{arr}, diag.Span{}, nil)
	require.Error(t, err)
}

func TestSepJoinsWithSeparator(t *testing.T) {
	arr := value.NewArray(value.String(), []value.Value{value.NewString("a"), value.NewString("b")})
	got, err := CallBuiltin("sep", []value.Value{value.NewString(","), arr}, diag.Span{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b", got.Str)
}

func TestRangeProducesSequence(t *testing.T) {
	got, err := CallBuiltin("range", []value.Value{value.NewInt(3)}, diag.Span{}, nil)
	require.NoError(t, err)
	require.Len(t, got.Array, 3)
	assert.Equal(t, int64(2), got.Array[2].Int)
}

func TestUnknownBuiltinIsDiagnostic(t *testing.T) {
	_, err := CallBuiltin("not_a_builtin", nil, diag.Span{}, nil)
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindUnknownName))
}

type fakeIO struct{ files map[string]string }

func (f fakeIO) ReadFile(path string) (string, error) { return f.files[path], nil }
func (f fakeIO) WriteTempFile(content string) (string, error) { return "/tmp/out", nil }
func (f fakeIO) Size(path string) (int64, error) { return int64(len(f.files[path])), nil }

func TestReadIntParsesTrimmedContent(t *testing.T) {
	io := fakeIO{files: map[string]string{"/f": "42\n"}}
	got, err := CallBuiltin("read_int", []value.Value{value.NewFile("/f")}, diag.Span{}, io)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int)
}
