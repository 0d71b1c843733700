package cache

import (
	"context"
	"testing"

	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noStructs(string) ([]value.Field, bool) { return nil, false }

func TestFingerprintIsOrderIndependent(t *testing.T) {
	inputsA := map[string]value.Value{"x": value.NewInt(1), "y": value.NewString("a")}
	inputsB := map[string]value.Value{"y": value.NewString("a"), "x": value.NewInt(1)}
	assert.Equal(t, Fingerprint("task", []byte("echo hi"), inputsA), Fingerprint("task", []byte("echo hi"), inputsB))
}

func TestFingerprintChangesWithCommand(t *testing.T) {
	inputs := map[string]value.Value{"x": value.NewInt(1)}
	k1 := Fingerprint("task", []byte("echo a"), inputs)
	k2 := Fingerprint("task", []byte("echo b"), inputs)
	assert.NotEqual(t, k1, k2)
}

func TestFingerprintChangesWithInputValue(t *testing.T) {
	k1 := Fingerprint("task", []byte("echo"), map[string]value.Value{"x": value.NewInt(1)})
	k2 := Fingerprint("task", []byte("echo"), map[string]value.Value{"x": value.NewInt(2)})
	assert.NotEqual(t, k1, k2)
}

func TestModeByConfig(t *testing.T) {
	consult, store := Mode(config.CacheEnabled)
	assert.True(t, consult)
	assert.True(t, store)

	consult, store = Mode(config.CacheReadOnly)
	assert.True(t, consult)
	assert.False(t, store)

	consult, store = Mode(config.CacheDisabled)
	assert.False(t, consult)
	assert.False(t, store)
}

func TestFileCacheStoreThenLookupRoundTripsValues(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)

	key := Fingerprint("greet", []byte("echo hello"), nil)
	entry := Entry{Outputs: map[string]value.Value{
		"greeting": value.NewString("hello"),
		"count":    value.NewInt(3),
	}}
	require.NoError(t, fc.Store(context.Background(), key, entry))

	outputTypes := map[string]value.Type{"greeting": value.String(), "count": value.Int()}
	got, hit, err := fc.Lookup(context.Background(), key, outputTypes, noStructs)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "hello", got.Outputs["greeting"].Str)
	assert.Equal(t, int64(3), got.Outputs["count"].Int)
}

func TestFileCacheLookupMissIsNotAnError(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)

	_, hit, err := fc.Lookup(context.Background(), Key("nonexistent"), nil, noStructs)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestFileCacheIgnoresStaleOutputNames(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)

	key := Fingerprint("t", []byte("cmd"), nil)
	require.NoError(t, fc.Store(context.Background(), key, Entry{Outputs: map[string]value.Value{
		"old": value.NewString("x"),
	}}))

	got, hit, err := fc.Lookup(context.Background(), key, map[string]value.Type{"new": value.String()}, noStructs)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Empty(t, got.Outputs)
}
