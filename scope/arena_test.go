package scope

import (
	"testing"

	"github.com/oakflow-dev/oakflow/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootAndOutputIndices(t *testing.T) {
	a := NewArena()
	assert.Equal(t, 0, Root)
	assert.Equal(t, 1, Output)
	_, ok := a.Lookup(Root, "missing")
	assert.False(t, ok)
}

func TestInsertAndLookupWalksParents(t *testing.T) {
	a := NewArena()
	a.Insert(Root, "x", value.NewInt(1))
	child := a.Alloc(Root)
	v, ok := a.Lookup(child, "x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Int)
}

func TestChildShadowsParent(t *testing.T) {
	a := NewArena()
	a.Insert(Root, "x", value.NewInt(1))
	child := a.Alloc(Root)
	a.Insert(child, "x", value.NewInt(2))
	v, _ := a.Lookup(child, "x")
	assert.Equal(t, int64(2), v.Int)
	v, _ = a.Lookup(Root, "x")
	assert.Equal(t, int64(1), v.Int)
}

func TestFreeReusesIndex(t *testing.T) {
	a := NewArena()
	c1 := a.Alloc(Root)
	a.Free(c1)
	c2 := a.Alloc(Root)
	assert.Equal(t, c1, c2)
}

func TestScatterIndexJoinsAcrossNesting(t *testing.T) {
	a := NewArena()
	outer := a.AllocScatter(Root, 2)
	inner := a.AllocScatter(outer, 0)
	assert.Equal(t, "2-0", a.ScatterIndex(inner))
}

func TestTakeClearsWithoutFreeing(t *testing.T) {
	a := NewArena()
	c := a.Alloc(Root)
	a.Insert(c, "y", value.NewInt(5))
	old := a.Take(c)
	assert.Equal(t, int64(5), old["y"].Int)
	_, ok := a.Get(c, "y")
	assert.False(t, ok)
	// slot still live, not reused by a fresh Alloc
	c2 := a.Alloc(Root)
	assert.NotEqual(t, c, c2)
}
