package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedentStripsCommonIndent(t *testing.T) {
	raw := "\n    hello world\n    "
	assert.Equal(t, "hello world", Dedent(raw))
}

func TestDedentIsIdempotent(t *testing.T) {
	raw := "\n    line one\n      line two\n    "
	once := Dedent(raw)
	assert.Equal(t, once, Dedent("\n"+once+"\n"))
}

func TestDedentCollapsesLineContinuation(t *testing.T) {
	raw := "\n    hello \\\n    world\n    "
	assert.Equal(t, "hello world", Dedent(raw))
}

func TestDedentUnescapesSpecialSequences(t *testing.T) {
	raw := "\n    a \\$ b \\> c \\~ d \\\\\n    "
	assert.Equal(t, "a $ b > c ~ d \\", Dedent(raw))
}

func TestDedentIgnoresBlankLinesWhenComputingIndent(t *testing.T) {
	raw := "\n    first\n\n    second\n    "
	assert.Equal(t, "first\n\nsecond", Dedent(raw))
}
