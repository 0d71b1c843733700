package containersrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBareDefaultsToDocker(t *testing.T) {
	s := Parse("ubuntu:22.04")
	assert.Equal(t, Docker, s.Scheme)
	assert.Equal(t, "ubuntu:22.04", s.Reference)
}

func TestParseSchemes(t *testing.T) {
	assert.Equal(t, Library, Parse("library://org/repo").Scheme)
	assert.Equal(t, ORAS, Parse("oras://registry/repo:tag").Scheme)
	assert.Equal(t, SIFFile, Parse("file:///opt/images/tool.sif").Scheme)
}

func TestStringOmitsSchemeGoStringIncludesIt(t *testing.T) {
	s := Parse("docker://ubuntu:22.04")
	assert.Equal(t, "ubuntu:22.04", s.String())
	assert.Equal(t, "docker://ubuntu:22.04", s.GoString())
}

func TestSIFNotRunnableByTES(t *testing.T) {
	s := Parse("file:///opt/images/tool.sif")
	assert.False(t, s.RunnableBy("tes"))
	assert.True(t, s.RunnableBy("local"))
}
