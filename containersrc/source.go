// Package containersrc parses and formats container image specifications
// (§4.9): docker://, library://, oras://, file://*.sif, or a bare
// reference defaulting to docker.
package containersrc

import (
	"fmt"
	"strings"
)

// Scheme discriminates the container source kinds.
type Scheme int

const (
	Docker Scheme = iota
	Library
	ORAS
	SIFFile
	Unknown
)

func (s Scheme) String() string {
	switch s {
	case Docker:
		return "docker"
	case Library:
		return "library"
	case ORAS:
		return "oras"
	case SIFFile:
		return "file"
	default:
		return "unknown"
	}
}

// Source is a parsed container specification.
type Source struct {
	Scheme Scheme
	// Reference is the scheme-stripped body: the image reference for
	// Docker/Library/ORAS, the filesystem path for SIFFile.
	Reference string
}

// Parse classifies a raw container specification (§4.9). A bare string
// with no recognised scheme prefix defaults to Docker.
func Parse(raw string) Source {
	switch {
	case strings.HasPrefix(raw, "docker://"):
		return Source{Scheme: Docker, Reference: strings.TrimPrefix(raw, "docker://")}
	case strings.HasPrefix(raw, "library://"):
		return Source{Scheme: Library, Reference: strings.TrimPrefix(raw, "library://")}
	case strings.HasPrefix(raw, "oras://"):
		return Source{Scheme: ORAS, Reference: strings.TrimPrefix(raw, "oras://")}
	case strings.HasPrefix(raw, "file://") && strings.HasSuffix(raw, ".sif"):
		return Source{Scheme: SIFFile, Reference: strings.TrimPrefix(raw, "file://")}
	case strings.Contains(raw, "://"):
		return Source{Scheme: Unknown, Reference: raw}
	default:
		return Source{Scheme: Docker, Reference: raw}
	}
}

// String is the normal format: the scheme is omitted, matching how a
// task's `requirements.container` reads back in a rendered command.
func (s Source) String() string {
	return s.Reference
}

// GoString is the alternate (%#v) format: the scheme is included, for
// diagnostics and logs where the source kind matters.
func (s Source) GoString() string {
	if s.Scheme == SIFFile {
		return fmt.Sprintf("file://%s", s.Reference)
	}
	return fmt.Sprintf("%s://%s", s.Scheme, s.Reference)
}

// RunnableBy reports whether the named backend kind can execute this
// source; a SIF file is a local singularity/apptainer artifact and
// cannot be dispatched to a remote task service (§4.9).
func (s Source) RunnableBy(backendKind string) bool {
	if s.Scheme == SIFFile && backendKind == "tes" {
		return false
	}
	return true
}
