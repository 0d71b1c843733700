package engine

import (
	"os"
)

// LocalIO implements eval.IO directly against the local filesystem. No
// example in this pack wraps a one-shot file read/write/stat behind a
// third-party library, so this stays on os, matching how the task and
// workflow evaluators themselves call os.WriteFile/os.MkdirAll
// directly rather than through an abstraction.
type LocalIO struct {
	// TempDir is the directory WriteTempFile creates files under.
	TempDir string
}

func (io LocalIO) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (io LocalIO) WriteTempFile(content string) (string, error) {
	f, err := os.CreateTemp(io.TempDir, "oakflow-*.tmp")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (io LocalIO) Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
