package value

import (
	"os"
	"path/filepath"

	"github.com/oakflow-dev/oakflow/diag"
)

// PathResolver locates file/directory leaves against a run's base
// directory; swappable in tests and by the (out-of-scope per §1)
// downloader/transferer for remote paths.
type PathResolver interface {
	// Exists reports whether path (resolved against baseDir if
	// relative) exists, and returns the resolved absolute/remote form.
	Exists(path, baseDir string) (resolved string, ok bool)
}

// LocalPathResolver resolves against the local filesystem with os.Stat.
type LocalPathResolver struct{}

func (LocalPathResolver) Exists(path, baseDir string) (string, bool) {
	resolved := path
	if !filepath.IsAbs(path) && baseDir != "" {
		resolved = filepath.Join(baseDir, path)
	}
	if _, err := os.Stat(resolved); err != nil {
		return resolved, false
	}
	return resolved, true
}

// EnsurePathExists applies ensure_path_exists(optional, base_dir) to
// every File/Directory leaf reachable from v (§1 item 3, §3.1). A
// leaf that fails to resolve becomes None if its type is optional;
// otherwise evaluation fails with a typed diagnostic. baseDir is the
// document directory for inputs/private decls and "" (forcing absolute
// paths) for workflow outputs, per §3.1.
func EnsurePathExists(resolver PathResolver, v Value, baseDir string, span diag.Span) (Value, error) {
	if v.IsNone {
		return v, nil
	}

	switch v.Type.Kind {
	case KindFile, KindDirectory:
		if baseDir == "" && !filepath.IsAbs(v.Str) {
			if v.Type.Optional {
				return None(v.Type), nil
			}
			return Value{}, diag.Newf(diag.KindPathNotFound, span,
				"relative path %q not allowed for workflow outputs", v.Str)
		}
		resolved, ok := resolver.Exists(v.Str, baseDir)
		if !ok {
			if v.Type.Optional {
				return None(v.Type), nil
			}
			return Value{}, diag.Newf(diag.KindPathNotFound, span,
				"%s %q does not exist", v.Type.Kind, v.Str)
		}
		r := v
		r.Str = resolved
		return r, nil

	case KindArray:
		out := make([]Value, len(v.Array))
		for i, e := range v.Array {
			ev, err := EnsurePathExists(resolver, e, baseDir, span)
			if err != nil {
				return Value{}, err
			}
			out[i] = ev
		}
		r := v
		r.Array = out
		return r, nil

	case KindMap:
		vals := make([]Value, len(v.MapVals))
		for i, e := range v.MapVals {
			ev, err := EnsurePathExists(resolver, e, baseDir, span)
			if err != nil {
				return Value{}, err
			}
			vals[i] = ev
		}
		r := v
		r.MapVals = vals
		return r, nil

	case KindPair:
		l, err := EnsurePathExists(resolver, *v.PairLeft, baseDir, span)
		if err != nil {
			return Value{}, err
		}
		rr, err := EnsurePathExists(resolver, *v.PairRight, baseDir, span)
		if err != nil {
			return Value{}, err
		}
		r := v
		r.PairLeft, r.PairRight = &l, &rr
		return r, nil

	case KindObject, KindStruct, KindCallOutputs:
		vals := make([]Value, len(v.FieldValues))
		for i, e := range v.FieldValues {
			ev, err := EnsurePathExists(resolver, e, baseDir, span)
			if err != nil {
				return Value{}, err
			}
			vals[i] = ev
		}
		r := v
		r.FieldValues = vals
		return r, nil

	default:
		return v, nil
	}
}
