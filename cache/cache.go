// Package cache implements the content-addressed task cache consulted
// at task-evaluator step 6 (§4.5): a cacheable call's fingerprint —
// derived from the task's name, its command bytes, and its bound input
// values — is looked up before dispatch; a hit reifies
// the recorded outputs without spawning. Grounded on the SHA-256
// content-digest pattern backend/tes already uses for input dedup,
// applied here to whole-call fingerprints instead of individual files.
//
// The fingerprint's deterministic encoding step is grounded on
// core/planfmt/canonical.go's CanonicalPlan: that type also exists
// solely to turn an in-memory value into a stable byte sequence ahead
// of a content hash, and does it with a fxamacker/cbor/v2 encoder
// built from cbor.CanonicalEncOptions() rather than hand-rolled bytes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/value"
	"golang.org/x/sync/singleflight"
)

// canonicalEncMode is the deterministic CBOR mode canonicalize encodes
// with: canonical options fix map-key ordering and integer/float
// encoding width so the same logical value always produces the same
// bytes, the same guarantee core/planfmt/canonical.go relies on for
// its plan hash.
var canonicalEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}

// Key is a content-addressed fingerprint for one call.
type Key string

// Entry is a cached call's recorded outputs.
type Entry struct {
	Outputs map[string]value.Value
}

// Cache is the lookup/store surface the task evaluator consults.
// CacheReadOnly callers should use Lookup but never Store. Lookup takes
// the task's declared output types (and a struct resolver, for any
// Struct-typed output) since a cache entry is stored as plain JSON and
// must be reified against the caller's schema, the same way
// outputs.json is read back (§6.2).
type Cache interface {
	Lookup(ctx context.Context, key Key, outputTypes map[string]value.Type, resolve value.StructResolver) (Entry, bool, error)
	Store(ctx context.Context, key Key, entry Entry) error
}

// Fingerprint computes the content-addressed key for a call: the task
// name, its instantiated command bytes, and its bound input values in
// name-sorted order so argument evaluation order never affects the key.
// The resolved CPU/memory ask is not part of the key: a change in
// resources does not change the command's output.
func Fingerprint(taskName string, command []byte, inputs map[string]value.Value) Key {
	h := sha256.New()
	h.Write([]byte(taskName))
	h.Write([]byte{0})
	h.Write(command)

	names := make([]string, 0, len(inputs))
	for n := range inputs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h.Write([]byte{0})
		h.Write([]byte(n))
		h.Write([]byte{0})
		h.Write(canonicalize(inputs[n]))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// canonicalEntry is value.Value's fingerprint-stable CBOR projection:
// field order is explicit rather than relying on struct field order,
// so a future field addition to value.Value cannot silently change
// existing fingerprints. Nested values are pre-encoded into
// cbor.RawMessage by a recursive canonicalize call rather than
// re-walked by the encoder.
type canonicalEntry struct {
	Kind    value.Kind
	None    bool
	Bool    bool
	Int     int64
	Float   float64
	Str     string
	Array   []cbor.RawMessage
	MapKeys []cbor.RawMessage
	MapVals []cbor.RawMessage
	Fields  map[string]cbor.RawMessage
}

func canonicalize(v value.Value) []byte {
	c := canonicalEntry{Kind: v.Type.Kind, None: v.IsNone}
	if !v.IsNone {
		switch v.Type.Kind {
		case value.KindBool:
			c.Bool = v.Bool
		case value.KindInt:
			c.Int = v.Int
		case value.KindFloat:
			c.Float = v.Float
		case value.KindString, value.KindFile, value.KindDirectory:
			c.Str = v.Str
		case value.KindArray:
			for _, e := range v.Array {
				c.Array = append(c.Array, canonicalize(e))
			}
		case value.KindMap:
			for i := range v.MapKeys {
				c.MapKeys = append(c.MapKeys, canonicalize(v.MapKeys[i]))
				c.MapVals = append(c.MapVals, canonicalize(v.MapVals[i]))
			}
		case value.KindObject, value.KindStruct, value.KindCallOutputs:
			c.Fields = map[string]cbor.RawMessage{}
			for i, n := range v.FieldNames {
				c.Fields[n] = canonicalize(v.FieldValues[i])
			}
		case value.KindPair:
			c.Array = []cbor.RawMessage{canonicalize(*v.PairLeft), canonicalize(*v.PairRight)}
		}
	}
	out, err := canonicalEncMode.Marshal(c)
	if err != nil {
		// canonicalEntry holds only scalars, slices, and maps of
		// itself: every value the task evaluator can produce encodes.
		panic(err)
	}
	return out
}

// Mode reports whether consulting the cache at all is appropriate for
// the engine's configured CacheMode, and whether a hit may be stored.
func Mode(m config.CacheMode) (consult, store bool) {
	switch m {
	case config.CacheDisabled:
		return false, false
	case config.CacheReadOnly:
		return true, false
	default:
		return true, true
	}
}

// FileCache is a filesystem-backed Cache: each entry is one JSON file
// under root named by its key, grounded on §6.2's inputs.json/
// outputs.json JSON-on-disk convention.
type FileCache struct {
	root string
}

// NewFileCache constructs a FileCache rooted at dir, creating it if absent.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{root: dir}, nil
}

func (c *FileCache) path(key Key) string {
	return filepath.Join(c.root, string(key)+".json")
}

type fileEntry struct {
	Outputs map[string]json.RawMessage `json:"outputs"`
}

func (c *FileCache) Lookup(ctx context.Context, key Key, outputTypes map[string]value.Type, resolve value.StructResolver) (Entry, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var fe fileEntry
	if err := json.Unmarshal(data, &fe); err != nil {
		return Entry{}, false, err
	}
	outputs := make(map[string]value.Value, len(fe.Outputs))
	for name, raw := range fe.Outputs {
		t, ok := outputTypes[name]
		if !ok {
			continue // stale entry from a since-changed task signature
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return Entry{}, false, err
		}
		v, err := value.FromJSON(decoded, t, resolve, diag.Span{})
		if err != nil {
			return Entry{}, false, err
		}
		outputs[name] = v
	}
	return Entry{Outputs: outputs}, true, nil
}

func (c *FileCache) Store(ctx context.Context, key Key, entry Entry) error {
	fe := fileEntry{Outputs: map[string]json.RawMessage{}}
	for name, v := range entry.Outputs {
		j, err := value.ToJSON(v)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(j)
		if err != nil {
			return err
		}
		fe.Outputs[name] = raw
	}
	data, err := json.MarshalIndent(fe, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}

// dedupedLookup is one call's Lookup result, held long enough to hand
// the same (entry, hit, err) to every caller that joined the same
// singleflight.Group call.
type dedupedLookup struct {
	entry Entry
	hit   bool
}

// Deduped wraps a Cache so concurrent Lookups sharing the same
// fingerprint — e.g. a scatter whose iterations all resolve to an
// identical cacheable call — collapse into a single disk read instead
// of one per waiting goroutine. Store is passed through unchanged:
// only the read path benefits from coalescing identical in-flight work.
type Deduped struct {
	Cache
	group singleflight.Group
}

// NewDeduped wraps base with singleflight-coalesced Lookups.
func NewDeduped(base Cache) *Deduped {
	return &Deduped{Cache: base}
}

func (d *Deduped) Lookup(ctx context.Context, key Key, outputTypes map[string]value.Type, resolve value.StructResolver) (Entry, bool, error) {
	v, err, _ := d.group.Do(string(key), func() (any, error) {
		entry, hit, err := d.Cache.Lookup(ctx, key, outputTypes, resolve)
		if err != nil {
			return nil, err
		}
		return dedupedLookup{entry: entry, hit: hit}, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	dl := v.(dedupedLookup)
	return dl.entry, dl.hit, nil
}
