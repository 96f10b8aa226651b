package precache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"
)

// ErrConflictingEntries means one URL appears with two revisions.
var ErrConflictingEntries = errors.New("conflicting precache entries")

// ManifestEntry is one build-time asset. A nil Revision means the URL
// itself is versioned (hashed file names).
type ManifestEntry struct {
	URL      string  `json:"url" yaml:"url"`
	Revision *string `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// UnmarshalJSON accepts either "url" or {"url": ..., "revision": ...}.
func (e *ManifestEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ManifestEntry{URL: s}
		return nil
	}
	type plain ManifestEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("manifest entry: %w", err)
	}
	*e = ManifestEntry(p)
	return nil
}

// UnmarshalYAML accepts the same two shapes as UnmarshalJSON.
func (e *ManifestEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*e = ManifestEntry{URL: value.Value}
		return nil
	}
	type plain ManifestEntry
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("manifest entry: %w", err)
	}
	*e = ManifestEntry(p)
	return nil
}

// RevisionString returns the revision or "".
func (e ManifestEntry) RevisionString() string {
	if e.Revision == nil {
		return ""
	}
	return *e.Revision
}

// Manifest is the ordered precache list.
type Manifest []ManifestEntry

// Rev is a helper for building manifests in code.
func Rev(s string) *string { return &s }

// ParseManifest decodes a JSON manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads a manifest file. A .js file is evaluated as a build
// tool's precache-manifest script, which assigns or concatenates onto
// self.__precacheManifest; anything else is parsed as JSON.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".js") {
		return evalManifestScript(filepath.Base(path), string(data))
	}
	return ParseManifest(data)
}

func evalManifestScript(name, src string) (Manifest, error) {
	vm := goja.New()
	self := vm.NewObject()
	if err := vm.Set("self", self); err != nil {
		return nil, err
	}
	if _, err := vm.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("evaluate manifest %s: %w", name, err)
	}
	v := self.Get("__precacheManifest")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("manifest %s: self.__precacheManifest is not set", name)
	}
	raw, err := json.Marshal(v.Export())
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", name, err)
	}
	return ParseManifest(raw)
}

// dedupe drops repeated identical entries and rejects a URL listed with
// different revisions. Order of first appearance is kept.
func (m Manifest) dedupe(resolve func(string) (string, error)) ([]Entry, error) {
	seen := make(map[string]string, len(m))
	out := make([]Entry, 0, len(m))
	for _, me := range m {
		if me.URL == "" {
			return nil, errors.New("manifest entry has an empty url")
		}
		abs, err := resolve(me.URL)
		if err != nil {
			return nil, err
		}
		rev := me.RevisionString()
		if prev, ok := seen[abs]; ok {
			if prev != rev {
				return nil, fmt.Errorf("%w: %s has revisions %q and %q", ErrConflictingEntries, abs, prev, rev)
			}
			continue
		}
		seen[abs] = rev
		out = append(out, Entry{URL: abs, Revision: rev, CacheKey: cacheKey(abs, rev)})
	}
	return out, nil
}
