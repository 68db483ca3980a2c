// Package vault owns the save registry: the named mapping from save
// identifiers to local filesystem locations. All mutations validate first
// and leave the registry untouched on failure, so the registry never holds
// a save that violates the naming, containment or size rules.
package vault

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// MaxNameLength caps save identifier length.
	MaxNameLength = 32

	// MaxArchiveSize caps the resolved size of a save location, 128 MiB.
	MaxArchiveSize int64 = 128 * 1024 * 1024
)

// Save is a named reference to a local file or directory holding one unit of
// game-save data. Location is always stored in normalized form, so directory
// locations end with the OS separator. Saves are immutable once added.
type Save struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// IsDir reports whether the save points at a directory.
func (s Save) IsDir() bool {
	return strings.HasSuffix(s.Location, string(filepath.Separator))
}

// Registry is the collection of all known saves. It is safe for concurrent
// use; queries hand out copies, never live references.
type Registry struct {
	mu           sync.RWMutex
	saves        map[string]Save
	stagingDir   string
	packExcludes []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithStagingDir sets the base directory for extraction staging. Defaults to
// the system temp dir.
func WithStagingDir(dir string) Option {
	return func(r *Registry) {
		r.stagingDir = dir
	}
}

// WithPackExcludes sets global doublestar patterns excluded from every
// container, merged with each save's own packspec sidecar.
func WithPackExcludes(patterns ...string) Option {
	return func(r *Registry) {
		r.packExcludes = patterns
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		saves: make(map[string]Save),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a copy of the named save.
func (r *Registry) Get(name string) (Save, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	save, ok := r.saves[name]
	return save, ok
}

// Has reports whether a save with the given name exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.saves[name]
	return ok
}

// Len returns the number of saves.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.saves)
}

// Snapshot returns copies of all saves sorted by name. The slice is owned by
// the caller; later registry mutations never show through.
func (r *Registry) Snapshot() []Save {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Save {
	saves := make([]Save, 0, len(r.saves))
	for _, save := range r.saves {
		saves = append(saves, save)
	}
	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Name < saves[j].Name
	})
	return saves
}

// List returns saves whose names match the doublestar pattern, sorted by
// name. An empty pattern matches everything.
func (r *Registry) List(pattern string) ([]Save, error) {
	if pattern == "" {
		return r.Snapshot(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Save, 0, len(r.saves))
	for name, save := range r.saves {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, save)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name < matched[j].Name
	})
	return matched, nil
}
