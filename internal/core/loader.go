//go:build linux || darwin

package core

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// opener abstracts plugin.Open/Lookup so the Controller can be tested with a
// fake loader that never touches the dynamic linker.
type opener interface {
	Load(path ArtifactPath) (Plugin, error)
	Unload(path ArtifactPath)
	Close()
}

// handle pairs the OS handle's memoised Plugin with a refcount-free lifetime
// discipline: unload drops the Plugin reference, then the library stays
// resident (the Go runtime never actually closes a plugin.Plugin; the
// discipline we enforce is calling cleanup() before forgetting it, so no
// Plugin reference derived from a Handle is ever used after that Handle is
// considered closed).
type handle struct {
	lib    *plugin.Plugin
	plugin Plugin
}

// Loader translates an ArtifactPath into a Plugin, memoising by canonical
// absolute path so that two loads of the same file never produce two
// independent instances sharing one process-global dynamic-linker slot.
type Loader struct {
	logger hclog.Logger

	mu      sync.Mutex
	handles map[ArtifactPath]*handle
}

func NewLoader(logger hclog.Logger) *Loader {
	return &Loader{
		logger:  logger.Named("loader"),
		handles: make(map[ArtifactPath]*handle),
	}
}

// Load opens path with immediate symbol resolution, resolves FactorySymbol,
// and obtains a Plugin instance. A previously loaded path returns the
// cached instance instead of re-opening the library.
func (l *Loader) Load(path ArtifactPath) (Plugin, error) {
	canon, err := canonicalPath(path)
	if err != nil {
		return nil, newLoadError(string(path), FileNotFound, err)
	}
	path = canon

	l.mu.Lock()
	if h, ok := l.handles[path]; ok {
		l.mu.Unlock()
		l.logger.Debug("returning memoised plugin", "path", path)
		return h.plugin, nil
	}
	l.mu.Unlock()

	if _, err := os.Stat(string(path)); err != nil {
		return nil, newLoadError(string(path), FileNotFound, err)
	}

	lib, err := plugin.Open(string(path))
	if err != nil {
		return nil, newLoadError(string(path), OpenFailed, err)
	}

	sym, err := lib.Lookup(FactorySymbol)
	if err != nil {
		return nil, newLoadError(string(path), SymbolMissing, err)
	}

	factory, ok := sym.(func() Plugin)
	if !ok {
		return nil, newLoadError(string(path), FactorySignatureBad,
			fmt.Errorf("%s has type %T, want func() Plugin", FactorySymbol, sym))
	}

	p := factory()
	if p == nil {
		return nil, newLoadError(string(path), FactoryReturnedNull, nil)
	}

	l.mu.Lock()
	l.handles[path] = &handle{lib: lib, plugin: p}
	l.mu.Unlock()

	l.logger.Info("loaded plugin artifact", "path", path, "name", p.Name(), "category", p.Category())
	return p, nil
}

// Unload drops the memoised entry for path. It is idempotent on unknown
// paths. The caller is responsible for having already called Cleanup() on
// the Plugin before Unload is invoked; Unload itself only forgets the
// handle so a later Load re-opens the library.
func (l *Loader) Unload(path ArtifactPath) {
	canon, err := canonicalPath(path)
	if err == nil {
		path = canon
	}

	l.mu.Lock()
	h, ok := l.handles[path]
	if ok {
		delete(l.handles, path)
	}
	l.mu.Unlock()

	if ok {
		l.logger.Info("unloaded plugin artifact", "path", path, "name", h.plugin.Name())
	}
}

// Close forgets every handle without calling Cleanup on any Plugin. Plugins
// opened with the stdlib plugin package cannot be dlclose'd from Go; the
// Controller runs each installed entry's destruction sequence before it
// calls Close at shutdown.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles = make(map[ArtifactPath]*handle)
}

func canonicalPath(path ArtifactPath) (ArtifactPath, error) {
	abs, err := filepath.Abs(string(path))
	if err != nil {
		return "", err
	}
	return ArtifactPath(abs), nil
}

var _ opener = (*Loader)(nil)
