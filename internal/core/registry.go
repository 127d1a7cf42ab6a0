package core

import (
	"sync"
)

// endpointKey is the (method, path) pair the conflict rule is enforced over.
type endpointKey struct {
	method string
	path   string
}

// LoadedEntry is the unit of truth the Registry holds: one per ArtifactPath.
type LoadedEntry struct {
	Path   ArtifactPath
	Plugin Plugin

	handlerMu sync.Mutex
	handler   Handler
}

// handlerCached resolves the memoised Handler for an EndpointPlugin entry,
// calling Plugin.Handler() once on first use and reusing the result for
// every later request until dropHandlerCache invalidates it.
func (e *LoadedEntry) handlerCached() (Handler, bool) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()

	if e.handler != nil {
		return e.handler, true
	}
	ep, ok := e.Plugin.(EndpointPlugin)
	if !ok {
		return nil, false
	}
	e.handler = ep.Handler()
	return e.handler, true
}

// dropHandlerCache invalidates the memoised Handler. It is the first step
// of an entry's destruction sequence, run before Cleanup.
func (e *LoadedEntry) dropHandlerCache() {
	e.handlerMu.Lock()
	e.handler = nil
	e.handlerMu.Unlock()
}

// Registry is the live routing table: the mapping from artifact path to
// loaded plugin, plus the query surface by category and by (method, path).
// Write operations are serialised under a single lock; reads take the same
// lock briefly and return a Plugin reference the caller can hold for the
// duration of one request without fear of a concurrent removal dangling it,
// since closing over the returned Plugin value is all a reader ever does.
type Registry struct {
	mu       sync.RWMutex
	byPath   map[ArtifactPath]*LoadedEntry
	byEndpoint map[endpointKey]ArtifactPath
}

func NewRegistry() *Registry {
	return &Registry{
		byPath:     make(map[ArtifactPath]*LoadedEntry),
		byEndpoint: make(map[endpointKey]ArtifactPath),
	}
}

// FindEndpointConflict returns the ArtifactPath of an existing Endpoint
// entry already serving (method, path), if any.
func (r *Registry) FindEndpointConflict(method, path string) (ArtifactPath, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byEndpoint[endpointKey{method, path}]
	return p, ok
}

// Install adds a new LoadedEntry. It returns false without mutating
// anything if path is already installed, or if an Endpoint plugin conflicts
// with an existing (method, path) pair under a different path.
func (r *Registry) Install(path ArtifactPath, p Plugin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPath[path]; exists {
		return false
	}

	var key endpointKey
	isEndpoint := false
	if ep, ok := p.(EndpointPlugin); ok {
		isEndpoint = true
		key = endpointKey{ep.Method(), ep.Path()}
		if existing, conflict := r.byEndpoint[key]; conflict && existing != path {
			return false
		}
	}

	r.byPath[path] = &LoadedEntry{Path: path, Plugin: p}
	if isEndpoint {
		r.byEndpoint[key] = path
	}
	return true
}

// Replace atomically swaps the LoadedEntry at path, removing any
// (method, path) endpoint mapping the old entry held and installing the new
// one's. Replace does not itself run Cleanup/Close — the caller drives that
// destruction sequence before or after, per the Controller's ordering.
func (r *Registry) Replace(path ArtifactPath, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byPath[path]; ok {
		if ep, ok := old.Plugin.(EndpointPlugin); ok {
			delete(r.byEndpoint, endpointKey{ep.Method(), ep.Path()})
		}
	}

	r.byPath[path] = &LoadedEntry{Path: path, Plugin: p}
	if ep, ok := p.(EndpointPlugin); ok {
		r.byEndpoint[endpointKey{ep.Method(), ep.Path()}] = path
	}
}

// Remove deletes the entry at path, if present, and returns it so the
// caller can run its destruction sequence (drop handler cache, cleanup,
// drop Plugin reference, close Handle) outside the lock.
func (r *Registry) Remove(path ArtifactPath) (*LoadedEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	delete(r.byPath, path)
	if ep, ok := entry.Plugin.(EndpointPlugin); ok {
		if cur, ok := r.byEndpoint[endpointKey{ep.Method(), ep.Path()}]; ok && cur == path {
			delete(r.byEndpoint, endpointKey{ep.Method(), ep.Path()})
		}
	}
	return entry, true
}

// GetByPath returns the Plugin loaded at path, if any.
func (r *Registry) GetByPath(path ArtifactPath) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	return entry.Plugin, true
}

// ListByCategory returns every loaded Plugin with the given category.
func (r *Registry) ListByCategory(cat Category) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Plugin
	for _, entry := range r.byPath {
		if entry.Plugin.Category() == cat {
			out = append(out, entry.Plugin)
		}
	}
	return out
}

// LookupEndpoint is the interface the HTTP layer uses: find the Plugin
// serving (method, path), or nothing. Either the entry is fully installed
// (initialised, handler available) or it is absent — there is no
// partially-visible state.
func (r *Registry) LookupEndpoint(method, path string) (EndpointPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	artifactPath, ok := r.byEndpoint[endpointKey{method, path}]
	if !ok {
		return nil, false
	}
	entry, ok := r.byPath[artifactPath]
	if !ok {
		return nil, false
	}
	ep, ok := entry.Plugin.(EndpointPlugin)
	return ep, ok
}

// LookupHandler resolves the memoised Handler for the EndpointPlugin
// serving (method, path), for the HTTP dispatch layer. The underlying
// Plugin's Handler() is invoked at most once per entry; every call here
// after the first reuses the cached closure.
func (r *Registry) LookupHandler(method, path string) (Handler, bool) {
	r.mu.RLock()
	artifactPath, ok := r.byEndpoint[endpointKey{method, path}]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	entry, ok := r.byPath[artifactPath]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.handlerCached()
}

// Entries returns a snapshot of every LoadedEntry, for admin introspection.
func (r *Registry) Entries() []*LoadedEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*LoadedEntry, 0, len(r.byPath))
	for _, entry := range r.byPath {
		out = append(out, entry)
	}
	return out
}
