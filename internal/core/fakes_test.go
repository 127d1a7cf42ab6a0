package core

import (
	"fmt"
	"sync"
)

// fakePlugin is a minimal, test-only implementation of EndpointPlugin that
// never touches the dynamic linker.
type fakePlugin struct {
	name         string
	method       string
	path         string
	initErr      error
	cleanupErr   error
	initialized  bool
	cleaned      bool
	handler      Handler
	handlerCalls int
}

func (p *fakePlugin) Name() string     { return p.name }
func (p *fakePlugin) Category() Category { return CategoryEndpoint }
func (p *fakePlugin) Method() string   { return p.method }
func (p *fakePlugin) Path() string     { return p.path }

func (p *fakePlugin) Initialize() error {
	p.initialized = true
	return p.initErr
}

func (p *fakePlugin) Cleanup() error {
	p.cleaned = true
	return p.cleanupErr
}

func (p *fakePlugin) Handler() Handler {
	p.handlerCalls++
	if p.handler != nil {
		return p.handler
	}
	return func(r Request) Response { return Response{Status: 200, Body: "ok from " + p.name} }
}

var _ EndpointPlugin = (*fakePlugin)(nil)

// fakeLoader implements the opener interface with preconfigured responses
// per path, so Controller tests never need a real .so file.
type fakeLoader struct {
	mu        sync.Mutex
	plugins   map[ArtifactPath]Plugin
	loadErr   map[ArtifactPath]error
	unloaded  []ArtifactPath
	loadCalls map[ArtifactPath]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		plugins:   make(map[ArtifactPath]Plugin),
		loadErr:   make(map[ArtifactPath]error),
		loadCalls: make(map[ArtifactPath]int),
	}
}

func (f *fakeLoader) Load(path ArtifactPath) (Plugin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loadCalls[path]++
	if err, ok := f.loadErr[path]; ok {
		return nil, err
	}
	if p, ok := f.plugins[path]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("fakeLoader: no plugin configured for %s", path)
}

// Unload only records that the Controller asked to forget path. It
// deliberately leaves any configured plugin in place, since a path can be
// reloaded after Unload if the underlying artifact is rewritten (e.g. a
// restore copying a backup back over the live name) — mirroring how the
// real Loader's canonical-path memo behaves across an unload/reload cycle.
func (f *fakeLoader) Unload(path ArtifactPath) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloaded = append(f.unloaded, path)
}

func (f *fakeLoader) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plugins = make(map[ArtifactPath]Plugin)
}

var _ opener = (*fakeLoader)(nil)
