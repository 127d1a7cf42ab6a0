package core

import (
	"github.com/hashicorp/go-hclog"
)

// Module is the public facade of the plugin lifecycle subsystem: the single
// entry point the HTTP layer and admin API depend on, coordinating the
// Loader, Registry, Store, and Controller.
type Module struct {
	Registry   *Registry
	Backup     *Store
	Controller *Controller

	dir    string
	loader *Loader
	logger hclog.Logger
}

func NewModule(dir string, enableHotReload bool, logger hclog.Logger) *Module {
	logger = logger.Named("plugin-host")
	loader := NewLoader(logger)
	registry := NewRegistry()
	backup := NewStore(dir, logger)
	controller := NewController(dir, loader, registry, backup, enableHotReload, logger)

	return &Module{
		Registry:   registry,
		Backup:     backup,
		Controller: controller,
		dir:        dir,
		loader:     loader,
		logger:     logger,
	}
}

// PluginDir returns the directory the Controller watches, for callers that
// need to resolve a bare artifact file name (e.g. a manual reload request)
// into a full ArtifactPath.
func (m *Module) PluginDir() string {
	return m.dir
}

// Start sweeps backups, preloads the newest artifact, and, when hot reload
// is enabled, starts watching the plugin directory for changes.
func (m *Module) Start() error {
	m.logger.Info("starting plugin host module")
	return m.Controller.Start()
}

// Shutdown stops the watcher and unloads every loaded plugin.
func (m *Module) Shutdown() {
	m.logger.Info("shutting down plugin host module")
	m.Controller.Stop()
}

// GetHandler resolves the memoised Handler for the plugin registered at an
// HTTP method and path, for the server's request-dispatch handler. The
// underlying Plugin's Handler() is resolved once and cached by the
// Registry; this never calls it fresh per request.
func (m *Module) GetHandler(method, path string) (Handler, bool) {
	return m.Registry.LookupHandler(method, path)
}

// ListByCategory exposes the Registry's category query to callers that
// don't need the full core package surface (e.g. the admin API).
func (m *Module) ListByCategory(cat Category) []Plugin {
	return m.Registry.ListByCategory(cat)
}

// Entries exposes the Registry's full snapshot, for admin introspection.
func (m *Module) Entries() []*LoadedEntry {
	return m.Registry.Entries()
}

// Backups exposes the Store's tracked backup records, for admin
// introspection.
func (m *Module) Backups() []BackupInfo {
	return m.Backup.List()
}

// TriggerReload forces an immediate reload attempt for an artifact already
// present on disk at path, bypassing the write-debounce window.
func (m *Module) TriggerReload(path ArtifactPath) error {
	return m.Controller.TriggerReload(path)
}
