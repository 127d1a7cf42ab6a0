package core

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// errRestoreInProgress is returned by TriggerReload while the Controller is
// mid-restore-loop and cannot accept a manual reload request.
var errRestoreInProgress = errors.New("controller: restore loop in progress")

// state is the Controller's own small state machine. While Restoring, every
// incoming watcher event is dropped; the restore loop itself drives all
// activity until it returns to Idle.
type state int

const (
	stateIdle state = iota
	stateRestoring
)

// ObserverCallbacks are fired synchronously on whichever goroutine drives a
// transition (a debounce worker, Start's preload, or a TriggerReload caller),
// letting an observer (e.g. the admin websocket stream)
// narrate what happened without polling the Registry.
type ObserverCallbacks struct {
	OnInstall        func(path ArtifactPath)
	OnReplace        func(oldPath, newPath ArtifactPath)
	OnRestoreEnter   func()
	OnRestoreExit    func(recovered bool)
	OnRollbackFailed func(identity Identity)
	OnDropped        func(path ArtifactPath, reason string)
}

// Controller composes the Loader, Registry, Watcher, Store and Debouncer
// into the filesystem-driven state machine that decides, for each debounced
// event, whether to load, replace, unload, or restore.
type Controller struct {
	dir     string
	pattern *regexp.Regexp

	loader    opener
	registry  *Registry
	backup    *Store
	debouncer *Debouncer
	watcher   *Watcher
	logger    hclog.Logger

	// hotReloadEnabled gates only the filesystem watch: preload and
	// TriggerReload still run with it false, since those are the explicit
	// startup/manual paths, not automatic reaction to disk changes.
	hotReloadEnabled bool

	cb ObserverCallbacks

	mu    sync.Mutex
	state state
}

// ArtifactPattern matches the live-artifact naming convention: <name>_<tag>.so.
// Backups (<name>_<tag>.so.backup) are intentionally excluded — they are
// never watched as install candidates, only consulted by the backup store
// and the restore/delete-batch paths.
var ArtifactPattern = regexp.MustCompile(`^.+_[^_/.]+\.so$`)

func NewController(dir string, loader opener, registry *Registry, backup *Store, enableHotReload bool, logger hclog.Logger) *Controller {
	c := &Controller{
		dir:              dir,
		pattern:          ArtifactPattern,
		loader:           loader,
		registry:         registry,
		backup:           backup,
		debouncer:        NewDebouncer(),
		logger:           logger.Named("controller"),
		hotReloadEnabled: enableHotReload,
		state:            stateIdle,
	}
	c.watcher = NewWatcher(dir, anyArtifactOrBackup, Callbacks2Watcher(c), logger)
	return c
}

// anyArtifactOrBackup matches both live artifacts and backups, because the
// Debouncer's delete-batch path needs delete events for both names.
var anyArtifactOrBackup = regexp.MustCompile(`\.so(\.backup)?$`)

// Callbacks2Watcher wires all four watcher channels into the same
// write-settled / delete handling the Controller exposes: create, modify,
// and write-closed all funnel into one handler, since any of them can be
// the event that actually carries a completed write.
func Callbacks2Watcher(c *Controller) Callbacks {
	return Callbacks{
		OnCreate:      c.handleWriteEvent,
		OnModify:      c.handleWriteEvent,
		OnWriteClosed: c.handleWriteEvent,
		OnDelete:      c.handleDeleteEvent,
	}
}

// SetCallbacks installs the observer hooks. Must be called before Start.
func (c *Controller) SetCallbacks(cb ObserverCallbacks) { c.cb = cb }

// Start creates dir if missing, sweeps stale backups, attempts the single
// explicit preload (newest-mtime artifact), then starts the watcher — unless
// hot reload is disabled, in which case the directory is never watched and
// the installed set stays exactly what preload produced until a manual
// TriggerReload.
func (c *Controller) Start() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	if err := c.backup.Sweep(); err != nil {
		c.logger.Warn("backup sweep failed", "error", err)
	}

	c.preload()

	if !c.hotReloadEnabled {
		c.logger.Info("hot reload disabled, not watching plugin directory", "dir", c.dir)
		return nil
	}

	return c.watcher.Start()
}

// Stop stops the watcher, if it was started, and drops every LoadedEntry,
// running each one's destruction sequence before closing the Loader.
func (c *Controller) Stop() {
	if c.hotReloadEnabled {
		c.watcher.Stop()
	}

	for _, entry := range c.registry.Entries() {
		c.registry.Remove(entry.Path)
		destroy(entry, c.loader)
	}
	c.loader.Close()
}

func (c *Controller) preload() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("preload: read dir failed", "error", err)
		return
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !ArtifactPattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = e.Name()
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return
	}

	path := ArtifactPath(filepath.Join(c.dir, newest))
	p, err := c.loadTimed(path)
	if err != nil {
		c.logger.Warn("preload failed", "path", path, "error", err)
		return
	}
	ep, ok := p.(EndpointPlugin)
	if !ok {
		c.logger.Warn("preload artifact is not an endpoint plugin", "path", path)
		return
	}
	if err := p.Initialize(); err != nil {
		c.logger.Warn("preload initialize failed", "path", path, "error", err)
		return
	}
	if c.registry.Install(path, ep) {
		c.backup.Snapshot(path)
		c.fire(func() {
			if c.cb.OnInstall != nil {
				c.cb.OnInstall(path)
			}
		})
	}
}

func (c *Controller) isIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateIdle
}

func (c *Controller) handleWriteEvent(rawPath string) {
	if !c.isIdle() {
		return
	}
	if !c.pattern.MatchString(filepath.Base(rawPath)) {
		return
	}
	path := ArtifactPath(rawPath)

	// A write reinstalls this identity: whatever delete batch was
	// accumulating for it is stale and must not fire blind once the
	// window quiesces.
	c.debouncer.CancelPending(IdentityOf(path))

	if !c.debouncer.TryWrite(path) {
		return
	}

	go func() {
		time.Sleep(settleDelay)
		c.writeSettled(path)
	}()
}

func (c *Controller) handleDeleteEvent(rawPath string) {
	if !c.isIdle() {
		return
	}
	path := ArtifactPath(rawPath)
	c.debouncer.OnDelete(path, func(pd *PendingDelete) {
		if !c.isIdle() {
			return
		}
		c.deleteBatchResolved(pd)
	})
}

// TriggerReload forces an immediate re-evaluation of path, bypassing the
// write-debounce window entirely. It is the synchronous path the admin API
// uses for a manual reload request: the caller gets the outcome (install,
// replace, drop, or restore-loop entry) as soon as it happens rather than
// having to poll the Registry afterward. It returns an error only when the
// Controller cannot accept it at all (currently mid-restore); any failure
// to load or install the artifact itself is reported through
// ObserverCallbacks, the same as a filesystem-triggered reload.
func (c *Controller) TriggerReload(path ArtifactPath) error {
	if !c.isIdle() {
		return errRestoreInProgress
	}
	c.writeSettled(path)
	return nil
}

// writeSettled runs once a debounced write on path has quiesced: load the
// candidate, then install, replace, or drop it depending on what else is
// already registered for its endpoint and identity.
func (c *Controller) writeSettled(path ArtifactPath) {
	if !c.isIdle() {
		return
	}

	p, err := c.loadTimed(path)
	if err != nil || !isEndpointPlugin(p) {
		if c.hasInstalledIdentity(IdentityOf(path)) {
			c.enterRestoreLoop()
			return
		}
		c.drop(path, "load failed with no prior working version")
		return
	}
	ep := p.(EndpointPlugin)

	conflictPath, hasConflict := c.registry.FindEndpointConflict(ep.Method(), ep.Path())
	if !hasConflict {
		if err := p.Initialize(); err != nil {
			c.drop(path, "initialize failed")
			return
		}
		if !c.registry.Install(path, ep) {
			c.drop(path, "install raced with a concurrent conflict")
			return
		}
		c.backup.Snapshot(path)
		c.fire(func() {
			if c.cb.OnInstall != nil {
				c.cb.OnInstall(path)
			}
		})
		return
	}

	if conflictPath == path {
		return
	}

	newer, err := mtimeAfter(path, conflictPath)
	if err != nil {
		c.drop(path, "could not stat candidates")
		return
	}
	if !newer {
		c.drop(path, "older than installed conflict")
		return
	}

	if err := p.Initialize(); err != nil {
		c.drop(path, "initialize failed")
		return
	}

	c.backup.Snapshot(path)
	c.unloadTimed(conflictPath)

	// Re-attempt load: the Loader memoises by canonical path, so if path
	// was already open this returns the same instance; it only fails if
	// the artifact has since vanished or changed underneath us.
	p2, err := c.loadTimed(path)
	if err != nil || !isEndpointPlugin(p2) {
		c.enterRestoreLoop()
		return
	}

	c.registry.Replace(path, p2)
	c.fire(func() {
		if c.cb.OnReplace != nil {
			c.cb.OnReplace(conflictPath, path)
		}
	})
}

// deleteBatchResolved runs once a batch of delete events for one identity
// has quiesced: it tries every surviving live candidate for that identity
// before falling back to restoring from a backup copy.
func (c *Controller) deleteBatchResolved(pd *PendingDelete) {
	if pd.ArtifactPath != "" {
		if entry, ok := c.registry.Remove(pd.ArtifactPath); ok {
			destroy(entry, c.loader)
		}
	}
	if pd.BackupPath != "" {
		c.backup.Forget(pd.BackupPath)
	}

	candidates, err := c.backup.Candidates()
	if err != nil {
		c.logger.Warn("delete-batch: candidates failed", "error", err)
		return
	}

	var survivors []ArtifactPath
	for _, cand := range candidates {
		if IdentityOf(cand) != pd.Identity {
			continue
		}
		if cand == pd.ArtifactPath || cand == pd.BackupPath {
			continue
		}
		survivors = append(survivors, cand)
	}

	for _, cand := range survivors {
		if isBackupName(string(cand)) {
			continue
		}
		p, err := c.loadTimed(cand)
		if err != nil || !isEndpointPlugin(p) {
			continue
		}
		if err := p.Initialize(); err != nil {
			continue
		}
		if c.registry.Install(cand, p.(EndpointPlugin)) {
			c.fire(func() {
				if c.cb.OnInstall != nil {
					c.cb.OnInstall(cand)
				}
			})
			return
		}
	}

	for _, cand := range survivors {
		if !isBackupName(string(cand)) {
			continue
		}
		if !IntegrityOK(cand) {
			continue
		}
		live := ArtifactPath(stripBackupSuffix(string(cand)))
		if err := copyFile(string(cand), string(live)); err != nil {
			continue
		}
		time.Sleep(restoreCopyGap)

		p, err := c.loadTimed(live)
		if err != nil || !isEndpointPlugin(p) {
			os.Remove(string(live))
			continue
		}
		if err := p.Initialize(); err != nil {
			os.Remove(string(live))
			continue
		}
		if c.registry.Install(live, p.(EndpointPlugin)) {
			c.fire(func() {
				if c.cb.OnInstall != nil {
					c.cb.OnInstall(live)
				}
			})
			return
		}
		os.Remove(string(live))
	}

	c.logger.Info("delete batch resolved with no surviving candidate", "identity", pd.Identity)
	c.fire(func() {
		if c.cb.OnRollbackFailed != nil {
			c.cb.OnRollbackFailed(pd.Identity)
		}
	})
}

// enterRestoreLoop drives recovery after a new candidate for an already
// installed identity fails to load, or a replace fails after the old entry
// was unloaded. If the old entry is still installed the loop keeps it.
// Entry and exit are atomic with respect
// to event intake: while Restoring, handleWriteEvent and handleDeleteEvent
// both drop everything they see.
func (c *Controller) enterRestoreLoop() {
	c.mu.Lock()
	c.state = stateRestoring
	c.mu.Unlock()
	c.fire(func() {
		if c.cb.OnRestoreEnter != nil {
			c.cb.OnRestoreEnter()
		}
	})

	recovered := c.restoreOnce()

	c.mu.Lock()
	c.state = stateIdle
	c.mu.Unlock()
	c.fire(func() {
		if c.cb.OnRestoreExit != nil {
			c.cb.OnRestoreExit(recovered)
		}
	})
}

func (c *Controller) restoreOnce() bool {
	candidates, err := c.backup.Candidates()
	if err != nil {
		c.logger.Warn("restore: candidates failed", "error", err)
		return false
	}

	for _, cand := range candidates {
		live := cand
		fromBackup := isBackupName(string(cand))

		if !IntegrityOK(cand) {
			continue
		}

		if fromBackup {
			live = ArtifactPath(stripBackupSuffix(string(cand)))
		}
		// An entry already installed at live is the Loader's memoised,
		// already-initialised instance; loading it again would hand back
		// that same instance and call Initialize on it a second time.
		if _, ok := c.registry.GetByPath(live); ok {
			c.logger.Info("restore loop kept the installed plugin", "path", live)
			return true
		}

		if fromBackup {
			if err := copyFile(string(cand), string(live)); err != nil {
				continue
			}
			time.Sleep(200 * time.Millisecond)
		}

		p, err := c.loadTimed(live)
		if err != nil || !isEndpointPlugin(p) {
			if fromBackup {
				os.Remove(string(live))
			}
			continue
		}
		if err := p.Initialize(); err != nil {
			if fromBackup {
				os.Remove(string(live))
			}
			continue
		}

		if old, ok := c.registry.GetByPath(live); ok {
			_ = old
			c.registry.Replace(live, p)
		} else {
			c.registry.Install(live, p.(EndpointPlugin))
		}
		c.logger.Info("restore loop recovered a working plugin", "path", live)
		return true
	}

	return false
}

func (c *Controller) drop(path ArtifactPath, reason string) {
	c.logger.Info("dropped event", "path", path, "reason", reason)
	c.fire(func() {
		if c.cb.OnDropped != nil {
			c.cb.OnDropped(path, reason)
		}
	})
}

func (c *Controller) hasInstalledIdentity(identity Identity) bool {
	for _, entry := range c.registry.Entries() {
		if IdentityOf(entry.Path) == identity {
			return true
		}
	}
	return false
}

func (c *Controller) fire(f func()) {
	if f != nil {
		f()
	}
}

func (c *Controller) loadTimed(path ArtifactPath) (Plugin, error) {
	var p Plugin
	err := runWithTimeout(path, loadTimeout, func(flag *cancelFlag) error {
		if flag.Stopped() {
			return &TimeoutError{Path: path}
		}
		var e error
		p, e = c.loader.Load(path)
		return e
	})
	return p, err
}

func (c *Controller) unloadTimed(path ArtifactPath) {
	_ = runWithTimeout(path, loadTimeout, func(flag *cancelFlag) error {
		if flag.Stopped() {
			return nil
		}
		if entry, ok := c.registry.Remove(path); ok {
			destroy(entry, c.loader)
		}
		return nil
	})
}

func isEndpointPlugin(p Plugin) bool {
	if p == nil {
		return false
	}
	_, ok := p.(EndpointPlugin)
	return ok
}

// destroy runs the mandatory destruction sequence: drop the memoised
// handler, then cleanup(), then ask the Loader to forget the Handle.
func destroy(entry *LoadedEntry, loader opener) {
	entry.dropHandlerCache()
	if err := entry.Plugin.Cleanup(); err != nil {
		_ = err // cleanup errors never cross the ABI boundary; best-effort only.
	}
	loader.Unload(entry.Path)
}

func mtimeAfter(a, b ArtifactPath) (bool, error) {
	ai, err := os.Stat(string(a))
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(string(b))
	if err != nil {
		return false, err
	}
	return ai.ModTime().After(bi.ModTime()), nil
}
