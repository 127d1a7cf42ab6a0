package core

import (
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// Callbacks groups the typed events a Watcher subscriber reacts to. Each
// receives the fully qualified path of the artifact that changed.
type Callbacks struct {
	OnCreate      func(path string)
	OnModify      func(path string)
	OnDelete      func(path string)
	OnWriteClosed func(path string)
}

// Watcher subscribes to filesystem events on one directory, filters by a
// filename pattern, and delivers them as typed events on a single dedicated
// background goroutine. Move-into-directory operations (the normal atomic
// deployment path) are translated into OnCreate so they are never missed.
type Watcher struct {
	dir     string
	pattern *regexp.Regexp
	cb      Callbacks
	logger  hclog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewWatcher(dir string, pattern *regexp.Regexp, cb Callbacks, logger hclog.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		pattern: pattern,
		cb:      cb,
		logger:  logger.Named("watcher"),
	}
}

// Start begins delivering events. It is idempotent: calling Start twice
// without an intervening Stop is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.running = true

	go w.loop(fsw, w.done)
	return nil
}

// Stop is idempotent and joins the background goroutine before returning.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw := w.fsw
	done := w.done
	w.mu.Unlock()

	fsw.Close()
	<-done
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	if !w.pattern.MatchString(basenameOf(ev.Name)) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		// Covers both genuinely new files and atomic renames that land a
		// finished artifact into the directory in one step.
		if w.cb.OnCreate != nil {
			w.cb.OnCreate(ev.Name)
		}
	case ev.Op&fsnotify.Write == fsnotify.Write:
		if w.cb.OnModify != nil {
			w.cb.OnModify(ev.Name)
		}
	case ev.Op&fsnotify.Remove == fsnotify.Remove:
		if w.cb.OnDelete != nil {
			w.cb.OnDelete(ev.Name)
		}
	case ev.Op&fsnotify.Rename == fsnotify.Rename:
		// fsnotify reports the old name leaving under Rename; treat it as a
		// delete of that path. The new name arrives separately as Create.
		if w.cb.OnDelete != nil {
			w.cb.OnDelete(ev.Name)
		}
	case ev.Op&fsnotify.Chmod == fsnotify.Chmod:
		if w.cb.OnWriteClosed != nil {
			w.cb.OnWriteClosed(ev.Name)
		}
	}
}

func basenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
