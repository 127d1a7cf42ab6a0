package core

import (
	"sync"
	"time"
)

// Debounce tunables. All strictly positive; settle < writeWindow and
// deleteBatch < loadTimeout.
const (
	writeWindow    = 10 * time.Second
	writeGCWindow  = 60 * time.Second
	settleDelay    = 2 * time.Second
	deleteBatch    = 200 * time.Millisecond
	restoreCopyGap = 1 * time.Second
	loadTimeout    = 5 * time.Second
)

// PendingDelete is the per-Identity deletion accumulator. It lives only
// inside the Debouncer until flushed to the Controller's rollback path.
type PendingDelete struct {
	Identity        Identity
	FirstSeen       time.Time
	ArtifactPath    ArtifactPath
	BackupPath      ArtifactPath
	ArtifactDeleted bool
	BackupDeleted   bool
}

// Debouncer collapses bursts of filesystem events into the two logical
// transitions the Controller understands: a settled write on one artifact
// path, and a resolved, batched deletion of one plugin identity.
type Debouncer struct {
	now func() time.Time

	writeMu   sync.Mutex
	lastWrite map[ArtifactPath]time.Time

	deleteMu sync.Mutex
	pending  map[Identity]*pendingState
}

// pendingState pairs an accumulating PendingDelete with the resolve callback
// supplied on the first OnDelete call for that identity, so concurrent
// deletions of different identities never clobber each other's callback.
type pendingState struct {
	pd      *PendingDelete
	resolve func(*PendingDelete)
}

func NewDebouncer() *Debouncer {
	return &Debouncer{
		now:       time.Now,
		lastWrite: make(map[ArtifactPath]time.Time),
		pending:   make(map[Identity]*pendingState),
	}
}

// TryWrite reports whether an install attempt for path may proceed: at most
// one per writeWindow. A second event inside the window is dropped. Entries
// older than writeGCWindow are swept opportunistically.
func (d *Debouncer) TryWrite(path ArtifactPath) bool {
	now := d.now()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	for p, t := range d.lastWrite {
		if now.Sub(t) > writeGCWindow {
			delete(d.lastWrite, p)
		}
	}

	if last, ok := d.lastWrite[path]; ok && now.Sub(last) < writeWindow {
		return false
	}
	d.lastWrite[path] = now
	return true
}

// OnDelete registers one observed delete for identity at path. On the first
// delete for an identity a PendingDelete opens and a worker is scheduled to
// inspect it after deleteBatch. If the window has not quiesced when the
// worker wakes (it may have been reset by a racing event), the worker
// reschedules itself. resolve is called exactly once per PendingDelete, off
// the caller's goroutine.
func (d *Debouncer) OnDelete(path ArtifactPath, resolve func(*PendingDelete)) {
	identity := IdentityOf(path)
	isBackup := isBackupName(string(path))

	d.deleteMu.Lock()
	st, exists := d.pending[identity]
	if !exists {
		pd := &PendingDelete{Identity: identity, FirstSeen: d.now()}
		if isBackup {
			pd.BackupPath = path
		} else {
			pd.ArtifactPath = path
		}
		st = &pendingState{pd: pd, resolve: resolve}
		d.pending[identity] = st
	} else {
		st.pd.FirstSeen = d.now()
		if isBackup {
			st.pd.BackupPath = path
		} else {
			st.pd.ArtifactPath = path
		}
	}
	if isBackup {
		st.pd.BackupDeleted = true
	} else {
		st.pd.ArtifactDeleted = true
	}
	d.deleteMu.Unlock()

	if !exists {
		go d.inspect(identity)
	}
}

func (d *Debouncer) inspect(identity Identity) {
	time.Sleep(deleteBatch)

	for {
		d.deleteMu.Lock()
		st, ok := d.pending[identity]
		if !ok {
			d.deleteMu.Unlock()
			return
		}
		elapsed := d.now().Sub(st.pd.FirstSeen)
		if elapsed < deleteBatch {
			d.deleteMu.Unlock()
			time.Sleep(deleteBatch - elapsed)
			continue
		}
		delete(d.pending, identity)
		d.deleteMu.Unlock()

		if st.resolve != nil {
			st.resolve(st.pd)
		}
		return
	}
}

// CancelPending retires a PendingDelete without resolving it, used when a
// create/modify event for the same identity races the deletion and
// reinstalls it before the window quiesces.
func (d *Debouncer) CancelPending(identity Identity) {
	d.deleteMu.Lock()
	defer d.deleteMu.Unlock()
	delete(d.pending, identity)
}
