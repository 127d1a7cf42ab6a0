package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// MaxBackups is the global bound on how many .backup files the store keeps
// at once.
const MaxBackups = 2

// elfMagic is the first four bytes of a valid ELF shared object.
var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// minIntegrityBytes is the smallest size a candidate may be and still pass
// the precheck.
const minIntegrityBytes = 64

// backupRecord tracks one surviving backup file, ordered by insertion so
// eviction can pick the oldest.
type backupRecord struct {
	identity Identity
	path     ArtifactPath
	inserted time.Time
}

// Store preserves recent binary history so a broken artifact can be rolled
// back. It holds at most MaxBackups files globally and at most one per
// PluginIdentity.
type Store struct {
	dir    string
	logger hclog.Logger

	mu      sync.Mutex
	deque   []backupRecord // oldest first
}

func NewStore(dir string, logger hclog.Logger) *Store {
	return &Store{dir: dir, logger: logger.Named("backup-store")}
}

// Snapshot copies path to path+".backup" (overwriting any prior backup of
// the same file), then reconciles the deque so at most one entry per
// Identity remains and the deque length stays within MaxBackups, evicting
// oldest-inserted-first.
func (s *Store) Snapshot(path ArtifactPath) (ArtifactPath, error) {
	dst := backupPathFor(path)
	if err := copyFile(string(path), string(dst)); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", path, err)
	}

	identity := IdentityOf(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.deque[:0:0]
	for _, rec := range s.deque {
		if rec.identity == identity {
			continue // superseded by the new snapshot for this identity
		}
		kept = append(kept, rec)
	}
	kept = append(kept, backupRecord{identity: identity, path: dst, inserted: time.Now()})

	for len(kept) > MaxBackups {
		evicted := kept[0]
		kept = kept[1:]
		if evicted.path != dst {
			if err := os.Remove(string(evicted.path)); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to evict backup", "path", evicted.path, "error", err)
			}
		}
	}
	s.deque = kept

	s.logger.Info("snapshot created", "artifact", path, "backup", dst, "identity", identity)
	return dst, nil
}

// Sweep scans dir for every .backup file, groups them by PluginIdentity,
// keeps only the newest per identity, and deletes the rest. Called once at
// startup before the deque is populated from disk reality.
func (s *Store) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sweep: read dir: %w", err)
	}

	newest := make(map[Identity]string) // identity -> basename
	newestMod := make(map[Identity]time.Time)

	for _, e := range entries {
		if e.IsDir() || !isBackupName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := IdentityOf(ArtifactPath(e.Name()))
		if cur, ok := newestMod[id]; !ok || info.ModTime().After(cur) {
			newest[id] = e.Name()
			newestMod[id] = info.ModTime()
		}
	}

	s.mu.Lock()
	s.deque = s.deque[:0]
	for id, name := range newest {
		full := filepath.Join(s.dir, name)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		s.deque = append(s.deque, backupRecord{identity: id, path: ArtifactPath(full), inserted: info.ModTime()})
	}
	sort.Slice(s.deque, func(i, j int) bool { return s.deque[i].inserted.Before(s.deque[j].inserted) })
	for len(s.deque) > MaxBackups {
		s.deque = s.deque[1:]
	}
	s.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() || !isBackupName(e.Name()) {
			continue
		}
		id := IdentityOf(ArtifactPath(e.Name()))
		if newest[id] != e.Name() {
			full := filepath.Join(s.dir, e.Name())
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove stale backup during sweep", "path", full, "error", err)
			} else {
				s.logger.Info("removed stale backup", "path", full)
			}
		}
	}

	return nil
}

// Candidates yields every .so and .so.backup file in dir sorted by
// modification time descending, for the Controller's restore loop and
// delete-batch resolution.
func (s *Store) Candidates() ([]ArtifactPath, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("candidates: read dir: %w", err)
	}

	type withMod struct {
		path ArtifactPath
		mod  time.Time
	}
	var all []withMod
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isBackupName(name) && filepath.Ext(name) != ".so" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		all = append(all, withMod{path: ArtifactPath(filepath.Join(s.dir, name)), mod: info.ModTime()})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].mod.After(all[j].mod) })

	out := make([]ArtifactPath, len(all))
	for i, w := range all {
		out[i] = w.path
	}
	return out, nil
}

// IntegrityOK runs the precheck used on restore paths: a file qualifies
// only if it is at least minIntegrityBytes long and begins with the ELF
// magic number.
func IntegrityOK(path ArtifactPath) bool {
	f, err := os.Open(string(path))
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() < minIntegrityBytes {
		return false
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic == elfMagic
}

// Forget drops the record for path from the deque, if tracked. It does not
// touch the file on disk; the delete-batch path uses it for a backup whose
// file has already been deleted.
func (s *Store) Forget(path ArtifactPath) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.deque[:0:0]
	for _, rec := range s.deque {
		if rec.path != path {
			kept = append(kept, rec)
		}
	}
	s.deque = kept
}

// BackupInfo is the admin-facing view of one tracked backup record.
type BackupInfo struct {
	Identity Identity
	Path     ArtifactPath
	Inserted time.Time
}

// List returns a snapshot of every backup currently tracked in the deque,
// for the admin API's backup listing endpoint.
func (s *Store) List() []BackupInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BackupInfo, len(s.deque))
	for i, rec := range s.deque {
		out[i] = BackupInfo{Identity: rec.identity, Path: rec.path, Inserted: rec.inserted}
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
