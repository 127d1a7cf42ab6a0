package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func writeFakeELF(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	copy(data, []byte{0x7F, 'E', 'L', 'F'})
	require.NoError(t, os.WriteFile(path, data, 0o755))
}

func TestIntegrityOK(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.so")
	writeFakeELF(t, good, 128)
	require.True(t, IntegrityOK(ArtifactPath(good)))

	tooSmall := filepath.Join(dir, "small.so")
	writeFakeELF(t, tooSmall, 32)
	require.False(t, IntegrityOK(ArtifactPath(tooSmall)))

	notELF := filepath.Join(dir, "notelf.so")
	require.NoError(t, os.WriteFile(notELF, make([]byte, 128), 0o644))
	require.False(t, IntegrityOK(ArtifactPath(notELF)))

	require.False(t, IntegrityOK(ArtifactPath(filepath.Join(dir, "missing.so"))))
}

func TestStoreSnapshotEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	logger := hclog.NewNullLogger()
	store := NewStore(dir, logger)

	a := filepath.Join(dir, "a_1.so")
	b := filepath.Join(dir, "b_1.so")
	c := filepath.Join(dir, "c_1.so")
	writeFakeELF(t, a, 128)
	writeFakeELF(t, b, 128)
	writeFakeELF(t, c, 128)

	_, err := store.Snapshot(ArtifactPath(a))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.Snapshot(ArtifactPath(b))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.Snapshot(ArtifactPath(c))
	require.NoError(t, err)

	store.mu.Lock()
	n := len(store.deque)
	store.mu.Unlock()
	require.LessOrEqual(t, n, MaxBackups)

	_, err = os.Stat(a + ".backup")
	require.Error(t, err, "oldest backup should have been evicted")

	_, err = os.Stat(c + ".backup")
	require.NoError(t, err, "newest backup should survive")
}

func TestStoreSnapshotTwiceLeavesOneBackup(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, hclog.NewNullLogger())

	a := filepath.Join(dir, "a_1.so")
	writeFakeELF(t, a, 128)

	_, err := store.Snapshot(ArtifactPath(a))
	require.NoError(t, err)
	_, err = store.Snapshot(ArtifactPath(a))
	require.NoError(t, err)

	store.mu.Lock()
	n := len(store.deque)
	store.mu.Unlock()
	require.Equal(t, 1, n)
}

func TestStoreSweepKeepsNewestPerIdentity(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "a_100.so.backup")
	newer := filepath.Join(dir, "a_200.so.backup")
	writeFakeELF(t, old, 128)
	time.Sleep(10 * time.Millisecond)
	writeFakeELF(t, newer, 128)

	store := NewStore(dir, hclog.NewNullLogger())
	require.NoError(t, store.Sweep())

	_, err := os.Stat(old)
	require.Error(t, err, "older backup for the same identity should be swept")

	_, err = os.Stat(newer)
	require.NoError(t, err)
}

func TestStoreCandidatesSortedByModTimeDescending(t *testing.T) {
	dir := t.TempDir()

	first := filepath.Join(dir, "a_1.so")
	second := filepath.Join(dir, "a_2.so.backup")
	writeFakeELF(t, first, 128)
	time.Sleep(10 * time.Millisecond)
	writeFakeELF(t, second, 128)

	store := NewStore(dir, hclog.NewNullLogger())
	candidates, err := store.Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, ArtifactPath(second), candidates[0])
}
