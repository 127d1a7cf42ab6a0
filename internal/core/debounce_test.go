package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerTryWriteDropsWithinWindow(t *testing.T) {
	d := NewDebouncer()
	now := time.Now()
	d.now = func() time.Time { return now }

	require.True(t, d.TryWrite("/plugins/hello_100.so"))
	require.False(t, d.TryWrite("/plugins/hello_100.so"), "second attempt inside the window must be dropped")

	now = now.Add(writeWindow + time.Millisecond)
	require.True(t, d.TryWrite("/plugins/hello_100.so"), "attempt outside the window must be allowed")
}

func TestDebouncerTryWriteIsPerPath(t *testing.T) {
	d := NewDebouncer()
	require.True(t, d.TryWrite("/plugins/a_1.so"))
	require.True(t, d.TryWrite("/plugins/b_1.so"), "distinct paths must not share a window")
}

func TestDebouncerOnDeleteBatchesWithinWindow(t *testing.T) {
	d := NewDebouncer()

	var mu sync.Mutex
	var resolved *PendingDelete
	done := make(chan struct{})

	resolve := func(pd *PendingDelete) {
		mu.Lock()
		resolved = pd
		mu.Unlock()
		close(done)
	}

	d.OnDelete("/plugins/hello_100.so", resolve)
	time.Sleep(20 * time.Millisecond)
	d.OnDelete("/plugins/hello_100.so.backup", resolve)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delete batch never resolved")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, resolved)
	require.True(t, resolved.ArtifactDeleted)
	require.True(t, resolved.BackupDeleted)
	require.Equal(t, Identity("hello"), resolved.Identity)
}

func TestDebouncerCancelPending(t *testing.T) {
	d := NewDebouncer()
	called := false
	d.OnDelete("/plugins/hello_100.so", func(*PendingDelete) { called = true })
	d.CancelPending("hello")

	time.Sleep(deleteBatch + 50*time.Millisecond)
	require.False(t, called, "a cancelled pending delete must not resolve")
}
