package vkt

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingOwner counts watcher notifications and reload attempts.
type countingOwner struct {
	triggers atomic.Int32
	reloads  atomic.Int32
	pending  atomic.Bool
	fail     error
}

func (c *countingOwner) TriggerReload() {
	c.triggers.Add(1)
	c.pending.Store(true)
}

func (c *countingOwner) WantsReload() bool {
	return c.pending.Load()
}

func (c *countingOwner) Reload() error {
	c.pending.Store(false)
	c.reloads.Add(1)
	return c.fail
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("first"), 0644))
	return path
}

// touch pushes the file's mtime forward far enough that a poll must see it.
func touch(t *testing.T, path string) {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	next := fi.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, next, next))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func newTestWatcher() *FileWatcher {
	w := NewFileWatcher()
	w.Interval = 5 * time.Millisecond
	return w
}

func TestWatcherMissingFileRejected(t *testing.T) {
	w := newTestWatcher()
	err := w.AddFile(filepath.Join(t.TempDir(), "absent.vert.hlsl"), nil)
	require.Error(t, err)
}

func TestWatcherNotifiesEveryOwnerOnce(t *testing.T) {
	path := writeTempFile(t, "shared.frag.hlsl")

	w := newTestWatcher()
	first := &countingOwner{}
	second := &countingOwner{}
	require.NoError(t, w.AddFile(path, first))
	require.NoError(t, w.AddFile(path, second))

	w.Start()
	defer w.Stop()

	touch(t, path)

	require.True(t, waitFor(t, time.Second, func() bool {
		return first.triggers.Load() == 1 && second.triggers.Load() == 1
	}), "both owners should be flagged")

	// The file only changed once, so no further notifications may arrive.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), first.triggers.Load())
	assert.Equal(t, int32(1), second.triggers.Load())
}

func TestWatcherDuplicateRegistrationIsIdempotent(t *testing.T) {
	path := writeTempFile(t, "dup.vert.hlsl")

	w := newTestWatcher()
	owner := &countingOwner{}
	require.NoError(t, w.AddFile(path, owner))
	require.NoError(t, w.AddFile(path, owner))

	w.Start()
	defer w.Stop()

	touch(t, path)

	require.True(t, waitFor(t, time.Second, func() bool {
		return owner.triggers.Load() >= 1
	}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), owner.triggers.Load(), "owner registered twice must be flagged once")
}

func TestWatcherCoalescesWritesWithinOneInterval(t *testing.T) {
	path := writeTempFile(t, "burst.frag.hlsl")

	w := NewFileWatcher()
	w.Interval = 50 * time.Millisecond
	owner := &countingOwner{}
	require.NoError(t, w.AddFile(path, owner))

	w.Start()
	defer w.Stop()

	// Two saves before the first poll tick: the tick compares against the
	// newest timestamp, so only one notification may ever be produced.
	touch(t, path)
	touch(t, path)

	require.True(t, waitFor(t, time.Second, func() bool {
		return owner.triggers.Load() >= 1
	}))
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), owner.triggers.Load(), "writes inside one interval must coalesce")
}

func TestWatcherRemoveOwner(t *testing.T) {
	path := writeTempFile(t, "removed.frag.hlsl")

	w := newTestWatcher()
	kept := &countingOwner{}
	removed := &countingOwner{}
	require.NoError(t, w.AddFile(path, kept))
	require.NoError(t, w.AddFile(path, removed))

	w.RemoveOwner(removed)

	w.Start()
	defer w.Stop()

	touch(t, path)

	require.True(t, waitFor(t, time.Second, func() bool {
		return kept.triggers.Load() == 1
	}))
	assert.Equal(t, int32(0), removed.triggers.Load(), "removed owner must not be notified")
}

func TestWatcherRemoveFile(t *testing.T) {
	path := writeTempFile(t, "dropped.vert.hlsl")

	w := newTestWatcher()
	owner := &countingOwner{}
	require.NoError(t, w.AddFile(path, owner))
	w.RemoveFile(path)

	w.Start()
	defer w.Stop()

	touch(t, path)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), owner.triggers.Load())
}

func TestWatcherStopIsClean(t *testing.T) {
	path := writeTempFile(t, "stopped.frag.hlsl")

	w := newTestWatcher()
	var notified atomic.Int32
	w.OnFileChanged = func(string, []Reloadable) {
		notified.Add(1)
	}
	require.NoError(t, w.AddFile(path, nil))

	w.Start()
	w.Stop()

	// Stop must have joined the polling goroutine; a change after Stop can
	// never be observed.
	touch(t, path)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), notified.Load())
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := newTestWatcher()
	require.NoError(t, w.AddFile(writeTempFile(t, "idle.vert.hlsl"), nil))

	// Teardown after a failed startup stops the watcher unconditionally;
	// that must not panic when Start was never reached.
	w.Stop()
}

func TestWatcherToleratesDeletedFile(t *testing.T) {
	path := writeTempFile(t, "flaky.vert.hlsl")

	w := newTestWatcher()
	owner := &countingOwner{}
	require.NoError(t, w.AddFile(path, owner))

	w.Start()
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	// Several polls with a missing file must neither notify nor stop the
	// watcher.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), owner.triggers.Load())

	require.NoError(t, os.WriteFile(path, []byte("second"), 0644))
	touch(t, path)

	require.True(t, waitFor(t, time.Second, func() bool {
		return owner.triggers.Load() >= 1
	}), "watcher should pick the file up again once it reappears")
}

func TestWatcherCallbackOverridesDefault(t *testing.T) {
	path := writeTempFile(t, "custom.frag.hlsl")

	w := newTestWatcher()
	owner := &countingOwner{}

	var mu sync.Mutex
	var gotPath string
	var gotOwners int
	w.OnFileChanged = func(p string, owners []Reloadable) {
		mu.Lock()
		gotPath = p
		gotOwners = len(owners)
		mu.Unlock()
	}

	require.NoError(t, w.AddFile(path, owner))
	w.Start()
	defer w.Stop()

	touch(t, path)

	require.True(t, waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotPath == path
	}))

	mu.Lock()
	assert.Equal(t, 1, gotOwners)
	mu.Unlock()
	assert.Equal(t, int32(0), owner.triggers.Load(), "callback replaces the default owner flagging")
}
