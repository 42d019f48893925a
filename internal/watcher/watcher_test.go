package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/droidforge/droidforge/internal/watcher"
	"github.com/stretchr/testify/require"
)

const (
	rev1 = "1111111111111111111111111111111111111111"
	rev2 = "2222222222222222222222222222222222222222"
	rev3 = "3333333333333333333333333333333333333333"
)

func TestWatchReportsNewRevision(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	writeRef(t, dir, "main", rev1)

	w := watcher.New(dir, "main", watcher.WithDebounce(50*time.Millisecond))
	revisions, watchErr, err := w.Watch(t.Context())
	require.NoError(t, err, "Setup: failed to start watch")

	writeRef(t, dir, "main", rev2)

	select {
	case err := <-watchErr:
		require.NoError(t, err, "expected no watcher error")
	case rev := <-revisions:
		require.Equal(t, rev2, rev, "expected the new head revision")
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected a revision event")
	}
}

func TestWatchCoalescesBursts(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	writeRef(t, dir, "main", rev1)

	w := watcher.New(dir, "main", watcher.WithDebounce(200*time.Millisecond))
	revisions, _, err := w.Watch(t.Context())
	require.NoError(t, err, "Setup: failed to start watch")

	writeRef(t, dir, "main", rev2)
	writeRef(t, dir, "main", rev3)

	select {
	case rev := <-revisions:
		require.Equal(t, rev3, rev, "expected only the latest revision after a burst")
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected a revision event")
	}

	select {
	case rev := <-revisions:
		require.Fail(t, "expected no further event, got revision", rev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatchResolvesPackedRefs(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	writePackedRefs(t, dir, "main", rev1)

	w := watcher.New(dir, "main", watcher.WithDebounce(50*time.Millisecond))
	revisions, _, err := w.Watch(t.Context())
	require.NoError(t, err, "Setup: failed to start watch")

	writePackedRefs(t, dir, "main", rev2)

	select {
	case rev := <-revisions:
		require.Equal(t, rev2, rev, "expected the packed head revision")
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected a revision event")
	}
}

func TestWatchReportsFirstCommit(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)

	w := watcher.New(dir, "main", watcher.WithDebounce(50*time.Millisecond))
	revisions, _, err := w.Watch(t.Context())
	require.NoError(t, err, "Setup: failed to start watch")

	writeRef(t, dir, "main", rev1)

	select {
	case rev := <-revisions:
		require.Equal(t, rev1, rev, "expected the first commit to be reported")
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected a revision event")
	}
}

func TestWatchIgnoresOtherBranches(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	writeRef(t, dir, "main", rev1)

	w := watcher.New(dir, "main", watcher.WithDebounce(50*time.Millisecond))
	revisions, _, err := w.Watch(t.Context())
	require.NoError(t, err, "Setup: failed to start watch")

	writeRef(t, dir, "feature", rev2)

	select {
	case rev := <-revisions:
		require.Fail(t, "expected no event for another branch, got revision", rev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatchNotARepository(t *testing.T) {
	t.Parallel()

	w := watcher.New(t.TempDir(), "main")
	_, _, err := w.Watch(t.Context())
	require.Error(t, err, "expected an error watching a directory without a git repository")
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	writeRef(t, dir, "main", rev1)

	ctx, cancel := context.WithCancel(t.Context())
	w := watcher.New(dir, "main", watcher.WithDebounce(50*time.Millisecond))
	revisions, _, err := w.Watch(ctx)
	require.NoError(t, err, "Setup: failed to start watch")

	cancel()

	select {
	case _, ok := <-revisions:
		require.False(t, ok, "expected the revisions channel to be closed")
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected the watcher to stop")
	}
}

// initRepo lays out the bare minimum of a git dir: HEAD and the loose refs
// directory.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "refs", "heads"), 0700), "Setup: could not create git dir")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0600), "Setup: could not write HEAD")
	return dir
}

func writeRef(t *testing.T, dir, branch, rev string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "refs", "heads", branch), []byte(rev+"\n"), 0600), "Setup: could not write ref")
}

func writePackedRefs(t *testing.T, dir, branch, rev string) {
	t.Helper()
	content := "# pack-refs with: peeled fully-peeled sorted \n" + rev + " refs/heads/" + branch + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "packed-refs"), []byte(content), 0600), "Setup: could not write packed refs")
}
